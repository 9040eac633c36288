package cart

import "errors"

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrSessionInvalid  = errors.New("guest cart session is no longer valid")
)
