package catalog

import "errors"

var (
	ErrForbidden    = errors.New("admin privileges required")
	ErrInvalidInput = errors.New("invalid product input")
)
