package auth

import "errors"

var (
	ErrSessionExpired   = errors.New("session expired")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrNotAuthenticated = errors.New("not authenticated")

	errNoAccessToken = errors.New("refresh response without access token")
)

const (
	msgSessionExpired   = "Your session has expired, please log in again"
	msgPasswordMismatch = "Passwords do not match"
)
