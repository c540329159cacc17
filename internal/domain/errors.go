package domain

import "errors"

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidGrant        = errors.New("authorization code invalid or already consumed")
	ErrInvalidRefreshToken = errors.New("refresh token revoked or invalid")
	ErrNoRefreshToken      = errors.New("no refresh token stored for channel")
	ErrNoChannel           = errors.New("no channel found for access token")
	ErrFlowTimeout         = errors.New("connect flow timed out")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
