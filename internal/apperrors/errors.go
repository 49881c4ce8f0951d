package apperrors

import (
	"errors"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrInvalidRole = errors.New("role is invalid")

	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrInvalidCredentials   = errors.New("invalid email or password")

	// Access token paths: missing, malformed, expired token or not live account
	ErrUnauthorized = errors.New("unauthorized")

	// Refresh rotation only: no session to rotate or presented token is not the current one
	ErrAccessDenied = errors.New("access denied")

	// Authenticated but role is not allowed
	ErrForbidden = errors.New("forbidden")

	// Store level compare-and-swap miss on refresh hash
	ErrRefreshHashMismatch = errors.New("refresh token hash mismatch")
)
