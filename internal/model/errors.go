package model

import "errors"

// Common errors used across the application
var (
	// Account errors
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateAccount = errors.New("email or identifier already registered")
	ErrInvalidStatus    = errors.New("invalid account status")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
)
