package twofactor

import "errors"

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("record not found")

	ErrInvalidMethod    = errors.New("invalid two-factor method")
	ErrMethodNotAllowed = errors.New("two-factor method is not allowed")
	ErrPhoneRequired    = errors.New("phone number is required for sms")
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrInvalidSettings  = errors.New("invalid two-factor settings")

	ErrInvalidCode     = errors.New("invalid verification code")
	ErrInvalidSession  = errors.New("invalid session")
	ErrInvalidPassword = errors.New("invalid password")
	ErrTooManyResends  = errors.New("too many code requests")

	ErrNotSetUp       = errors.New("two-factor authentication is not set up")
	ErrAlreadyEnabled = errors.New("two-factor authentication is already enabled")
	ErrDeviceNotFound = errors.New("trusted device not found")

	ErrMalformedSecret = errors.New("malformed base32 secret")
	ErrInvalidConfig   = errors.New("invalid two-factor configuration")
)
