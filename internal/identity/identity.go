// Package identity signs users up and in and issues session tokens.
package identity

import (
	"errors"
	"time"
)

var (
	// ErrEmailInUse is returned when signing up with an email that already has a credential
	ErrEmailInUse = errors.New("email already in use")
	// ErrInvalidEmail is returned for addresses that do not parse
	ErrInvalidEmail = errors.New("invalid email")
	// ErrWeakPassword is returned for passwords below the minimum length
	ErrWeakPassword = errors.New("weak password")
	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash
	ErrPasswordTooLong = errors.New("password too long")
	// ErrPasswordMismatch is returned when the confirmation differs from the password
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrMissingFields is returned when a required sign up or sign in field is blank
	ErrMissingFields = errors.New("missing required fields")
	// ErrInvalidCredential is returned for an unknown email or a wrong password
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInvalidToken is returned for session tokens that fail verification
	ErrInvalidToken = errors.New("invalid or expired token")
)

const (
	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 6
	// maxPasswordBytes is the bcrypt input limit
	maxPasswordBytes = 72
)

// Credential is the stored sign-in record for one identity
type Credential struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// User is the identity returned to callers after sign-up or sign-in
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Session is a signed-in user with the token that proves it
type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Message returns the user-facing text for an identity error
func Message(err error) string {
	switch {
	case errors.Is(err, ErrEmailInUse):
		return "This email is already registered."
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrWeakPassword):
		return "Password must be at least 6 characters long."
	case errors.Is(err, ErrPasswordTooLong):
		return "Password must be at most 72 bytes long."
	case errors.Is(err, ErrPasswordMismatch):
		return "Passwords do not match"
	case errors.Is(err, ErrMissingFields):
		return "Please fill in all required fields"
	case errors.Is(err, ErrInvalidCredential):
		return "Invalid credentials. Please try again."
	case errors.Is(err, ErrInvalidToken):
		return "Your session has expired. Please sign in again."
	default:
		return "Something went wrong. Please try again."
	}
}
