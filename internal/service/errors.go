package service

import "errors"

var (
	// ErrNotFound is returned when an order does not exist
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when a phone number is already registered
	ErrConflict = errors.New("phone number already registered")
	// ErrNotConnected is returned when WhatsApp is not connected
	ErrNotConnected = errors.New("WhatsApp client not connected")
	// ErrNoProfilePicture is returned when a contact has no public picture
	ErrNoProfilePicture = errors.New("no public profile picture")
	// ErrNotOnWhatsApp is returned when a phone number has no WhatsApp account
	ErrNotOnWhatsApp = errors.New("phone number not registered on WhatsApp")
)

// ValidationError describes a rejected input. Nothing was mutated.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationError(msg string) error {
	return &ValidationError{Message: msg}
}
