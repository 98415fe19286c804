package user

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("a user with this email already exists")
	ErrInvalidGender      = errors.New("invalid gender value")
	ErrInvalidDateOfBirth = errors.New("date of birth must be before today")
	ErrInvalidRole        = errors.New("role must be patient or doctor")
)
