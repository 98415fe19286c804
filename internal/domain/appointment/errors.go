package appointment

import "errors"

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrDuplicateActive         = errors.New("an active appointment with this doctor already exists")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrInvalidStatus           = errors.New("status must be one of scheduled, confirmed, completed, cancelled")
	ErrScheduledInPast         = errors.New("appointment date cannot be before today")
	ErrInvalidDate             = errors.New("appointment date must be formatted YYYY-MM-DD")
	ErrInvalidTime             = errors.New("appointment time must be formatted HH:MM")
)
