package review

import "errors"

var (
	ErrReviewNotFound          = errors.New("review not found")
	ErrReviewExists            = errors.New("this appointment has already been reviewed")
	ErrInvalidRating           = errors.New("rating must be an integer between 1 and 5")
	ErrAppointmentNotCompleted = errors.New("only completed appointments can be reviewed")
)
