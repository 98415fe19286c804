package review

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinRating = 1
	MaxRating = 5
)

type Review struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	AppointmentID uuid.UUID `gorm:"column:appointment_id;type:uuid;not null;uniqueIndex:uniq_review_appointment" json:"appointment_id"`
	DoctorID      uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index" json:"doctor_id"`
	PatientID     uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index" json:"patient_id"`

	Rating  int     `gorm:"column:rating;not null" json:"rating"`
	Comment *string `gorm:"column:comment;type:text" json:"comment"`

	PatientName string `gorm:"->;-:migration" json:"patient_name,omitempty"`
}

func (Review) TableName() string {
	return "reviews"
}

func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

// Apply sets the fields present in cmd after validating the rating.
func (r *Review) Apply(cmd *UpdateReviewCommand) error {
	if cmd.Rating != nil {
		if err := ValidateRating(*cmd.Rating); err != nil {
			return err
		}
		r.Rating = *cmd.Rating
	}
	if cmd.Comment != nil {
		r.Comment = cmd.Comment
	}
	return nil
}

type CreateReviewCommand struct {
	AppointmentID uuid.UUID
	Rating        int
	Comment       *string
}

type UpdateReviewCommand struct {
	Rating  *int
	Comment *string
}

type ListReviewsQuery struct {
	DoctorID uuid.UUID
	Page     int
	PageSize int
}

type PagedReviews struct {
	Reviews       []*Review
	TotalCount    int64
	AverageRating float64
	Page          int
	PageSize      int
	TotalPages    int
}
