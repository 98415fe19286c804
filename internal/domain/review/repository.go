package review

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create returns ErrReviewExists when the appointment already has a review.
	Create(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*Review, error)
	Update(ctx context.Context, r *Review) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByDoctor returns the doctor's reviews newest first.
	ListByDoctor(ctx context.Context, q *ListReviewsQuery) (*PagedReviews, error)
}
