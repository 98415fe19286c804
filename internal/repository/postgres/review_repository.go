package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/review"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	if err := r.db.WithContext(ctx).Create(rv).Error; err != nil {
		if isUniqueViolation(err, constraintReviewAppointment) {
			return review.ErrReviewExists
		}
		return fmt.Errorf("creating review: %w", err)
	}
	return nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*review.Review, error) {
	var rv review.Review
	err := r.db.WithContext(ctx).Take(&rv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, review.ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting review: %w", err)
	}
	return &rv, nil
}

func (r *ReviewRepository) Update(ctx context.Context, rv *review.Review) error {
	res := r.db.WithContext(ctx).Model(&review.Review{}).Where("id = ?", rv.ID).Updates(map[string]any{
		"rating":  rv.Rating,
		"comment": rv.Comment,
	})
	if res.Error != nil {
		return fmt.Errorf("updating review: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return review.ErrReviewNotFound
	}
	return nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&review.Review{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting review: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return review.ErrReviewNotFound
	}
	return nil
}

func (r *ReviewRepository) ListByDoctor(ctx context.Context, q *review.ListReviewsQuery) (*review.PagedReviews, error) {
	var agg struct {
		Total   int64
		Average float64
	}
	err := r.db.WithContext(ctx).Model(&review.Review{}).
		Select("COUNT(*) AS total, COALESCE(AVG(rating), 0) AS average").
		Where("doctor_id = ?", q.DoctorID).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("aggregating reviews: %w", err)
	}

	offset, limit := paginate(q.Page, q.PageSize)
	var rows []*review.Review
	err = r.db.WithContext(ctx).Model(&review.Review{}).
		Select("reviews.*, "+fmt.Sprintf(fullNameSQL, "p", "p")+" AS patient_name").
		Joins("JOIN users p ON p.id = reviews.patient_id").
		Where("reviews.doctor_id = ?", q.DoctorID).
		Order("reviews.created_at DESC").
		Offset(offset).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}

	return &review.PagedReviews{
		Reviews:       rows,
		TotalCount:    agg.Total,
		AverageRating: agg.Average,
		Page:          offset/limit + 1,
		PageSize:      limit,
		TotalPages:    totalPages(agg.Total, limit),
	}, nil
}
