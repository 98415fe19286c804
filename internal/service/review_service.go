package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/policy"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

type ReviewService struct {
	repo     review.Repository
	appts    appointment.Repository
	users    user.Repository
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewReviewService(
	repo review.Repository,
	appts appointment.Repository,
	users user.Repository,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *ReviewService {
	return &ReviewService{repo: repo, appts: appts, users: users, auditSvc: auditSvc, metrics: m, log: log}
}

// Create reviews a completed appointment. The doctor and patient are taken
// from the appointment.
func (s *ReviewService) Create(ctx context.Context, caller *domain.Claims, cmd *review.CreateReviewCommand, meta RequestMeta) (*review.Review, error) {
	if err := review.ValidateRating(cmd.Rating); err != nil {
		return nil, NewValidationError("rating", err.Error())
	}

	appt, err := s.appts.GetByID(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}

	if err := authorize(s.metrics, caller, policy.CreateReview, resourceOf(appt)); err != nil {
		return nil, err
	}

	if appt.Status != appointment.StatusCompleted {
		return nil, review.ErrAppointmentNotCompleted
	}

	r := &review.Review{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Rating:        cmd.Rating,
		Comment:       cmd.Comment,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}

	s.metrics.ReviewsCreatedTotal.Inc()
	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionCreate, "review", r.ID))
	s.log.Info("review created",
		zap.String("review_id", r.ID.String()),
		zap.String("doctor_id", r.DoctorID.String()),
	)

	return r, nil
}

func (s *ReviewService) Update(ctx context.Context, caller *domain.Claims, id uuid.UUID, cmd *review.UpdateReviewCommand, meta RequestMeta) (*review.Review, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := authorize(s.metrics, caller, policy.UpdateReview, reviewResource(r)); err != nil {
		return nil, err
	}

	if err := r.Apply(cmd); err != nil {
		return nil, NewValidationError("rating", err.Error())
	}

	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionUpdate, "review", id))
	return r, nil
}

func (s *ReviewService) Delete(ctx context.Context, caller *domain.Claims, id uuid.UUID, meta RequestMeta) error {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := authorize(s.metrics, caller, policy.DeleteReview, reviewResource(r)); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionDelete, "review", id))
	return nil
}

// ListByDoctor returns a doctor's reviews, newest first.
func (s *ReviewService) ListByDoctor(ctx context.Context, doctorID uuid.UUID, page, pageSize int) (*review.PagedReviews, error) {
	if _, err := s.users.GetByRole(ctx, doctorID, domain.RoleDoctor); err != nil {
		return nil, err
	}

	page, pageSize = normalizePage(page, pageSize)
	return s.repo.ListByDoctor(ctx, &review.ListReviewsQuery{DoctorID: doctorID, Page: page, PageSize: pageSize})
}

func reviewResource(r *review.Review) policy.Resource {
	return policy.Resource{DoctorID: r.DoctorID, PatientID: r.PatientID, OwnerID: r.PatientID}
}
