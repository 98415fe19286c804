package v1

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
)

type ReviewService interface {
	Create(ctx context.Context, caller *domain.Claims, cmd *review.CreateReviewCommand, meta service.RequestMeta) (*review.Review, error)
	Update(ctx context.Context, caller *domain.Claims, id uuid.UUID, cmd *review.UpdateReviewCommand, meta service.RequestMeta) (*review.Review, error)
	Delete(ctx context.Context, caller *domain.Claims, id uuid.UUID, meta service.RequestMeta) error
}

type ReviewHandler struct {
	base
	svc ReviewService
}

func NewReviewHandler(svc ReviewService, log *zap.Logger, exposeErrors bool) *ReviewHandler {
	return &ReviewHandler{base: base{log: log, exposeErrors: exposeErrors}, svc: svc}
}

type createReviewRequest struct {
	Rating  *int    `json:"rating" binding:"required"`
	Comment *string `json:"comment" binding:"omitempty,max=2000"`
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment" binding:"omitempty,max=2000"`
}

// Create reviews the appointment named by :id.
func (h *ReviewHandler) Create(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	apptID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req createReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.svc.Create(c.Request.Context(), claims, &review.CreateReviewCommand{
		AppointmentID: apptID,
		Rating:        *req.Rating,
		Comment:       req.Comment,
	}, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondCreated(c, "review submitted", r)
}

func (h *ReviewHandler) Update(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updateReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.svc.Update(c.Request.Context(), claims, id, &review.UpdateReviewCommand{
		Rating:  req.Rating,
		Comment: req.Comment,
	}, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondOK(c, r)
}

func (h *ReviewHandler) Delete(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), claims, id, requestMeta(c)); err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondMessage(c, "review deleted")
}
