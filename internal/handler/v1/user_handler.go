package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
)

type UserService interface {
	Me(ctx context.Context, caller *domain.Claims) (*user.User, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*user.User, error)
	ListDoctors(ctx context.Context, page, pageSize int) (*user.PagedUsers, error)
	GetPatient(ctx context.Context, caller *domain.Claims, id uuid.UUID, meta service.RequestMeta) (*user.User, error)
	ListPatients(ctx context.Context, page, pageSize int) (*user.PagedUsers, error)
	UpdateProfile(ctx context.Context, caller *domain.Claims, in *service.UpdateProfileInput, meta service.RequestMeta) (*user.User, error)
}

type DoctorReviews interface {
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, page, pageSize int) (*review.PagedReviews, error)
}

type UserHandler struct {
	base
	svc     UserService
	reviews DoctorReviews
}

func NewUserHandler(svc UserService, reviews DoctorReviews, log *zap.Logger, exposeErrors bool) *UserHandler {
	return &UserHandler{base: base{log: log, exposeErrors: exposeErrors}, svc: svc, reviews: reviews}
}

// updateProfileRequest binds from JSON or multipart form. The photo, when
// present, arrives as a multipart file named "photo".
type updateProfileRequest struct {
	FirstName      *string `json:"first_name" form:"first_name" binding:"omitempty,max=100"`
	LastName       *string `json:"last_name" form:"last_name" binding:"omitempty,max=100"`
	Bio            *string `json:"bio" form:"bio"`
	Specialization *string `json:"specialization" form:"specialization" binding:"omitempty,max=150"`
	Address        *string `json:"address" form:"address"`
	DateOfBirth    *string `json:"dob" form:"dob"`
	Gender         *string `json:"gender" form:"gender"`
	Password       *string `json:"password" form:"password" binding:"omitempty,max=72"`
}

type doctorReviewsResponse struct {
	Reviews       []*review.Review `json:"reviews"`
	AverageRating float64          `json:"average_rating"`
}

func (h *UserHandler) Me(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	u, err := h.svc.Me(c.Request.Context(), claims)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondOK(c, u)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	var req updateProfileRequest
	if !bindBody(c, &req) {
		return
	}

	in := &service.UpdateProfileInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Bio:            req.Bio,
		Specialization: req.Specialization,
		Address:        req.Address,
		DateOfBirth:    req.DateOfBirth,
		Gender:         req.Gender,
		Password:       req.Password,
	}
	if photos := formFiles(c, "photo"); len(photos) > 0 {
		in.Photo = &photos[0]
	}

	u, err := h.svc.UpdateProfile(c.Request.Context(), claims, in, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Message: "profile updated", Data: u})
}

func (h *UserHandler) ListDoctors(c *gin.Context) {
	page, err := h.svc.ListDoctors(c.Request.Context(), parseQueryInt(c, "page", 1), parseQueryInt(c, "page_size", 20))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondPage(c, page.Users, page.Page, page.PageSize, page.TotalCount, page.TotalPages)
}

func (h *UserHandler) GetDoctor(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	u, err := h.svc.GetDoctor(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondOK(c, u)
}

func (h *UserHandler) DoctorReviews(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	page, err := h.reviews.ListByDoctor(c.Request.Context(), id, parseQueryInt(c, "page", 1), parseQueryInt(c, "page_size", 20))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondPage(c,
		doctorReviewsResponse{Reviews: page.Reviews, AverageRating: page.AverageRating},
		page.Page, page.PageSize, page.TotalCount, page.TotalPages,
	)
}

func (h *UserHandler) ListPatients(c *gin.Context) {
	page, err := h.svc.ListPatients(c.Request.Context(), parseQueryInt(c, "page", 1), parseQueryInt(c, "page_size", 20))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondPage(c, page.Users, page.Page, page.PageSize, page.TotalCount, page.TotalPages)
}

func (h *UserHandler) GetPatient(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	u, err := h.svc.GetPatient(c.Request.Context(), claims, id, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondOK(c, u)
}
