package v1

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
)

type AppointmentService interface {
	Create(ctx context.Context, caller *domain.Claims, cmd *appointment.CreateAppointmentCommand, meta service.RequestMeta) (*appointment.Appointment, error)
	Get(ctx context.Context, caller *domain.Claims, id uuid.UUID, meta service.RequestMeta) (*appointment.Appointment, error)
	UpdateStatus(ctx context.Context, caller *domain.Claims, id uuid.UUID, status appointment.AppointmentStatus, meta service.RequestMeta) (*appointment.Appointment, error)
	List(ctx context.Context, caller *domain.Claims, status string, page, pageSize int) (*appointment.PagedAppointments, error)
	ListAll(ctx context.Context, caller *domain.Claims, status string, page, pageSize int) (*appointment.PagedAppointments, error)
	Delete(ctx context.Context, caller *domain.Claims, id uuid.UUID, meta service.RequestMeta) error
}

type AppointmentHandler struct {
	base
	svc AppointmentService
}

func NewAppointmentHandler(svc AppointmentService, log *zap.Logger, exposeErrors bool) *AppointmentHandler {
	return &AppointmentHandler{base: base{log: log, exposeErrors: exposeErrors}, svc: svc}
}

type createAppointmentRequest struct {
	DoctorID        string  `json:"doctor_id" binding:"required,uuid"`
	PatientID       *string `json:"patient_id" binding:"omitempty,uuid"`
	AppointmentDate string  `json:"appointment_date" binding:"required"`
	AppointmentTime string  `json:"appointment_time" binding:"required"`
}

type updateAppointmentRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *AppointmentHandler) Create(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	var req createAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &appointment.CreateAppointmentCommand{
		DoctorID: uuid.MustParse(req.DoctorID),
		Date:     req.AppointmentDate,
		Time:     req.AppointmentTime,
	}
	if req.PatientID != nil {
		pid := uuid.MustParse(*req.PatientID)
		cmd.PatientID = &pid
	}

	a, err := h.svc.Create(c.Request.Context(), claims, cmd, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondCreated(c, "appointment booked", a)
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.Get(c.Request.Context(), claims, id, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updateAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.UpdateStatus(c.Request.Context(), claims, id, appointment.AppointmentStatus(req.Status), requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) List(c *gin.Context) {
	h.list(c, false)
}

// ListAll returns appointments on either side of the caller.
func (h *AppointmentHandler) ListAll(c *gin.Context) {
	h.list(c, true)
}

func (h *AppointmentHandler) list(c *gin.Context, all bool) {
	claims := caller(c)
	if claims == nil {
		return
	}
	list := h.svc.List
	if all {
		list = h.svc.ListAll
	}

	page, err := list(c.Request.Context(), claims, c.Query("status"), parseQueryInt(c, "page", 1), parseQueryInt(c, "page_size", 20))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondPage(c, page.Appointments, page.Page, page.PageSize, page.TotalCount, page.TotalPages)
}

func (h *AppointmentHandler) Delete(c *gin.Context) {
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
	respondMessage(c, "appointment deleted")
}
