package v1

import (
	"context"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	cr "github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/clinical_record"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/storage"
)

type ClinicalRecordService interface {
	Create(ctx context.Context, caller *domain.Claims, cmd *cr.CreateRecordCommand, files []storage.Upload, meta service.RequestMeta) (*cr.ClinicalRecord, error)
	GetByAppointment(ctx context.Context, caller *domain.Claims, appointmentID uuid.UUID, meta service.RequestMeta) (*cr.ClinicalRecord, error)
	List(ctx context.Context, caller *domain.Claims) ([]*cr.ClinicalRecord, error)
	Update(ctx context.Context, caller *domain.Claims, recordID uuid.UUID, cmd *cr.UpdateRecordCommand, files []storage.Upload, meta service.RequestMeta) (*cr.ClinicalRecord, error)
	UploadPatientFiles(ctx context.Context, caller *domain.Claims, appointmentID uuid.UUID, files []storage.Upload, meta service.RequestMeta) (*service.PatientUploadResult, error)
	DeleteFile(ctx context.Context, caller *domain.Claims, recordID, fileID uuid.UUID, meta service.RequestMeta) (*cr.ClinicalRecord, error)
	DownloadFile(ctx context.Context, caller *domain.Claims, recordID, fileID uuid.UUID, meta service.RequestMeta) (*cr.Attachment, io.ReadCloser, error)
}

type ClinicalRecordHandler struct {
	base
	svc ClinicalRecordService
}

func NewClinicalRecordHandler(svc ClinicalRecordService, log *zap.Logger, exposeErrors bool) *ClinicalRecordHandler {
	return &ClinicalRecordHandler{base: base{log: log, exposeErrors: exposeErrors}, svc: svc}
}

var fileFields = []string{"files[]", "files"}

type createRecordRequest struct {
	AppointmentID string `json:"appointment_id" form:"appointment_id" binding:"required,uuid"`
	Diagnosis     string `json:"diagnosis" form:"diagnosis" binding:"required"`
	Prescription  string `json:"prescription" form:"prescription"`
	Notes         string `json:"notes" form:"notes"`
}

type updateRecordRequest struct {
	Diagnosis    *string `json:"diagnosis" form:"diagnosis"`
	Prescription *string `json:"prescription" form:"prescription"`
	Notes        *string `json:"notes" form:"notes"`
}

type deleteFileRequest struct {
	FileID string `json:"file_id" binding:"required,uuid"`
}

func respondRecord(c *gin.Context, status int, message string, rec any) {
	c.JSON(status, Envelope{Success: true, Message: message, Record: rec})
}

func (h *ClinicalRecordHandler) Create(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	var req createRecordRequest
	if !bindBody(c, &req) {
		return
	}

	rec, err := h.svc.Create(c.Request.Context(), claims, &cr.CreateRecordCommand{
		AppointmentID: uuid.MustParse(req.AppointmentID),
		Diagnosis:     req.Diagnosis,
		Prescription:  req.Prescription,
		Notes:         req.Notes,
	}, formFiles(c, fileFields...), requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondRecord(c, http.StatusCreated, "clinical record created", rec)
}

// GetByAppointment looks the record up by the appointment id in the path.
func (h *ClinicalRecordHandler) GetByAppointment(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	apptID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	rec, err := h.svc.GetByAppointment(c.Request.Context(), claims, apptID, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondRecord(c, http.StatusOK, "", rec)
}

func (h *ClinicalRecordHandler) List(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}

	recs, err := h.svc.List(c.Request.Context(), claims)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if recs == nil {
		recs = []*cr.ClinicalRecord{}
	}
	respondOK(c, recs)
}

func (h *ClinicalRecordHandler) Update(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updateRecordRequest
	if !bindBody(c, &req) {
		return
	}

	rec, err := h.svc.Update(c.Request.Context(), claims, id, &cr.UpdateRecordCommand{
		Diagnosis:    req.Diagnosis,
		Prescription: req.Prescription,
		Notes:        req.Notes,
	}, formFiles(c, fileFields...), requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondRecord(c, http.StatusOK, "clinical record updated", rec)
}

// UploadFiles attaches patient files to the record of appointment :id,
// creating a placeholder record if none exists yet.
func (h *ClinicalRecordHandler) UploadFiles(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	apptID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	res, err := h.svc.UploadPatientFiles(c.Request.Context(), claims, apptID, formFiles(c, fileFields...), requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Message: "files uploaded", Data: res})
}

// DeleteFile accepts the file id either in the path or as file_id in the body.
func (h *ClinicalRecordHandler) DeleteFile(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	recordID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var fileID uuid.UUID
	if c.Param("fileId") != "" {
		if fileID, ok = parseUUID(c, "fileId"); !ok {
			return
		}
	} else {
		var req deleteFileRequest
		if !bindJSON(c, &req) {
			return
		}
		fileID = uuid.MustParse(req.FileID)
	}

	rec, err := h.svc.DeleteFile(c.Request.Context(), claims, recordID, fileID, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondRecord(c, http.StatusOK, "file deleted", rec)
}

func (h *ClinicalRecordHandler) Download(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	recordID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	fileID, ok := parseUUID(c, "fileId")
	if !ok {
		return
	}

	att, body, err := h.svc.DownloadFile(c.Request.Context(), claims, recordID, fileID, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	defer body.Close()

	contentType := att.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, att.Size, contentType, body, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}),
	})
}
