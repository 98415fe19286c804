package v1

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	cr "github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/clinical_record"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/storage"
)

// Envelope is the shape of every JSON response.
type Envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Record  any               `json:"record,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Meta    *PageMeta         `json:"meta,omitempty"`
}

type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(fieldName)
	}
}

// fieldName reports validation errors under the wire name of a field.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// base carries what every handler needs to turn service errors into
// responses.
type base struct {
	log          *zap.Logger
	exposeErrors bool
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func respondCreated(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: message})
}

func respondPage(c *gin.Context, data any, page, pageSize int, total int64, totalPages int) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
		Meta:    &PageMeta{Page: page, PageSize: pageSize, TotalCount: total, TotalPages: totalPages},
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Error: message})
}

func respondValidation(c *gin.Context, fields map[string]string) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, Envelope{
		Success: false,
		Message: "validation failed",
		Errors:  fields,
	})
}

func (h *base) respondServiceError(c *gin.Context, err error) {
	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		respondValidation(c, validErr.Fields)
		return
	}

	switch {
	case errors.Is(err, user.ErrUserNotFound),
		errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, cr.ErrRecordNotFound),
		errors.Is(err, cr.ErrAttachmentNotFound),
		errors.Is(err, review.ErrReviewNotFound):
		respondError(c, http.StatusNotFound, err.Error())

	case errors.Is(err, appointment.ErrDuplicateActive),
		errors.Is(err, appointment.ErrInvalidStatusTransition),
		errors.Is(err, cr.ErrRecordExists),
		errors.Is(err, review.ErrReviewExists),
		errors.Is(err, review.ErrAppointmentNotCompleted):
		respondError(c, http.StatusBadRequest, err.Error())

	case errors.Is(err, service.ErrForbidden):
		respondError(c, http.StatusForbidden, "access denied")

	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "invalid credentials")

	case errors.Is(err, service.ErrMFARequired):
		c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{Error: "mfa code required", Code: "MFA_REQUIRED"})

	case errors.Is(err, service.ErrInvalidMFACode):
		c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{Error: "invalid mfa code", Code: "INVALID_MFA_CODE"})

	case errors.Is(err, service.ErrAccountLocked):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, Envelope{
			Error: "account temporarily locked",
			Code:  "ACCOUNT_LOCKED",
		})

	case errors.Is(err, service.ErrAccountInactive):
		respondError(c, http.StatusForbidden, "account is inactive")

	default:
		h.log.Error("request failed",
			zap.String("request_id", middleware.RequestIDFrom(c)),
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
		resp := Envelope{Success: false, Message: "internal server error"}
		if h.exposeErrors {
			resp.Error = err.Error()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
	}
}

// bindJSON binds the body into obj. Tag failures become a 422 field map.
func bindJSON(c *gin.Context, obj any) bool {
	return bindWith(c, obj, binding.JSON)
}

// bindBody picks JSON or multipart form binding from the Content-Type.
func bindBody(c *gin.Context, obj any) bool {
	return bindWith(c, obj, binding.Default(c.Request.Method, c.ContentType()))
}

func bindWith(c *gin.Context, obj any, b binding.Binding) bool {
	err := c.ShouldBindWith(obj, b)
	if err == nil {
		return true
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		respondValidation(c, validationFields(ve))
		return false
	}

	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		respondError(c, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}

	if errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "request body is required")
		return false
	}
	respondError(c, http.StatusBadRequest, "invalid request body")
	return false
}

func validationFields(ve validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = validationMessage(fe)
	}
	return fields
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("may not be greater than %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "numeric":
		return "must be numeric"
	default:
		return "is invalid"
	}
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid "+param+": must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}

// caller returns the authenticated identity. Routes behind Authenticate
// always have one.
func caller(c *gin.Context) *domain.Claims {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return nil
	}
	return claims
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{
		IP:        c.ClientIP(),
		RequestID: middleware.RequestIDFrom(c),
		UserAgent: c.Request.UserAgent(),
	}
}

// formFiles collects uploaded files sent as files[] or files.
func formFiles(c *gin.Context, keys ...string) []storage.Upload {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil
	}
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	var out []storage.Upload
	for _, key := range keys {
		for _, fh := range form.File[key] {
			out = append(out, toUpload(fh))
		}
	}
	return out
}

func toUpload(fh *multipart.FileHeader) storage.Upload {
	return storage.Upload{
		Name: fh.Filename,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}
