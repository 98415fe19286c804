package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/policy"
)

var ErrForbidden = policy.ErrForbidden

// ValidationError maps request field names to messages. Handlers render it as 422.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// orNil returns nil when no field was added so callers can `return v.orNil()`.
func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

type AuditEntry struct {
	UserID       uuid.UUID
	UserRole     domain.Role
	Action       domain.AuditAction
	ResourceType string
	ResourceID   string
	IPAddress    string
	RequestID    string
	UserAgent    string
	StatusCode   int
	Changes      string
}

// RequestMeta is the per-request information services copy into audit entries.
type RequestMeta struct {
	IP        string
	RequestID string
	UserAgent string
}

func auditEntry(caller *domain.Claims, meta RequestMeta, action domain.AuditAction, resourceType string, resourceID uuid.UUID) AuditEntry {
	return AuditEntry{
		UserID:       caller.UserID,
		UserRole:     caller.Role,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID.String(),
		IPAddress:    meta.IP,
		RequestID:    meta.RequestID,
		UserAgent:    meta.UserAgent,
	}
}
