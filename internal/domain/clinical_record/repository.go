package clinical_record

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts r and its attachments. Returns ErrRecordExists when the
	// appointment already has a record.
	Create(ctx context.Context, r *ClinicalRecord) error

	// EnsureForAppointment returns the appointment's record, inserting a
	// placeholder when none exists. Safe against concurrent callers.
	EnsureForAppointment(ctx context.Context, appointmentID, createdBy uuid.UUID) (*ClinicalRecord, error)

	GetByID(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error)
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*ClinicalRecord, error)

	// Update applies cmd and appends add under a row lock on the record.
	Update(ctx context.Context, id uuid.UUID, cmd *UpdateRecordCommand, add []Attachment) (*ClinicalRecord, error)

	// RemoveAttachment deletes one attachment and renumbers the rest in a
	// single transaction. release is called with the removed attachment
	// before commit; an error from it rolls everything back.
	RemoveAttachment(ctx context.Context, recordID, attachmentID uuid.UUID, release func(Attachment) error) (*ClinicalRecord, error)

	// List returns records sorted by appointment date, newest first.
	List(ctx context.Context, q *ListRecordsQuery) ([]*ClinicalRecord, error)
}
