package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateIfNoActive inserts a when no scheduled or confirmed appointment
	// exists for the same doctor and patient. Returns ErrDuplicateActive otherwise.
	CreateIfNoActive(ctx context.Context, a *Appointment) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error)

	// UpdateStatus persists the status and its cancellation/completion stamps
	// provided the stored status is still from. Returns
	// ErrInvalidStatusTransition when another request changed it first.
	UpdateStatus(ctx context.Context, a *Appointment, from AppointmentStatus) error

	// Delete removes the appointment and returns the storage paths of the
	// attachments that cascaded with it.
	Delete(ctx context.Context, id uuid.UUID) ([]string, error)
}
