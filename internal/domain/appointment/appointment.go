package appointment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// State transitions:
//
//	scheduled → confirmed → completed
//	scheduled → cancelled
//	confirmed → cancelled
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the status still blocks a new booking for the same pair.
func (s AppointmentStatus) IsActive() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

type Appointment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index" json:"doctor_id"`
	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index" json:"patient_id"`

	Date   time.Time         `gorm:"column:appointment_date;type:date;not null;index" json:"-"`
	Time   string            `gorm:"column:appointment_time;type:varchar(5);not null" json:"appointment_time"`
	Status AppointmentStatus `gorm:"column:status;type:varchar(20);not null;default:'scheduled';index" json:"status"`

	CancelledAt *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy *uuid.UUID `gorm:"column:cancelled_by;type:uuid" json:"cancelled_by,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null" json:"created_by"`

	// Filled by list queries, not persisted.
	DoctorName  string `gorm:"->;-:migration" json:"doctor_name,omitempty"`
	PatientName string `gorm:"->;-:migration" json:"patient_name,omitempty"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// MarshalJSON renders the date column as YYYY-MM-DD.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type alias Appointment
	return json.Marshal(struct {
		alias
		Date string `json:"appointment_date"`
	}{alias: alias(a), Date: a.Date.Format(DateLayout)})
}

func (a *Appointment) CanTransitionTo(newStatus AppointmentStatus) bool {
	for _, s := range allowedTransitions[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// IsParty reports whether userID is the doctor or the patient of the appointment.
func (a *Appointment) IsParty(userID uuid.UUID) bool {
	return a.DoctorID == userID || a.PatientID == userID
}

// TransitionTo moves the appointment to status, stamping cancellation or
// completion metadata. It does not persist anything.
func (a *Appointment) TransitionTo(status AppointmentStatus, by uuid.UUID) error {
	switch status {
	case StatusCancelled:
		return a.Cancel(by)
	case StatusCompleted:
		return a.Complete()
	}
	if !a.CanTransitionTo(status) {
		return ErrInvalidStatusTransition
	}
	a.Status = status
	return nil
}

func (a *Appointment) Cancel(cancelledBy uuid.UUID) error {
	if !a.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.CancelledBy = &cancelledBy
	return nil
}

func (a *Appointment) Complete() error {
	if !a.CanTransitionTo(StatusCompleted) {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	a.Status = StatusCompleted
	a.CompletedAt = &now
	return nil
}

type CreateAppointmentCommand struct {
	DoctorID  uuid.UUID
	PatientID *uuid.UUID // defaults to the caller
	Date      string     // YYYY-MM-DD
	Time      string     // HH:MM
}

type UpdateStatusCommand struct {
	Status AppointmentStatus
}

// Scope selects which side of an appointment the caller is matched against.
type Scope string

const (
	ScopeDoctor  Scope = "doctor"
	ScopePatient Scope = "patient"
	ScopeEither  Scope = "either"
)

type ListAppointmentsQuery struct {
	UserID   uuid.UUID
	Scope    Scope
	Status   *AppointmentStatus
	Page     int
	PageSize int
}

type PagedAppointments struct {
	Appointments []*Appointment
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}
