package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/policy"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/storage"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

type AppointmentService struct {
	repo     appointment.Repository
	users    user.Repository
	store    storage.Store
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
	now      func() time.Time
}

func NewAppointmentService(
	repo appointment.Repository,
	users user.Repository,
	store storage.Store,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *AppointmentService {
	return &AppointmentService{
		repo:     repo,
		users:    users,
		store:    store,
		auditSvc: auditSvc,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

func (s *AppointmentService) Create(ctx context.Context, caller *domain.Claims, cmd *appointment.CreateAppointmentCommand, meta RequestMeta) (*appointment.Appointment, error) {
	ctx, span := tracer.Start(ctx, "AppointmentService.Create")
	defer span.End()

	// -------- Input Validation -----------
	v := &ValidationError{}
	if cmd.DoctorID == uuid.Nil {
		v.Add("doctor_id", "is required")
	}
	date, err := time.ParseInLocation(appointment.DateLayout, cmd.Date, time.UTC)
	if err != nil {
		v.Add("appointment_date", appointment.ErrInvalidDate.Error())
	} else if date.Before(startOfDay(s.now())) {
		v.Add("appointment_date", appointment.ErrScheduledInPast.Error())
	}
	at, err := time.Parse(appointment.TimeLayout, cmd.Time)
	if err != nil {
		v.Add("appointment_time", appointment.ErrInvalidTime.Error())
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	// ── Verify both parties ────────────────────────────────────────────────
	doctor, err := s.users.GetByRole(ctx, cmd.DoctorID, domain.RoleDoctor)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, NewValidationError("doctor_id", "must reference an existing doctor")
		}
		return nil, fmt.Errorf("verifying doctor: %w", err)
	}

	patientID := caller.UserID
	if cmd.PatientID != nil {
		patientID = *cmd.PatientID
	}
	patient, err := s.users.GetByRole(ctx, patientID, domain.RolePatient)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, NewValidationError("patient_id", "must reference an existing patient")
		}
		return nil, fmt.Errorf("verifying patient: %w", err)
	}

	if err := authorize(s.metrics, caller, policy.CreateAppointment, policy.Resource{DoctorID: doctor.ID, PatientID: patient.ID}); err != nil {
		return nil, err
	}

	a := &appointment.Appointment{
		ID:        uuid.New(),
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
		Date:      date,
		Time:      at.Format(appointment.TimeLayout),
		Status:    appointment.StatusScheduled,
		CreatedBy: caller.UserID,
	}

	if err := s.repo.CreateIfNoActive(ctx, a); err != nil {
		if errors.Is(err, appointment.ErrDuplicateActive) {
			s.metrics.AppointmentConflicts.Inc()
			return nil, err
		}
		s.log.Error("failed to create appointment", zap.Error(err))
		return nil, fmt.Errorf("creating appointment: %w", err)
	}

	a.DoctorName = doctor.FullName()
	a.PatientName = patient.FullName()
	span.SetAttributes(attribute.String("appointment.id", a.ID.String()))
	s.metrics.AppointmentsTotal.WithLabelValues(string(a.Status)).Inc()
	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionCreate, "appointment", a.ID))

	return a, nil
}

func (s *AppointmentService) Get(ctx context.Context, caller *domain.Claims, id uuid.UUID, meta RequestMeta) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := authorize(s.metrics, caller, policy.ReadAppointment, resourceOf(a)); err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionRead, "appointment", id))
	return a, nil
}

// UpdateStatus moves the appointment to status. Unknown statuses are rejected
// before anything is loaded.
func (s *AppointmentService) UpdateStatus(ctx context.Context, caller *domain.Claims, id uuid.UUID, status appointment.AppointmentStatus, meta RequestMeta) (*appointment.Appointment, error) {
	ctx, span := tracer.Start(ctx, "AppointmentService.UpdateStatus",
		trace.WithAttributes(attribute.String("appointment.id", id.String()), attribute.String("appointment.status", string(status))))
	defer span.End()

	if !status.IsValid() {
		return nil, NewValidationError("status", appointment.ErrInvalidStatus.Error())
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := authorize(s.metrics, caller, actionForStatus(status), resourceOf(a)); err != nil {
		return nil, err
	}

	from := a.Status
	if err := a.TransitionTo(status, caller.UserID); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, a, from); err != nil {
		return nil, err
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(status)).Inc()

	e := auditEntry(caller, meta, domain.ActionUpdate, "appointment", id)
	if changes, err := json.Marshal(map[string]string{"from": string(from), "status": string(status)}); err == nil {
		e.Changes = string(changes)
	}
	s.auditSvc.LogAsync(ctx, e)

	return s.repo.GetByID(ctx, id)
}

// actionForStatus names the policy action guarding a move to status. A move
// back to scheduled is checked like a cancellation and then refused by the
// state machine.
func actionForStatus(status appointment.AppointmentStatus) policy.Action {
	switch status {
	case appointment.StatusConfirmed:
		return policy.ConfirmAppointment
	case appointment.StatusCompleted:
		return policy.CompleteAppointment
	}
	return policy.CancelAppointment
}

// List returns the caller's appointments. Doctors see the doctor side,
// patients the patient side, anyone else either side.
func (s *AppointmentService) List(ctx context.Context, caller *domain.Claims, status string, page, pageSize int) (*appointment.PagedAppointments, error) {
	scope := appointment.ScopeEither
	switch caller.Role {
	case domain.RoleDoctor:
		scope = appointment.ScopeDoctor
	case domain.RolePatient:
		scope = appointment.ScopePatient
	}
	return s.list(ctx, caller, scope, status, page, pageSize)
}

// ListAll returns every appointment the caller is a party to on either side.
func (s *AppointmentService) ListAll(ctx context.Context, caller *domain.Claims, status string, page, pageSize int) (*appointment.PagedAppointments, error) {
	return s.list(ctx, caller, appointment.ScopeEither, status, page, pageSize)
}

func (s *AppointmentService) list(ctx context.Context, caller *domain.Claims, scope appointment.Scope, status string, page, pageSize int) (*appointment.PagedAppointments, error) {
	q := &appointment.ListAppointmentsQuery{UserID: caller.UserID, Scope: scope}
	if status != "" {
		st := appointment.AppointmentStatus(status)
		if !st.IsValid() {
			return nil, NewValidationError("status", appointment.ErrInvalidStatus.Error())
		}
		q.Status = &st
	}
	q.Page, q.PageSize = normalizePage(page, pageSize)
	return s.repo.List(ctx, q)
}

// Delete removes the appointment together with its record, attachments and
// review, then releases the stored attachment files.
func (s *AppointmentService) Delete(ctx context.Context, caller *domain.Claims, id uuid.UUID, meta RequestMeta) error {
	ctx, span := tracer.Start(ctx, "AppointmentService.Delete")
	defer span.End()

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := authorize(s.metrics, caller, policy.DeleteAppointment, resourceOf(a)); err != nil {
		return err
	}

	paths, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}

	for _, p := range paths {
		if err := s.store.Delete(ctx, p); err != nil {
			s.log.Warn("failed to release attachment of deleted appointment",
				zap.String("appointment_id", id.String()),
				zap.String("path", p),
				zap.Error(err),
			)
		}
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionDelete, "appointment", id))
	return nil
}

func resourceOf(a *appointment.Appointment) policy.Resource {
	return policy.Resource{DoctorID: a.DoctorID, PatientID: a.PatientID}
}
