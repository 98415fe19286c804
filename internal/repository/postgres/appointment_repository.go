package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	cr "github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/clinical_record"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
)

var activeStatuses = []appointment.AppointmentStatus{appointment.StatusScheduled, appointment.StatusConfirmed}

type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// withNames selects appointment rows together with both parties' names.
func withNames(db *gorm.DB) *gorm.DB {
	return db.Model(&appointment.Appointment{}).
		Select("appointments.*, " +
			fmt.Sprintf(fullNameSQL, "d", "d") + " AS doctor_name, " +
			fmt.Sprintf(fullNameSQL, "p", "p") + " AS patient_name").
		Joins("JOIN users d ON d.id = appointments.doctor_id").
		Joins("JOIN users p ON p.id = appointments.patient_id")
}

func (r *AppointmentRepository) CreateIfNoActive(ctx context.Context, a *appointment.Appointment) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&appointment.Appointment{}).
			Where("doctor_id = ? AND patient_id = ? AND status IN ?", a.DoctorID, a.PatientID, activeStatuses).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return appointment.ErrDuplicateActive
		}
		return tx.Create(a).Error
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, appointment.ErrDuplicateActive), isUniqueViolation(err, constraintActiveAppointment):
		// The partial unique index catches a concurrent insert the count missed.
		return appointment.ErrDuplicateActive
	case isForeignKeyViolation(err):
		return user.ErrUserNotFound
	default:
		return fmt.Errorf("creating appointment: %w", err)
	}
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	err := withNames(r.db.WithContext(ctx)).Where("appointments.id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appointment.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting appointment: %w", err)
	}
	return &a, nil
}

func (r *AppointmentRepository) List(ctx context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	filter := func(db *gorm.DB) *gorm.DB {
		switch q.Scope {
		case appointment.ScopeDoctor:
			db = db.Where("appointments.doctor_id = ?", q.UserID)
		case appointment.ScopePatient:
			db = db.Where("appointments.patient_id = ?", q.UserID)
		default:
			db = db.Where("appointments.doctor_id = ? OR appointments.patient_id = ?", q.UserID, q.UserID)
		}
		if q.Status != nil {
			db = db.Where("appointments.status = ?", *q.Status)
		}
		return db
	}

	var total int64
	if err := filter(r.db.WithContext(ctx).Model(&appointment.Appointment{})).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}

	offset, limit := paginate(q.Page, q.PageSize)
	var rows []*appointment.Appointment
	err := filter(withNames(r.db.WithContext(ctx))).
		Order("appointments.appointment_date DESC, appointments.appointment_time DESC").
		Offset(offset).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}

	return &appointment.PagedAppointments{
		Appointments: rows,
		TotalCount:   total,
		Page:         offset/limit + 1,
		PageSize:     limit,
		TotalPages:   totalPages(total, limit),
	}, nil
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, a *appointment.Appointment, from appointment.AppointmentStatus) error {
	res := r.db.WithContext(ctx).Model(&appointment.Appointment{}).
		Where("id = ? AND status = ?", a.ID, from).
		Updates(map[string]any{
			"status":       a.Status,
			"cancelled_at": a.CancelledAt,
			"cancelled_by": a.CancelledBy,
			"completed_at": a.CompletedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("updating appointment status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&appointment.Appointment{}).Where("id = ?", a.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("checking appointment: %w", err)
		}
		if n == 0 {
			return appointment.ErrAppointmentNotFound
		}
		return appointment.ErrInvalidStatusTransition
	}
	return nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&cr.Attachment{}).
			Joins("JOIN clinical_records r ON r.id = clinical_record_attachments.record_id").
			Where("r.appointment_id = ?", id).
			Pluck("clinical_record_attachments.path", &paths).Error; err != nil {
			return err
		}

		// Record, attachments and review rows go with the appointment via ON DELETE CASCADE.
		res := tx.Delete(&appointment.Appointment{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return appointment.ErrAppointmentNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("deleting appointment: %w", err)
	}
	return paths, nil
}
