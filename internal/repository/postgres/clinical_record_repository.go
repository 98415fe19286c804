package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	cr "github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/clinical_record"
)

type ClinicalRecordRepository struct {
	db *gorm.DB
}

func NewClinicalRecordRepository(db *gorm.DB) *ClinicalRecordRepository {
	return &ClinicalRecordRepository{db: db}
}

func orderedAttachments(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// enriched selects records joined with their appointment and party names.
func enriched(db *gorm.DB) *gorm.DB {
	return db.Model(&cr.ClinicalRecord{}).
		Select("clinical_records.*, " +
			"a.appointment_date AS appointment_date, a.status AS appointment_status, " +
			"a.doctor_id AS doctor_id, a.patient_id AS patient_id, " +
			fmt.Sprintf(fullNameSQL, "d", "d") + " AS doctor_name, " +
			fmt.Sprintf(fullNameSQL, "p", "p") + " AS patient_name").
		Joins("JOIN appointments a ON a.id = clinical_records.appointment_id").
		Joins("JOIN users d ON d.id = a.doctor_id").
		Joins("JOIN users p ON p.id = a.patient_id").
		Preload("Attachments", orderedAttachments)
}

func (r *ClinicalRecordRepository) Create(ctx context.Context, rec *cr.ClinicalRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(rec).Error; err != nil {
			return err
		}
		if len(rec.Attachments) > 0 {
			return tx.Create(&rec.Attachments).Error
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, constraintRecordAppointment):
		return cr.ErrRecordExists
	case isForeignKeyViolation(err):
		return appointment.ErrAppointmentNotFound
	default:
		return fmt.Errorf("creating clinical record: %w", err)
	}
}

func (r *ClinicalRecordRepository) EnsureForAppointment(ctx context.Context, appointmentID, createdBy uuid.UUID) (*cr.ClinicalRecord, error) {
	placeholder := &cr.ClinicalRecord{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		Diagnosis:     cr.PatientUploadDiagnosis,
		CreatedBy:     createdBy,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "appointment_id"}}, DoNothing: true}).
		Omit(clause.Associations).
		Create(placeholder).Error
	if err != nil {
		return nil, fmt.Errorf("ensuring clinical record: %w", err)
	}
	return r.GetByAppointmentID(ctx, appointmentID)
}

func (r *ClinicalRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*cr.ClinicalRecord, error) {
	return r.getWhere(ctx, "clinical_records.id = ?", id)
}

func (r *ClinicalRecordRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*cr.ClinicalRecord, error) {
	return r.getWhere(ctx, "clinical_records.appointment_id = ?", appointmentID)
}

func (r *ClinicalRecordRepository) getWhere(ctx context.Context, cond string, arg any) (*cr.ClinicalRecord, error) {
	var rec cr.ClinicalRecord
	err := enriched(r.db.WithContext(ctx)).Where(cond, arg).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cr.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting clinical record: %w", err)
	}
	return &rec, nil
}

// lockRecord loads the record row FOR UPDATE together with its attachments.
func lockRecord(tx *gorm.DB, id uuid.UUID) (*cr.ClinicalRecord, error) {
	var rec cr.ClinicalRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cr.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Where("record_id = ?", id).Order("position ASC").Find(&rec.Attachments).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ClinicalRecordRepository) Update(ctx context.Context, id uuid.UUID, cmd *cr.UpdateRecordCommand, add []cr.Attachment) (*cr.ClinicalRecord, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := lockRecord(tx, id)
		if err != nil {
			return err
		}

		rec.Apply(cmd)
		rec.AppendAttachments(add)

		if err := tx.Model(&cr.ClinicalRecord{}).Where("id = ?", id).Updates(map[string]any{
			"diagnosis":    rec.Diagnosis,
			"prescription": rec.Prescription,
			"notes":        rec.Notes,
			"updated_at":   time.Now(),
		}).Error; err != nil {
			return err
		}

		if len(add) > 0 {
			return tx.Create(&add).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, cr.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating clinical record: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *ClinicalRecordRepository) RemoveAttachment(
	ctx context.Context,
	recordID, attachmentID uuid.UUID,
	release func(cr.Attachment) error,
) (*cr.ClinicalRecord, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := lockRecord(tx, recordID)
		if err != nil {
			return err
		}

		before := make(map[uuid.UUID]int, len(rec.Attachments))
		for _, a := range rec.Attachments {
			before[a.ID] = a.Position
		}

		removed, err := rec.RemoveAttachment(attachmentID)
		if err != nil {
			return err
		}

		if err := tx.Delete(&cr.Attachment{}, "id = ? AND record_id = ?", removed.ID, recordID).Error; err != nil {
			return err
		}
		for _, a := range rec.Attachments {
			if before[a.ID] == a.Position {
				continue
			}
			if err := tx.Model(&cr.Attachment{}).Where("id = ?", a.ID).Update("position", a.Position).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&cr.ClinicalRecord{}).Where("id = ?", recordID).Update("updated_at", time.Now()).Error; err != nil {
			return err
		}

		if release != nil {
			return release(removed)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, cr.ErrRecordNotFound) || errors.Is(err, cr.ErrAttachmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("removing attachment: %w", err)
	}
	return r.GetByID(ctx, recordID)
}

func (r *ClinicalRecordRepository) List(ctx context.Context, q *cr.ListRecordsQuery) ([]*cr.ClinicalRecord, error) {
	db := enriched(r.db.WithContext(ctx))
	if !q.All {
		db = db.Where("a.doctor_id = ? OR a.patient_id = ?", q.UserID, q.UserID)
	}

	var records []*cr.ClinicalRecord
	if err := db.Order("a.appointment_date DESC, clinical_records.created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing clinical records: %w", err)
	}
	return records, nil
}
