package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	cr "github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/clinical_record"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/policy"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/storage"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

// PatientUploadResult is returned after a patient adds files to a record.
type PatientUploadResult struct {
	Files        []cr.Attachment    `json:"files"`
	Record       *cr.ClinicalRecord `json:"record"`
	TotalFiles   int                `json:"total_files"`
	PatientFiles int                `json:"patient_files"`
}

type ClinicalRecordService struct {
	repo     cr.Repository
	appts    appointment.Repository
	store    storage.Store
	files    *storage.Validator
	maxFiles int
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
	now      func() time.Time
}

func NewClinicalRecordService(
	repo cr.Repository,
	appts appointment.Repository,
	store storage.Store,
	files *storage.Validator,
	maxFiles int,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *ClinicalRecordService {
	return &ClinicalRecordService{
		repo:     repo,
		appts:    appts,
		store:    store,
		files:    files,
		maxFiles: maxFiles,
		auditSvc: auditSvc,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// Create writes the doctor's record for an appointment with optional files.
func (s *ClinicalRecordService) Create(ctx context.Context, caller *domain.Claims, cmd *cr.CreateRecordCommand, files []storage.Upload, meta RequestMeta) (*cr.ClinicalRecord, error) {
	ctx, span := tracer.Start(ctx, "ClinicalRecordService.Create")
	defer span.End()

	v := &ValidationError{}
	if strings.TrimSpace(cmd.Diagnosis) == "" {
		v.Add("diagnosis", cr.ErrDiagnosisRequired.Error())
	}
	if cmd.AppointmentID == uuid.Nil {
		v.Add("appointment_id", "is required")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	appt, err := s.appts.GetByID(ctx, cmd.AppointmentID)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return nil, NewValidationError("appointment_id", "does not exist")
		}
		return nil, err
	}

	if err := authorize(s.metrics, caller, policy.WriteClinicalRecord, resourceOf(appt)); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByAppointmentID(ctx, appt.ID); err == nil {
		return nil, cr.ErrRecordExists
	} else if !errors.Is(err, cr.ErrRecordNotFound) {
		return nil, err
	}

	atts, err := s.storeFiles(ctx, caller, cr.UploadedByDoctor, files)
	if err != nil {
		return nil, err
	}

	rec := &cr.ClinicalRecord{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Diagnosis:     strings.TrimSpace(cmd.Diagnosis),
		Prescription:  cmd.Prescription,
		Notes:         cmd.Notes,
		CreatedBy:     caller.UserID,
	}
	rec.AppendAttachments(atts)

	if err := s.repo.Create(ctx, rec); err != nil {
		s.release(ctx, atts)
		return nil, err
	}

	span.SetAttributes(attribute.String("clinical_record.id", rec.ID.String()))
	s.metrics.ClinicalRecordsCreated.Inc()
	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionCreate, "clinical_record", rec.ID))

	return s.repo.GetByID(ctx, rec.ID)
}

// GetByAppointment returns the record of an appointment.
func (s *ClinicalRecordService) GetByAppointment(ctx context.Context, caller *domain.Claims, appointmentID uuid.UUID, meta RequestMeta) (*cr.ClinicalRecord, error) {
	appt, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if err := authorize(s.metrics, caller, policy.ReadClinicalRecord, resourceOf(appt)); err != nil {
		return nil, err
	}

	rec, err := s.repo.GetByAppointmentID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionRead, "clinical_record", rec.ID))
	return rec, nil
}

// List returns the records of the caller's appointments; admins see all.
func (s *ClinicalRecordService) List(ctx context.Context, caller *domain.Claims) ([]*cr.ClinicalRecord, error) {
	return s.repo.List(ctx, &cr.ListRecordsQuery{
		UserID: caller.UserID,
		All:    caller.IsAdmin(),
	})
}

// Update replaces the textual fields present in cmd and appends files.
func (s *ClinicalRecordService) Update(ctx context.Context, caller *domain.Claims, recordID uuid.UUID, cmd *cr.UpdateRecordCommand, files []storage.Upload, meta RequestMeta) (*cr.ClinicalRecord, error) {
	ctx, span := tracer.Start(ctx, "ClinicalRecordService.Update")
	defer span.End()

	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if err := authorize(s.metrics, caller, policy.WriteClinicalRecord, recordResource(rec)); err != nil {
		return nil, err
	}

	if cmd.Diagnosis != nil {
		d := strings.TrimSpace(*cmd.Diagnosis)
		if d == "" {
			return nil, NewValidationError("diagnosis", "cannot be empty")
		}
		cmd.Diagnosis = &d
	}

	atts, err := s.storeFiles(ctx, caller, cr.UploadedByDoctor, files)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, recordID, cmd, atts)
	if err != nil {
		s.release(ctx, atts)
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionUpdate, "clinical_record", recordID))
	return updated, nil
}

// UploadPatientFiles attaches patient files to the appointment's record,
// creating a placeholder record when the doctor has not written one yet.
func (s *ClinicalRecordService) UploadPatientFiles(ctx context.Context, caller *domain.Claims, appointmentID uuid.UUID, files []storage.Upload, meta RequestMeta) (*PatientUploadResult, error) {
	ctx, span := tracer.Start(ctx, "ClinicalRecordService.UploadPatientFiles")
	defer span.End()

	if len(files) == 0 {
		return nil, NewValidationError("files", cr.ErrNoFiles.Error())
	}

	appt, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if err := authorize(s.metrics, caller, policy.UploadPatientFiles, resourceOf(appt)); err != nil {
		return nil, err
	}

	atts, err := s.storeFiles(ctx, caller, cr.UploadedByPatient, files)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.EnsureForAppointment(ctx, appointmentID, caller.UserID)
	if err != nil {
		s.release(ctx, atts)
		return nil, err
	}

	updated, err := s.repo.Update(ctx, rec.ID, nil, atts)
	if err != nil {
		s.release(ctx, atts)
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionUpdate, "clinical_record", rec.ID))

	return &PatientUploadResult{
		Files:        atts,
		Record:       updated,
		TotalFiles:   len(updated.Attachments),
		PatientFiles: updated.CountUploadedBy(cr.UploadedByPatient),
	}, nil
}

// DeleteFile removes one attachment and its stored bytes.
func (s *ClinicalRecordService) DeleteFile(ctx context.Context, caller *domain.Claims, recordID, fileID uuid.UUID, meta RequestMeta) (*cr.ClinicalRecord, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	att, err := rec.FindAttachment(fileID)
	if err != nil {
		return nil, err
	}

	res := recordResource(rec)
	res.OwnerID = att.UploadedByID
	if err := authorize(s.metrics, caller, policy.DeleteAttachment, res); err != nil {
		return nil, err
	}

	updated, err := s.repo.RemoveAttachment(ctx, recordID, fileID, func(a cr.Attachment) error {
		if err := s.store.Delete(ctx, a.Path); err != nil {
			return fmt.Errorf("deleting stored file: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e := auditEntry(caller, meta, domain.ActionDelete, "clinical_record_attachment", fileID)
	e.Changes = fmt.Sprintf(`{"record_id":%q}`, recordID.String())
	s.auditSvc.LogAsync(ctx, e)

	return updated, nil
}

// DownloadFile opens an attachment for streaming. The caller must close the reader.
func (s *ClinicalRecordService) DownloadFile(ctx context.Context, caller *domain.Claims, recordID, fileID uuid.UUID, meta RequestMeta) (*cr.Attachment, io.ReadCloser, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}

	if err := authorize(s.metrics, caller, policy.DownloadAttachment, recordResource(rec)); err != nil {
		return nil, nil, err
	}

	att, err := rec.FindAttachment(fileID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.store.Open(ctx, att.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("attachment missing from storage",
				zap.String("record_id", recordID.String()),
				zap.String("path", att.Path),
			)
			return nil, nil, cr.ErrAttachmentNotFound
		}
		return nil, nil, err
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionRead, "clinical_record_attachment", fileID))
	return att, rc, nil
}

// storeFiles validates every upload before writing any of them. When a
// write fails, the files already written are released.
func (s *ClinicalRecordService) storeFiles(ctx context.Context, caller *domain.Claims, by cr.UploaderRole, files []storage.Upload) ([]cr.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if s.maxFiles > 0 && len(files) > s.maxFiles {
		return nil, NewValidationError("files", fmt.Sprintf("at most %d files may be uploaded at once", s.maxFiles))
	}

	mimes, errs := s.files.CheckAll("files", files)
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	now := s.now()
	atts := make([]cr.Attachment, 0, len(files))
	for i, f := range files {
		p, err := s.put(ctx, f, storage.ObjectName(f.Name, now.Add(time.Duration(i))), mimes[i])
		if err != nil {
			s.release(ctx, atts)
			return nil, err
		}
		atts = append(atts, cr.Attachment{
			ID:           uuid.New(),
			Name:         f.Name,
			Path:         p,
			Size:         f.Size,
			MimeType:     mimes[i],
			UploadedBy:   by,
			UploadedByID: caller.UserID,
			UploadedAt:   now,
		})
	}

	s.metrics.AttachmentsUploadedTotal.WithLabelValues(string(by)).Add(float64(len(atts)))
	return atts, nil
}

func (s *ClinicalRecordService) put(ctx context.Context, f storage.Upload, name, mime string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	p, err := s.store.Put(ctx, storage.NamespaceClinicalRecords, name, rc, f.Size, mime)
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", f.Name, err)
	}
	return p, nil
}

func (s *ClinicalRecordService) release(ctx context.Context, atts []cr.Attachment) {
	for _, a := range atts {
		if err := s.store.Delete(ctx, a.Path); err != nil {
			s.log.Warn("failed to release stored file", zap.String("path", a.Path), zap.Error(err))
		}
	}
}

func recordResource(rec *cr.ClinicalRecord) policy.Resource {
	return policy.Resource{DoctorID: rec.DoctorID, PatientID: rec.PatientID}
}
