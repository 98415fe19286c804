package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	cr "github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/clinical_record"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/storage"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

const mib = 1024 * 1024

var (
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
)

func fileUpload(name string, content []byte) storage.Upload {
	return storage.Upload{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(content)), nil },
	}
}

type recordFixture struct {
	svc     *ClinicalRecordService
	appts   *memAppointments
	records *memRecords
	store   *storage.MemoryStore

	doctor, patient, stranger *user.User
	appt                      *appointment.Appointment
}

func newRecordFixture(t *testing.T) *recordFixture {
	t.Helper()
	audit, _ := newTestAudit(t)
	users := newMemUsers()
	f := &recordFixture{
		appts: newMemAppointments(),
		store: storage.NewMemoryStore(),
	}
	f.records = newMemRecords(f.appts)
	validator := storage.NewValidator(5*mib, []string{"jpg", "jpeg", "png", "pdf", "doc", "docx"})
	f.svc = NewClinicalRecordService(f.records, f.appts, f.store, validator, 10, audit, metrics.NewNopCollector(), zap.NewNop())

	f.doctor = users.add(domain.RoleDoctor, "Gregory")
	f.patient = users.add(domain.RolePatient, "Ada")
	f.stranger = users.add(domain.RolePatient, "Eve")
	f.appt = f.appts.add(f.doctor.ID, f.patient.ID, appointment.StatusConfirmed)
	return f
}

func TestCreateRecord(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, claimsOf(f.doctor), &cr.CreateRecordCommand{
		AppointmentID: f.appt.ID,
		Diagnosis:     "  Seasonal allergies ",
		Prescription:  "Cetirizine 10mg",
	}, []storage.Upload{fileUpload("lab.pdf", pdfBytes), fileUpload("rash.png", pngBytes)}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Diagnosis != "Seasonal allergies" {
		t.Errorf("expected trimmed diagnosis, got %q", rec.Diagnosis)
	}
	if len(rec.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(rec.Attachments))
	}
	for i, a := range rec.Attachments {
		if a.Position != i {
			t.Errorf("expected position %d, got %d", i, a.Position)
		}
		if a.UploadedBy != cr.UploadedByDoctor {
			t.Errorf("expected uploaded_by doctor, got %s", a.UploadedBy)
		}
	}
	if rec.Attachments[0].MimeType != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", rec.Attachments[0].MimeType)
	}
	if f.store.Len() != 2 {
		t.Errorf("expected 2 stored files, got %d", f.store.Len())
	}

	_, err = f.svc.Create(ctx, claimsOf(f.doctor), &cr.CreateRecordCommand{AppointmentID: f.appt.ID, Diagnosis: "again"}, nil, testMeta)
	if !errors.Is(err, cr.ErrRecordExists) {
		t.Errorf("expected ErrRecordExists, got %v", err)
	}
}

func TestCreateRecord_Validation(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		cmd   cr.CreateRecordCommand
		field string
	}{
		{"missing diagnosis", cr.CreateRecordCommand{AppointmentID: f.appt.ID, Diagnosis: "   "}, "diagnosis"},
		{"missing appointment", cr.CreateRecordCommand{Diagnosis: "Flu"}, "appointment_id"},
		{"unknown appointment", cr.CreateRecordCommand{AppointmentID: uuid.New(), Diagnosis: "Flu"}, "appointment_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd
			_, err := f.svc.Create(ctx, claimsOf(f.doctor), &cmd, nil, testMeta)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Errorf("expected error on %s, got %v", tt.field, ve.Fields)
			}
		})
	}

	_, err := f.svc.Create(ctx, claimsOf(f.patient), &cr.CreateRecordCommand{AppointmentID: f.appt.ID, Diagnosis: "Flu"}, nil, testMeta)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected patient to be forbidden, got %v", err)
	}
}

func TestCreateRecord_OversizedUploadStoresNothing(t *testing.T) {
	f := newRecordFixture(t)

	big := storage.Upload{
		Name: "scan.pdf",
		Size: 6 * mib,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(pdfBytes)), nil },
	}

	_, err := f.svc.Create(context.Background(), claimsOf(f.doctor), &cr.CreateRecordCommand{
		AppointmentID: f.appt.ID,
		Diagnosis:     "Fracture",
	}, []storage.Upload{fileUpload("ok.pdf", pdfBytes), big}, testMeta)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := ve.Fields["files.1"]; !ok {
		t.Errorf("expected error keyed files.1, got %v", ve.Fields)
	}
	if f.store.Len() != 0 {
		t.Errorf("expected nothing stored, got %d files", f.store.Len())
	}
	if f.records.count() != 0 {
		t.Errorf("expected no record, got %d", f.records.count())
	}
}

func TestCreateRecord_RejectsDisallowedExtension(t *testing.T) {
	f := newRecordFixture(t)

	_, err := f.svc.Create(context.Background(), claimsOf(f.doctor), &cr.CreateRecordCommand{
		AppointmentID: f.appt.ID,
		Diagnosis:     "Fracture",
	}, []storage.Upload{fileUpload("run.exe", []byte("MZ"))}, testMeta)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := ve.Fields["files.0"]; !ok {
		t.Errorf("expected error keyed files.0, got %v", ve.Fields)
	}
}

func TestUpdateRecord(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, claimsOf(f.doctor), &cr.CreateRecordCommand{
		AppointmentID: f.appt.ID, Diagnosis: "Flu", Notes: "rest",
	}, []storage.Upload{fileUpload("a.pdf", pdfBytes)}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := f.svc.Update(ctx, claimsOf(f.doctor), rec.ID, &cr.UpdateRecordCommand{
		Diagnosis: ptr("Influenza A"),
	}, []storage.Upload{fileUpload("b.pdf", pdfBytes)}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Diagnosis != "Influenza A" {
		t.Errorf("expected diagnosis replaced, got %q", updated.Diagnosis)
	}
	if updated.Notes != "rest" {
		t.Errorf("expected notes unchanged, got %q", updated.Notes)
	}
	if len(updated.Attachments) != 2 || updated.Attachments[1].Position != 1 || updated.Attachments[1].Name != "b.pdf" {
		t.Errorf("expected b.pdf appended at position 1, got %+v", updated.Attachments)
	}

	_, err = f.svc.Update(ctx, claimsOf(f.patient), rec.ID, &cr.UpdateRecordCommand{Notes: ptr("x")}, nil, testMeta)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected patient update to be forbidden, got %v", err)
	}
}

func TestUploadPatientFiles(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	res, err := f.svc.UploadPatientFiles(ctx, claimsOf(f.patient), f.appt.ID,
		[]storage.Upload{fileUpload("referral.pdf", pdfBytes)}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Record.Diagnosis != cr.PatientUploadDiagnosis {
		t.Errorf("expected placeholder diagnosis, got %q", res.Record.Diagnosis)
	}
	if res.TotalFiles != 1 || res.PatientFiles != 1 {
		t.Errorf("expected 1/1 files, got %d/%d", res.TotalFiles, res.PatientFiles)
	}
	if res.Files[0].UploadedBy != cr.UploadedByPatient || res.Files[0].UploadedAt.IsZero() {
		t.Errorf("expected patient tag and upload time, got %+v", res.Files[0])
	}

	res, err = f.svc.UploadPatientFiles(ctx, claimsOf(f.patient), f.appt.ID,
		[]storage.Upload{fileUpload("xray.png", pngBytes), fileUpload("notes.pdf", pdfBytes)}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.records.count() != 1 {
		t.Errorf("expected the record to be reused, got %d records", f.records.count())
	}
	if res.TotalFiles != 3 || res.PatientFiles != 3 {
		t.Errorf("expected 3/3 files, got %d/%d", res.TotalFiles, res.PatientFiles)
	}
	if res.Files[0].Position != 1 || res.Files[1].Position != 2 {
		t.Errorf("expected positions to continue at 1, got %d and %d", res.Files[0].Position, res.Files[1].Position)
	}
}

func TestUploadPatientFiles_Rules(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	_, err := f.svc.UploadPatientFiles(ctx, claimsOf(f.patient), f.appt.ID, nil, testMeta)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for no files, got %v", err)
	}

	_, err = f.svc.UploadPatientFiles(ctx, claimsOf(f.doctor), f.appt.ID,
		[]storage.Upload{fileUpload("a.pdf", pdfBytes)}, testMeta)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected doctor to be forbidden, got %v", err)
	}

	_, err = f.svc.UploadPatientFiles(ctx, claimsOf(f.stranger), f.appt.ID,
		[]storage.Upload{fileUpload("a.pdf", pdfBytes)}, testMeta)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected stranger to be forbidden, got %v", err)
	}

	if f.records.count() != 0 || f.store.Len() != 0 {
		t.Errorf("expected nothing created, got %d records and %d files", f.records.count(), f.store.Len())
	}
}

func TestDeleteFile(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, claimsOf(f.doctor), &cr.CreateRecordCommand{AppointmentID: f.appt.ID, Diagnosis: "Flu"},
		[]storage.Upload{fileUpload("a.pdf", pdfBytes), fileUpload("b.pdf", pdfBytes)}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	up, err := f.svc.UploadPatientFiles(ctx, claimsOf(f.patient), f.appt.ID,
		[]storage.Upload{fileUpload("c.pdf", pdfBytes)}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doctorFile := rec.Attachments[0]
	patientFile := up.Files[0]

	t.Run("patient cannot delete the doctor's file", func(t *testing.T) {
		_, err := f.svc.DeleteFile(ctx, claimsOf(f.patient), rec.ID, doctorFile.ID, testMeta)
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		got, _ := f.records.GetByID(ctx, rec.ID)
		if len(got.Attachments) != 3 {
			t.Errorf("expected 3 attachments to remain, got %d", len(got.Attachments))
		}
		if f.store.Len() != 3 {
			t.Errorf("expected 3 stored files, got %d", f.store.Len())
		}
	})

	t.Run("stranger cannot delete", func(t *testing.T) {
		_, err := f.svc.DeleteFile(ctx, claimsOf(f.stranger), rec.ID, patientFile.ID, testMeta)
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("doctor deletes the first file", func(t *testing.T) {
		got, err := f.svc.DeleteFile(ctx, claimsOf(f.doctor), rec.ID, doctorFile.ID, testMeta)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got.Attachments) != 2 {
			t.Fatalf("expected 2 attachments, got %d", len(got.Attachments))
		}
		if got.Attachments[0].Name != "b.pdf" || got.Attachments[1].Name != "c.pdf" {
			t.Errorf("expected order b.pdf, c.pdf, got %s, %s", got.Attachments[0].Name, got.Attachments[1].Name)
		}
		for i, a := range got.Attachments {
			if a.Position != i {
				t.Errorf("expected dense position %d, got %d", i, a.Position)
			}
		}
		if ok, _ := f.store.Exists(ctx, doctorFile.Path); ok {
			t.Error("expected stored file to be deleted")
		}
	})

	t.Run("patient deletes own upload", func(t *testing.T) {
		if _, err := f.svc.DeleteFile(ctx, claimsOf(f.patient), rec.ID, patientFile.ID, testMeta); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("unknown file", func(t *testing.T) {
		_, err := f.svc.DeleteFile(ctx, claimsOf(f.doctor), rec.ID, uuid.New(), testMeta)
		if !errors.Is(err, cr.ErrAttachmentNotFound) {
			t.Errorf("expected ErrAttachmentNotFound, got %v", err)
		}
	})
}

func TestDownloadFile(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, claimsOf(f.doctor), &cr.CreateRecordCommand{AppointmentID: f.appt.ID, Diagnosis: "Flu"},
		[]storage.Upload{fileUpload("lab.pdf", pdfBytes)}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	att := rec.Attachments[0]

	got, rc, err := f.svc.DownloadFile(ctx, claimsOf(f.patient), rec.ID, att.ID, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if got.Name != "lab.pdf" || !bytes.Equal(body, pdfBytes) {
		t.Errorf("expected lab.pdf contents, got %q (%d bytes)", got.Name, len(body))
	}

	if _, _, err := f.svc.DownloadFile(ctx, claimsOf(f.stranger), rec.ID, att.ID, testMeta); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	if err := f.store.Delete(ctx, att.Path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := f.svc.DownloadFile(ctx, claimsOf(f.doctor), rec.ID, att.ID, testMeta); !errors.Is(err, cr.ErrAttachmentNotFound) {
		t.Errorf("expected ErrAttachmentNotFound for missing bytes, got %v", err)
	}
}

func TestListRecords_AdminSeesAll(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, claimsOf(f.doctor), &cr.CreateRecordCommand{AppointmentID: f.appt.ID, Diagnosis: "Flu"}, nil, testMeta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mine, _ := f.svc.List(ctx, claimsOf(f.patient))
	if len(mine) != 1 {
		t.Errorf("expected patient to see 1 record, got %d", len(mine))
	}
	theirs, _ := f.svc.List(ctx, claimsOf(f.stranger))
	if len(theirs) != 0 {
		t.Errorf("expected stranger to see 0 records, got %d", len(theirs))
	}
	all, _ := f.svc.List(ctx, &domain.Claims{UserID: uuid.New(), Role: domain.RoleAdmin})
	if len(all) != 1 {
		t.Errorf("expected admin to see 1 record, got %d", len(all))
	}
}
