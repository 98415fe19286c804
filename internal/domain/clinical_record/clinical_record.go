package clinical_record

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PatientUploadDiagnosis is the diagnosis of a record created implicitly by a
// patient's first upload.
const PatientUploadDiagnosis = "Patient uploaded documents - Awaiting doctor review"

// UploaderRole tags who put an attachment on the record.
type UploaderRole string

const (
	UploadedByDoctor  UploaderRole = "doctor"
	UploadedByPatient UploaderRole = "patient"
)

// Attachment is a stored file on a clinical record. ID is stable for the
// lifetime of the attachment; Position is the dense 0..n-1 display order.
type Attachment struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RecordID     uuid.UUID    `gorm:"column:record_id;type:uuid;not null;index:idx_attachment_record_position,priority:1" json:"record_id"`
	Position     int          `gorm:"column:position;not null;index:idx_attachment_record_position,priority:2" json:"position"`
	Name         string       `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Path         string       `gorm:"column:path;type:varchar(500);not null" json:"path"`
	Size         int64        `gorm:"column:size;not null" json:"size"`
	MimeType     string       `gorm:"column:mime_type;type:varchar(127)" json:"mime_type"`
	UploadedBy   UploaderRole `gorm:"column:uploaded_by;type:varchar(20);not null" json:"uploaded_by"`
	UploadedByID uuid.UUID    `gorm:"column:uploaded_by_id;type:uuid;not null" json:"uploaded_by_id"`
	UploadedAt   time.Time    `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
}

func (Attachment) TableName() string {
	return "clinical_record_attachments"
}

type ClinicalRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	AppointmentID uuid.UUID `gorm:"column:appointment_id;type:uuid;not null;uniqueIndex:uniq_clinical_record_appointment" json:"appointment_id"`

	Diagnosis    string `gorm:"column:diagnosis;type:text;not null" json:"diagnosis"`
	Prescription string `gorm:"column:prescription;type:text" json:"prescription,omitempty"`
	Notes        string `gorm:"column:notes;type:text" json:"notes,omitempty"` // PHI

	Attachments []Attachment `gorm:"foreignKey:RecordID;constraint:OnDelete:CASCADE" json:"files"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null" json:"created_by"`

	// Joined from the appointment by list queries.
	DoctorID          uuid.UUID  `gorm:"->;-:migration" json:"doctor_id,omitempty"`
	PatientID         uuid.UUID  `gorm:"->;-:migration" json:"patient_id,omitempty"`
	AppointmentDate   *time.Time `gorm:"->;-:migration" json:"-"`
	AppointmentStatus string     `gorm:"->;-:migration" json:"appointment_status,omitempty"`
	DoctorName        string     `gorm:"->;-:migration" json:"doctor_name,omitempty"`
	PatientName       string     `gorm:"->;-:migration" json:"patient_name,omitempty"`
}

func (ClinicalRecord) TableName() string {
	return "clinical_records"
}

func (r ClinicalRecord) MarshalJSON() ([]byte, error) {
	type alias ClinicalRecord
	out := struct {
		alias
		AppointmentDate string `json:"appointment_date,omitempty"`
		HasPatientFiles bool   `json:"has_patient_files"`
	}{alias: alias(r), HasPatientFiles: r.HasPatientFiles()}
	if out.Attachments == nil {
		out.Attachments = []Attachment{}
	}
	if r.AppointmentDate != nil {
		out.AppointmentDate = r.AppointmentDate.Format("2006-01-02")
	}
	return json.Marshal(out)
}

// AppendAttachments adds atts to the end of the record, continuing the
// position sequence. The attachments are modified in place.
func (r *ClinicalRecord) AppendAttachments(atts []Attachment) {
	next := len(r.Attachments)
	for i := range atts {
		atts[i].RecordID = r.ID
		atts[i].Position = next + i
		if atts[i].ID == uuid.Nil {
			atts[i].ID = uuid.New()
		}
	}
	r.Attachments = append(r.Attachments, atts...)
}

// RemoveAttachment drops the attachment with the given id and renumbers the
// remaining ones so positions stay dense. Relative order is preserved.
func (r *ClinicalRecord) RemoveAttachment(id uuid.UUID) (Attachment, error) {
	idx := -1
	for i := range r.Attachments {
		if r.Attachments[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Attachment{}, ErrAttachmentNotFound
	}

	removed := r.Attachments[idx]
	kept := make([]Attachment, 0, len(r.Attachments)-1)
	kept = append(kept, r.Attachments[:idx]...)
	kept = append(kept, r.Attachments[idx+1:]...)
	for i := range kept {
		kept[i].Position = i
	}
	r.Attachments = kept
	return removed, nil
}

func (r *ClinicalRecord) FindAttachment(id uuid.UUID) (*Attachment, error) {
	for i := range r.Attachments {
		if r.Attachments[i].ID == id {
			return &r.Attachments[i], nil
		}
	}
	return nil, ErrAttachmentNotFound
}

func (r *ClinicalRecord) CountUploadedBy(role UploaderRole) int {
	n := 0
	for _, a := range r.Attachments {
		if a.UploadedBy == role {
			n++
		}
	}
	return n
}

func (r *ClinicalRecord) HasPatientFiles() bool {
	return r.CountUploadedBy(UploadedByPatient) > 0
}

// Apply replaces the textual fields present in cmd.
func (r *ClinicalRecord) Apply(cmd *UpdateRecordCommand) {
	if cmd == nil {
		return
	}
	if cmd.Diagnosis != nil {
		r.Diagnosis = *cmd.Diagnosis
	}
	if cmd.Prescription != nil {
		r.Prescription = *cmd.Prescription
	}
	if cmd.Notes != nil {
		r.Notes = *cmd.Notes
	}
}

type CreateRecordCommand struct {
	AppointmentID uuid.UUID
	Diagnosis     string
	Prescription  string
	Notes         string
}

type UpdateRecordCommand struct {
	Diagnosis    *string
	Prescription *string
	Notes        *string
}

type ListRecordsQuery struct {
	UserID uuid.UUID
	// All lists every record regardless of UserID.
	All bool
}
