package clinical_record

import "errors"

var (
	ErrRecordNotFound     = errors.New("clinical record not found")
	ErrRecordExists       = errors.New("a clinical record already exists for this appointment")
	ErrAttachmentNotFound = errors.New("file not found")
	ErrDiagnosisRequired  = errors.New("diagnosis is required")
	ErrNoFiles            = errors.New("at least one file is required")
)
