// Package policy is the single place that decides whether an identity may
// act on an appointment, a clinical record or a review.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
)

var ErrForbidden = errors.New("forbidden")

type Action string

const (
	CreateAppointment   Action = "create:appointment"
	ReadAppointment     Action = "read:appointment"
	ConfirmAppointment  Action = "confirm:appointment"
	CompleteAppointment Action = "complete:appointment"
	CancelAppointment   Action = "cancel:appointment"
	DeleteAppointment   Action = "delete:appointment"

	ReadClinicalRecord  Action = "read:clinical_record"
	WriteClinicalRecord Action = "write:clinical_record"
	UploadPatientFiles  Action = "upload:patient_files"
	DownloadAttachment  Action = "download:attachment"
	DeleteAttachment    Action = "delete:attachment"

	CreateReview Action = "create:review"
	UpdateReview Action = "update:review"
	DeleteReview Action = "delete:review"
)

// Resource holds the ownership attributes the rules look at. DoctorID and
// PatientID are the appointment parties; OwnerID is the author of a review
// or the uploader of an attachment.
type Resource struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	OwnerID   uuid.UUID
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Evaluate applies the rule for action. Unknown actions are denied.
func Evaluate(subject *domain.Claims, action Action, res Resource) Decision {
	if subject == nil {
		return deny("no identity")
	}

	id := subject.UserID
	isDoctor := id == res.DoctorID
	isPatient := id == res.PatientID

	switch action {
	case CreateAppointment, ConfirmAppointment, CompleteAppointment, CancelAppointment, DeleteAppointment:
		if subject.Role == domain.RoleAdmin {
			return deny("admins cannot modify appointments")
		}
	}

	switch action {
	case CreateAppointment, CancelAppointment, DeleteAppointment:
		if isDoctor || isPatient {
			return allow("appointment party")
		}
		return deny("not a party to the appointment")

	case ConfirmAppointment, CompleteAppointment:
		if isDoctor {
			return allow("appointment doctor")
		}
		return deny("only the doctor can " + verb(action) + " the appointment")

	case ReadAppointment, ReadClinicalRecord, DownloadAttachment:
		if subject.Role == domain.RoleAdmin {
			return allow("admin read")
		}
		if isDoctor || isPatient {
			return allow("appointment party")
		}
		return deny("not a party to the appointment")

	case WriteClinicalRecord:
		if subject.Role == domain.RoleDoctor && isDoctor {
			return allow("appointment doctor")
		}
		return deny("only the appointment's doctor can write the record")

	case UploadPatientFiles, CreateReview:
		if subject.Role == domain.RolePatient && isPatient {
			return allow("appointment patient")
		}
		return deny("only the appointment's patient can do this")

	case DeleteAttachment:
		if isDoctor {
			return allow("appointment doctor")
		}
		if isPatient && id == res.OwnerID {
			return allow("uploader")
		}
		return deny("only the doctor or the uploading patient can delete this file")

	case UpdateReview, DeleteReview:
		if id == res.OwnerID {
			return allow("author")
		}
		return deny("only the author can change this review")
	}

	return deny("unknown action " + string(action))
}

// Authorize returns nil when subject may perform action on res, otherwise an
// error wrapping ErrForbidden.
func Authorize(subject *domain.Claims, action Action, res Resource) error {
	d := Evaluate(subject, action, res)
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
}

func verb(a Action) string {
	v, _, _ := strings.Cut(string(a), ":")
	return v
}
