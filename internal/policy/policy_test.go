package policy

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
)

func TestAuthorize(t *testing.T) {
	doctor := &domain.Claims{UserID: uuid.New(), Role: domain.RoleDoctor}
	patient := &domain.Claims{UserID: uuid.New(), Role: domain.RolePatient}
	otherPatient := &domain.Claims{UserID: uuid.New(), Role: domain.RolePatient}
	admin := &domain.Claims{UserID: uuid.New(), Role: domain.RoleAdmin}

	appt := Resource{DoctorID: doctor.UserID, PatientID: patient.UserID}

	tests := []struct {
		name    string
		subject *domain.Claims
		action  Action
		res     Resource
		allowed bool
	}{
		{"patient books", patient, CreateAppointment, appt, true},
		{"doctor books", doctor, CreateAppointment, appt, true},
		{"stranger books for others", otherPatient, CreateAppointment, appt, false},
		{"admin books as party", admin, CreateAppointment, Resource{DoctorID: doctor.UserID, PatientID: admin.UserID}, false},

		{"doctor confirms", doctor, ConfirmAppointment, appt, true},
		{"patient confirms", patient, ConfirmAppointment, appt, false},
		{"doctor completes", doctor, CompleteAppointment, appt, true},
		{"patient completes", patient, CompleteAppointment, appt, false},
		{"patient cancels", patient, CancelAppointment, appt, true},
		{"doctor cancels", doctor, CancelAppointment, appt, true},
		{"stranger cancels", otherPatient, CancelAppointment, appt, false},
		{"admin cancels", admin, CancelAppointment, appt, false},
		{"patient deletes", patient, DeleteAppointment, appt, true},
		{"stranger deletes", otherPatient, DeleteAppointment, appt, false},
		{"admin deletes", admin, DeleteAppointment, appt, false},

		{"admin reads", admin, ReadAppointment, appt, true},
		{"party reads", patient, ReadAppointment, appt, true},
		{"stranger reads", otherPatient, ReadAppointment, appt, false},

		{"doctor writes record", doctor, WriteClinicalRecord, appt, true},
		{"patient writes record", patient, WriteClinicalRecord, appt, false},
		{"admin writes record", admin, WriteClinicalRecord, appt, false},
		{"patient uploads", patient, UploadPatientFiles, appt, true},
		{"doctor uploads as patient", doctor, UploadPatientFiles, appt, false},
		{"admin downloads", admin, DownloadAttachment, appt, true},

		{"doctor deletes any file", doctor, DeleteAttachment, Resource{DoctorID: doctor.UserID, PatientID: patient.UserID, OwnerID: patient.UserID}, true},
		{"patient deletes own file", patient, DeleteAttachment, Resource{DoctorID: doctor.UserID, PatientID: patient.UserID, OwnerID: patient.UserID}, true},
		{"patient deletes doctor file", patient, DeleteAttachment, Resource{DoctorID: doctor.UserID, PatientID: patient.UserID, OwnerID: doctor.UserID}, false},

		{"patient reviews", patient, CreateReview, appt, true},
		{"doctor reviews", doctor, CreateReview, appt, false},
		{"author updates review", patient, UpdateReview, Resource{OwnerID: patient.UserID}, true},
		{"other updates review", otherPatient, UpdateReview, Resource{OwnerID: patient.UserID}, false},
		{"author deletes review", patient, DeleteReview, Resource{OwnerID: patient.UserID}, true},
		{"admin deletes review", admin, DeleteReview, Resource{OwnerID: patient.UserID}, false},

		{"unknown action", doctor, Action("explode:appointment"), appt, false},
		{"no identity", nil, ReadAppointment, appt, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.subject, tt.action, tt.res)
			if tt.allowed && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tt.allowed {
				if err == nil {
					t.Fatal("expected forbidden, got nil")
				}
				if !errors.Is(err, ErrForbidden) {
					t.Fatalf("expected ErrForbidden, got %v", err)
				}
			}
		})
	}
}

func TestEvaluate_ReasonIsSet(t *testing.T) {
	d := Evaluate(&domain.Claims{UserID: uuid.New(), Role: domain.RolePatient}, ConfirmAppointment, Resource{})
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if d.Reason != "only the doctor can confirm the appointment" {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}
