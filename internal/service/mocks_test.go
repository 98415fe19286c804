package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	cr "github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/clinical_record"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

// ── users ───────────────────────────────────────────────────────────────────

type memUsers struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*user.User
}

func newMemUsers() *memUsers {
	return &memUsers{rows: make(map[uuid.UUID]*user.User)}
}

func (m *memUsers) add(role domain.Role, first string) *user.User {
	u := &user.User{
		ID:        uuid.New(),
		Email:     strings.ToLower(first) + "-" + uuid.NewString()[:8] + "@example.com",
		FirstName: first,
		LastName:  "Test",
		Role:      role,
		IsActive:  true,
	}
	m.mu.Lock()
	m.rows[u.ID] = u
	m.mu.Unlock()
	return u
}

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.Email == u.Email {
			return user.ErrEmailAlreadyExists
		}
	}
	c := *u
	m.rows[u.ID] = &c
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (m *memUsers) GetByRole(ctx context.Context, id uuid.UUID, role domain.Role) (*user.User, error) {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != role {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *memUsers) ListByRole(_ context.Context, q *user.ListUsersQuery) (*user.PagedUsers, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &user.PagedUsers{Page: q.Page, PageSize: q.PageSize}
	for _, u := range m.rows {
		if u.Role == q.Role {
			c := *u
			out.Users = append(out.Users, &c)
		}
	}
	out.TotalCount = int64(len(out.Users))
	return out, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id uuid.UUID, cmd *user.UpdateProfileCommand) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&u.FirstName, cmd.FirstName)
	set(&u.LastName, cmd.LastName)
	set(&u.Bio, cmd.Bio)
	set(&u.Specialization, cmd.Specialization)
	set(&u.Address, cmd.Address)
	set(&u.PasswordHash, cmd.PasswordHash)
	set(&u.Photo, cmd.Photo)
	if cmd.DateOfBirth != nil {
		u.DateOfBirth = cmd.DateOfBirth
	}
	if cmd.Gender != nil {
		u.Gender = cmd.Gender
	}
	c := *u
	return &c, nil
}

func (m *memUsers) UpdateLoginSuccess(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.rows[id].FailedLoginCount = 0
	m.rows[id].LockedUntil = nil
	m.rows[id].LastLoginAt = &now
	return nil
}

func (m *memUsers) IncrementFailedLogin(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].FailedLoginCount++
	return m.rows[id].FailedLoginCount, nil
}

func (m *memUsers) LockAccount(_ context.Context, id uuid.UUID, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].LockedUntil = &until
	return nil
}

func (m *memUsers) UpdateMFA(_ context.Context, id uuid.UUID, secret string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].MFASecret = secret
	m.rows[id].MFAEnabled = enabled
	return nil
}

// ── appointments ────────────────────────────────────────────────────────────

type memAppointments struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*appointment.Appointment
	records *memRecords
}

func newMemAppointments() *memAppointments {
	return &memAppointments{rows: make(map[uuid.UUID]*appointment.Appointment)}
}

func (m *memAppointments) add(doctorID, patientID uuid.UUID, status appointment.AppointmentStatus) *appointment.Appointment {
	a := &appointment.Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      time.Now().UTC().AddDate(0, 0, 1),
		Time:      "10:00",
		Status:    status,
		CreatedBy: patientID,
	}
	m.mu.Lock()
	m.rows[a.ID] = a
	m.mu.Unlock()
	c := *a
	return &c
}

func (m *memAppointments) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memAppointments) CreateIfNoActive(_ context.Context, a *appointment.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.DoctorID == a.DoctorID && existing.PatientID == a.PatientID && existing.Status.IsActive() {
			return appointment.ErrDuplicateActive
		}
	}
	c := *a
	m.rows[a.ID] = &c
	return nil
}

func (m *memAppointments) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	c := *a
	return &c, nil
}

func (m *memAppointments) List(_ context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &appointment.PagedAppointments{Page: q.Page, PageSize: q.PageSize}
	for _, a := range m.rows {
		match := false
		switch q.Scope {
		case appointment.ScopeDoctor:
			match = a.DoctorID == q.UserID
		case appointment.ScopePatient:
			match = a.PatientID == q.UserID
		default:
			match = a.IsParty(q.UserID)
		}
		if match && (q.Status == nil || *q.Status == a.Status) {
			c := *a
			out.Appointments = append(out.Appointments, &c)
		}
	}
	out.TotalCount = int64(len(out.Appointments))
	return out, nil
}

func (m *memAppointments) UpdateStatus(_ context.Context, a *appointment.Appointment, from appointment.AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rows[a.ID]
	if !ok {
		return appointment.ErrAppointmentNotFound
	}
	if stored.Status != from {
		return appointment.ErrInvalidStatusTransition
	}
	c := *a
	m.rows[a.ID] = &c
	return nil
}

func (m *memAppointments) Delete(_ context.Context, id uuid.UUID) ([]string, error) {
	m.mu.Lock()
	if _, ok := m.rows[id]; !ok {
		m.mu.Unlock()
		return nil, appointment.ErrAppointmentNotFound
	}
	delete(m.rows, id)
	m.mu.Unlock()

	if m.records == nil {
		return nil, nil
	}
	return m.records.deleteForAppointment(id), nil
}

// ── clinical records ────────────────────────────────────────────────────────

type memRecords struct {
	mu    sync.Mutex
	appts *memAppointments
	rows  map[uuid.UUID]*cr.ClinicalRecord
}

func newMemRecords(appts *memAppointments) *memRecords {
	m := &memRecords{appts: appts, rows: make(map[uuid.UUID]*cr.ClinicalRecord)}
	appts.records = m
	return m
}

func cloneRecord(r *cr.ClinicalRecord) *cr.ClinicalRecord {
	c := *r
	c.Attachments = append([]cr.Attachment(nil), r.Attachments...)
	return &c
}

func (m *memRecords) enrich(r *cr.ClinicalRecord) *cr.ClinicalRecord {
	c := cloneRecord(r)
	if a, err := m.appts.GetByID(context.Background(), r.AppointmentID); err == nil {
		c.DoctorID = a.DoctorID
		c.PatientID = a.PatientID
		c.AppointmentStatus = string(a.Status)
	}
	return c
}

func (m *memRecords) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memRecords) deleteForAppointment(apptID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for id, r := range m.rows {
		if r.AppointmentID == apptID {
			for _, a := range r.Attachments {
				paths = append(paths, a.Path)
			}
			delete(m.rows, id)
		}
	}
	return paths
}

func (m *memRecords) findByAppointment(apptID uuid.UUID) *cr.ClinicalRecord {
	for _, r := range m.rows {
		if r.AppointmentID == apptID {
			return r
		}
	}
	return nil
}

func (m *memRecords) Create(ctx context.Context, r *cr.ClinicalRecord) error {
	if _, err := m.appts.GetByID(ctx, r.AppointmentID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findByAppointment(r.AppointmentID) != nil {
		return cr.ErrRecordExists
	}
	m.rows[r.ID] = cloneRecord(r)
	return nil
}

func (m *memRecords) EnsureForAppointment(_ context.Context, apptID, createdBy uuid.UUID) (*cr.ClinicalRecord, error) {
	m.mu.Lock()
	r := m.findByAppointment(apptID)
	if r == nil {
		r = &cr.ClinicalRecord{
			ID:            uuid.New(),
			AppointmentID: apptID,
			Diagnosis:     cr.PatientUploadDiagnosis,
			CreatedBy:     createdBy,
		}
		m.rows[r.ID] = r
	}
	m.mu.Unlock()
	return m.enrich(r), nil
}

func (m *memRecords) get(id uuid.UUID) (*cr.ClinicalRecord, error) {
	m.mu.Lock()
	r, ok := m.rows[id]
	m.mu.Unlock()
	if !ok {
		return nil, cr.ErrRecordNotFound
	}
	return m.enrich(r), nil
}

func (m *memRecords) GetByID(_ context.Context, id uuid.UUID) (*cr.ClinicalRecord, error) {
	return m.get(id)
}

func (m *memRecords) GetByAppointmentID(_ context.Context, apptID uuid.UUID) (*cr.ClinicalRecord, error) {
	m.mu.Lock()
	r := m.findByAppointment(apptID)
	m.mu.Unlock()
	if r == nil {
		return nil, cr.ErrRecordNotFound
	}
	return m.enrich(r), nil
}

func (m *memRecords) Update(_ context.Context, id uuid.UUID, cmd *cr.UpdateRecordCommand, add []cr.Attachment) (*cr.ClinicalRecord, error) {
	m.mu.Lock()
	r, ok := m.rows[id]
	if !ok {
		m.mu.Unlock()
		return nil, cr.ErrRecordNotFound
	}
	r.Apply(cmd)
	r.AppendAttachments(add)
	m.mu.Unlock()
	return m.get(id)
}

func (m *memRecords) RemoveAttachment(_ context.Context, recordID, attID uuid.UUID, release func(cr.Attachment) error) (*cr.ClinicalRecord, error) {
	m.mu.Lock()
	r, ok := m.rows[recordID]
	if !ok {
		m.mu.Unlock()
		return nil, cr.ErrRecordNotFound
	}
	working := cloneRecord(r)
	removed, err := working.RemoveAttachment(attID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := release(removed); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.rows[recordID] = working
	m.mu.Unlock()
	return m.get(recordID)
}

func (m *memRecords) List(_ context.Context, q *cr.ListRecordsQuery) ([]*cr.ClinicalRecord, error) {
	m.mu.Lock()
	rows := make([]*cr.ClinicalRecord, 0, len(m.rows))
	for _, r := range m.rows {
		rows = append(rows, r)
	}
	m.mu.Unlock()

	var out []*cr.ClinicalRecord
	for _, r := range rows {
		e := m.enrich(r)
		if q.All || e.DoctorID == q.UserID || e.PatientID == q.UserID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// ── reviews ─────────────────────────────────────────────────────────────────

type memReviews struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*review.Review
}

func newMemReviews() *memReviews {
	return &memReviews{rows: make(map[uuid.UUID]*review.Review)}
}

func (m *memReviews) Create(_ context.Context, r *review.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.AppointmentID == r.AppointmentID {
			return review.ErrReviewExists
		}
	}
	c := *r
	m.rows[r.ID] = &c
	return nil
}

func (m *memReviews) GetByID(_ context.Context, id uuid.UUID) (*review.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, review.ErrReviewNotFound
	}
	c := *r
	return &c, nil
}

func (m *memReviews) Update(_ context.Context, r *review.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[r.ID]; !ok {
		return review.ErrReviewNotFound
	}
	c := *r
	m.rows[r.ID] = &c
	return nil
}

func (m *memReviews) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return review.ErrReviewNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memReviews) ListByDoctor(_ context.Context, q *review.ListReviewsQuery) (*review.PagedReviews, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &review.PagedReviews{Page: q.Page, PageSize: q.PageSize}
	for _, r := range m.rows {
		if r.DoctorID == q.DoctorID {
			c := *r
			out.Reviews = append(out.Reviews, &c)
		}
	}
	out.TotalCount = int64(len(out.Reviews))
	return out, nil
}

// ── refresh tokens ──────────────────────────────────────────────────────────

type memTokens struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.RefreshToken
}

func newMemTokens() *memTokens {
	return &memTokens{rows: make(map[uuid.UUID]*domain.RefreshToken)}
}

func (m *memTokens) Create(_ context.Context, t *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *t
	m.rows[t.ID] = &c
	return nil
}

func (m *memTokens) GetByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.rows {
		if t.TokenHash == hash {
			c := *t
			return &c, nil
		}
	}
	return nil, domain.ErrRefreshTokenNotFound
}

func (m *memTokens) Revoke(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	t.RevokedAt = &now
	return true, nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.rows {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *memTokens) active(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.rows {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}

// ── audit ───────────────────────────────────────────────────────────────────

type memAudit struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func (m *memAudit) CreateBatch(_ context.Context, entries []*domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memAudit) all() []*domain.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AuditLog(nil), m.entries...)
}

func newTestAudit(t *testing.T) (*AuditService, *memAudit) {
	t.Helper()
	repo := &memAudit{}
	svc := newAuditService(repo, metrics.NewNopCollector(), zap.NewNop(), 100, 10, 10*time.Millisecond)
	t.Cleanup(svc.Shutdown)
	return svc, repo
}

func claimsOf(u *user.User) *domain.Claims {
	return u.Claims()
}

var testMeta = RequestMeta{IP: "127.0.0.1", RequestID: "req-test"}
