package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/storage"
)

// UpdateProfileInput is a partial profile update as received from a client.
// Nil fields are left unchanged.
type UpdateProfileInput struct {
	FirstName      *string
	LastName       *string
	Bio            *string
	Specialization *string
	Address        *string
	DateOfBirth    *string // YYYY-MM-DD
	Gender         *string
	Password       *string
	Photo          *storage.Upload
}

type UserService struct {
	users    user.Repository
	store    storage.Store
	photos   *storage.Validator
	auditSvc *AuditService
	log      *zap.Logger
	now      func() time.Time
}

func NewUserService(users user.Repository, store storage.Store, uploads *storage.Validator, auditSvc *AuditService, log *zap.Logger) *UserService {
	return &UserService{
		users:    users,
		store:    store,
		photos:   uploads.Restrict("jpg", "jpeg", "png"),
		auditSvc: auditSvc,
		log:      log,
		now:      time.Now,
	}
}

func (s *UserService) Me(ctx context.Context, caller *domain.Claims) (*user.User, error) {
	return s.users.GetByID(ctx, caller.UserID)
}

func (s *UserService) GetDoctor(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return s.users.GetByRole(ctx, id, domain.RoleDoctor)
}

func (s *UserService) ListDoctors(ctx context.Context, page, pageSize int) (*user.PagedUsers, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.users.ListByRole(ctx, &user.ListUsersQuery{Role: domain.RoleDoctor, Page: page, PageSize: pageSize})
}

// GetPatient returns a patient profile. Patients may only read their own.
func (s *UserService) GetPatient(ctx context.Context, caller *domain.Claims, id uuid.UUID, meta RequestMeta) (*user.User, error) {
	if caller.Role == domain.RolePatient && caller.UserID != id {
		return nil, ErrForbidden
	}

	p, err := s.users.GetByRole(ctx, id, domain.RolePatient)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionRead, "patient", id))
	return p, nil
}

func (s *UserService) ListPatients(ctx context.Context, page, pageSize int) (*user.PagedUsers, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.users.ListByRole(ctx, &user.ListUsersQuery{Role: domain.RolePatient, Page: page, PageSize: pageSize})
}

// UpdateProfile applies in to the caller's profile. A new photo replaces the
// previous one, which is then released from storage.
func (s *UserService) UpdateProfile(ctx context.Context, caller *domain.Claims, in *UpdateProfileInput, meta RequestMeta) (*user.User, error) {
	cmd, err := s.buildProfileCommand(in)
	if err != nil {
		return nil, err
	}

	current, err := s.users.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	var newPhoto string
	if in.Photo != nil {
		newPhoto, err = s.storePhoto(ctx, *in.Photo)
		if err != nil {
			return nil, err
		}
		cmd.Photo = &newPhoto
	}

	updated, err := s.users.UpdateProfile(ctx, caller.UserID, cmd)
	if err != nil {
		if newPhoto != "" {
			s.release(ctx, newPhoto)
		}
		return nil, err
	}

	if newPhoto != "" && current.Photo != "" && current.Photo != newPhoto {
		s.release(ctx, current.Photo)
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionUpdate, "user", caller.UserID))
	return updated, nil
}

func (s *UserService) buildProfileCommand(in *UpdateProfileInput) (*user.UpdateProfileCommand, error) {
	v := &ValidationError{}
	cmd := &user.UpdateProfileCommand{
		Bio:            in.Bio,
		Specialization: in.Specialization,
		Address:        in.Address,
	}

	if in.FirstName != nil {
		name := strings.TrimSpace(*in.FirstName)
		if name == "" {
			v.Add("first_name", "cannot be empty")
		}
		cmd.FirstName = &name
	}
	if in.LastName != nil {
		name := strings.TrimSpace(*in.LastName)
		cmd.LastName = &name
	}

	if in.DateOfBirth != nil {
		dob, err := time.ParseInLocation("2006-01-02", *in.DateOfBirth, time.UTC)
		switch {
		case err != nil:
			v.Add("dob", "must be formatted YYYY-MM-DD")
		case !dob.Before(startOfDay(s.now())):
			v.Add("dob", user.ErrInvalidDateOfBirth.Error())
		default:
			cmd.DateOfBirth = &dob
		}
	}

	if in.Gender != nil {
		g := user.Gender(strings.ToLower(*in.Gender))
		if !g.IsValid() {
			v.Add("gender", "must be one of male, female, other")
		}
		cmd.Gender = &g
	}

	if in.Password != nil {
		if err := validatePasswordStrength(*in.Password); err != nil {
			v.Add("password", err.Error())
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("hashing password: %w", err)
			}
			h := string(hash)
			cmd.PasswordHash = &h
		}
	}

	if in.Photo != nil {
		if _, err := s.photos.Check(*in.Photo); err != nil {
			v.Add("photo", err.Error())
		}
	}

	if err := v.orNil(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (s *UserService) storePhoto(ctx context.Context, u storage.Upload) (string, error) {
	mime, err := storage.DetectMIME(u)
	if err != nil {
		return "", err
	}
	rc, err := u.Open()
	if err != nil {
		return "", fmt.Errorf("opening photo: %w", err)
	}
	defer rc.Close()

	p, err := s.store.Put(ctx, storage.NamespaceProfilePhotos, storage.ObjectName(u.Name, s.now()), rc, u.Size, mime)
	if err != nil {
		return "", fmt.Errorf("storing photo: %w", err)
	}
	return p, nil
}

func (s *UserService) release(ctx context.Context, p string) {
	if err := s.store.Delete(ctx, p); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("failed to release stored photo", zap.String("path", p), zap.Error(err))
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
