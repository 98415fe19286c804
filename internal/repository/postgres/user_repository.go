package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err, constraintUserEmail) {
			return user.ErrEmailAlreadyExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) GetByRole(ctx context.Context, id uuid.UUID, role domain.Role) (*user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).First(&u, "id = ? AND role = ?", id, role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", role, err)
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) ListByRole(ctx context.Context, q *user.ListUsersQuery) (*user.PagedUsers, error) {
	base := r.db.WithContext(ctx).Model(&user.User{}).Where("role = ? AND is_active", q.Role).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	offset, limit := paginate(q.Page, q.PageSize)
	var users []*user.User
	if err := base.Order("last_name ASC, first_name ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return &user.PagedUsers{
		Users:      users,
		TotalCount: total,
		Page:       offset/limit + 1,
		PageSize:   limit,
		TotalPages: totalPages(total, limit),
	}, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, cmd *user.UpdateProfileCommand) (*user.User, error) {
	updates := map[string]any{}
	if cmd.FirstName != nil {
		updates["first_name"] = *cmd.FirstName
	}
	if cmd.LastName != nil {
		updates["last_name"] = *cmd.LastName
	}
	if cmd.Bio != nil {
		updates["bio"] = *cmd.Bio
	}
	if cmd.Specialization != nil {
		updates["specialization"] = *cmd.Specialization
	}
	if cmd.Address != nil {
		updates["address"] = *cmd.Address
	}
	if cmd.DateOfBirth != nil {
		updates["dob"] = *cmd.DateOfBirth
	}
	if cmd.Gender != nil {
		updates["gender"] = string(*cmd.Gender)
	}
	if cmd.Photo != nil {
		updates["photo"] = *cmd.Photo
	}
	if cmd.PasswordHash != nil {
		updates["password_hash"] = *cmd.PasswordHash
		updates["password_changed_at"] = time.Now()
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("updating profile: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, user.ErrUserNotFound
		}
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) UpdateLoginSuccess(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Updates(map[string]any{
		"failed_login_count": 0,
		"locked_until":       nil,
		"last_login_at":      time.Now(),
	}).Error
}

func (r *UserRepository) IncrementFailedLogin(ctx context.Context, id uuid.UUID) (int, error) {
	u := user.User{ID: id}
	err := r.db.WithContext(ctx).Model(&u).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "failed_login_count"}}}).
		UpdateColumn("failed_login_count", gorm.Expr("failed_login_count + 1")).Error
	if err != nil {
		return 0, fmt.Errorf("incrementing failed logins: %w", err)
	}
	return u.FailedLoginCount, nil
}

func (r *UserRepository) LockAccount(ctx context.Context, id uuid.UUID, until time.Time) error {
	return r.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Updates(map[string]any{
		"locked_until":       until,
		"failed_login_count": 0,
	}).Error
}

func (r *UserRepository) UpdateMFA(ctx context.Context, id uuid.UUID, secret string, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Updates(map[string]any{
		"mfa_secret":  secret,
		"mfa_enabled": enabled,
	})
	if res.Error != nil {
		return fmt.Errorf("updating mfa: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return user.ErrUserNotFound
	}
	return nil
}
