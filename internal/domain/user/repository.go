package user

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
)

type Repository interface {
	// Create persists a new user. Returns ErrEmailAlreadyExists on duplicate email.
	Create(ctx context.Context, u *User) error

	// GetByID returns ErrUserNotFound when the id is unknown.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByRole is GetByID restricted to one role; a user of another role is reported as not found.
	GetByRole(ctx context.Context, id uuid.UUID, role domain.Role) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)

	ListByRole(ctx context.Context, q *ListUsersQuery) (*PagedUsers, error)

	UpdateProfile(ctx context.Context, id uuid.UUID, cmd *UpdateProfileCommand) (*User, error)

	// Login bookkeeping
	UpdateLoginSuccess(ctx context.Context, id uuid.UUID) error
	IncrementFailedLogin(ctx context.Context, id uuid.UUID) (int, error)
	LockAccount(ctx context.Context, id uuid.UUID, until time.Time) error

	UpdateMFA(ctx context.Context, id uuid.UUID, secret string, enabled bool) error
}
