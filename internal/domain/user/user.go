package user

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Email        string      `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string      `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	FirstName    string      `gorm:"column:first_name;type:varchar(100);not null" json:"first_name"`
	LastName     string      `gorm:"column:last_name;type:varchar(100);not null" json:"last_name"`
	Role         domain.Role `gorm:"column:role;type:varchar(30);not null;index" json:"role"`

	// Profile
	Specialization string     `gorm:"column:specialization;type:varchar(150)" json:"specialization,omitempty"`
	Bio            string     `gorm:"column:bio;type:text" json:"bio,omitempty"`
	Photo          string     `gorm:"column:photo;type:varchar(500)" json:"photo,omitempty"` // storage path
	Address        string     `gorm:"column:address;type:text" json:"address,omitempty"`
	DateOfBirth    *time.Time `gorm:"column:dob;type:date" json:"dob,omitempty"`
	Gender         *Gender    `gorm:"column:gender;type:varchar(20)" json:"gender,omitempty"`

	IsActive bool `gorm:"column:is_active;not null;default:true" json:"is_active"`

	// Account lockout
	FailedLoginCount int        `gorm:"column:failed_login_count;default:0" json:"-"`
	LockedUntil      *time.Time `gorm:"column:locked_until" json:"-"`
	LastLoginAt      *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
	PasswordChangeAt *time.Time `gorm:"column:password_changed_at" json:"-"`

	MFAEnabled bool   `gorm:"column:mfa_enabled;default:false" json:"mfa_enabled"`
	MFASecret  string `gorm:"column:mfa_secret;type:varchar(255)" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && time.Now().Before(*u.LockedUntil)
}

func (u *User) IsDoctor() bool  { return u.Role == domain.RoleDoctor }
func (u *User) IsPatient() bool { return u.Role == domain.RolePatient }

// Claims returns the identity carried in access tokens for this user.
func (u *User) Claims() *domain.Claims {
	return &domain.Claims{UserID: u.ID, Email: u.Email, Role: u.Role}
}

type CreateUserCommand struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	Role           domain.Role
	Specialization string
	Bio            string
}

// UpdateProfileCommand carries a partial profile update. Nil fields are left unchanged.
type UpdateProfileCommand struct {
	FirstName      *string
	LastName       *string
	Bio            *string
	Specialization *string
	Address        *string
	DateOfBirth    *time.Time
	Gender         *Gender
	PasswordHash   *string
	Photo          *string
}

type ListUsersQuery struct {
	Role     domain.Role
	Page     int
	PageSize int
}

type PagedUsers struct {
	Users      []*User
	TotalCount int64
	Page       int
	PageSize   int
	TotalPages int
}
