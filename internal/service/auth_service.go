package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked due to multiple failed login attempts")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrMFARequired        = errors.New("a one-time code is required")
	ErrInvalidMFACode     = errors.New("invalid one-time code")
)

const maxFailedAttempts = 5

const lockDuration = 15 * time.Minute

const minPasswordLength = 8

type RefreshTokenRepository interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	Revoke(ctx context.Context, id uuid.UUID) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

type AuthService struct {
	users      user.Repository
	tokens     RefreshTokenRepository
	jwtManager *auth.JWTManager
	auditSvc   *AuditService
	metrics    *metrics.Collector
	log        *zap.Logger
	mfaIssuer  string
	now        func() time.Time
}

func NewAuthService(
	users user.Repository,
	tokens RefreshTokenRepository,
	jwtManager *auth.JWTManager,
	auditSvc *AuditService,
	m *metrics.Collector,
	mfaIssuer string,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		jwtManager: jwtManager,
		auditSvc:   auditSvc,
		metrics:    m,
		log:        log,
		mfaIssuer:  mfaIssuer,
		now:        time.Now,
	}
}

// Register creates a patient or doctor account and signs it in.
func (s *AuthService) Register(ctx context.Context, cmd *user.CreateUserCommand, meta RequestMeta) (*user.User, *domain.TokenPair, error) {
	v := &ValidationError{}
	if cmd.Role != domain.RolePatient && cmd.Role != domain.RoleDoctor {
		v.Add("role", user.ErrInvalidRole.Error())
	}
	if err := validatePasswordStrength(cmd.Password); err != nil {
		v.Add("password", err.Error())
	}
	if strings.TrimSpace(cmd.FirstName) == "" {
		v.Add("first_name", "is required")
	}
	if err := v.orNil(); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &user.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(cmd.Email)),
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(cmd.FirstName),
		LastName:     strings.TrimSpace(cmd.LastName),
		Role:         cmd.Role,
		IsActive:     true,
	}
	if cmd.Role == domain.RoleDoctor {
		u.Specialization = strings.TrimSpace(cmd.Specialization)
		u.Bio = cmd.Bio
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailAlreadyExists) {
			return nil, nil, NewValidationError("email", "has already been taken")
		}
		return nil, nil, fmt.Errorf("creating user: %w", err)
	}

	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, nil, err
	}

	s.auditSvc.LogAsync(ctx, auditEntry(u.Claims(), meta, domain.ActionCreate, "user", u.ID))
	s.log.Info("user registered", zap.String("user_id", u.ID.String()), zap.String("role", string(u.Role)))

	return u, pair, nil
}

// Login verifies the password and, when enabled, the TOTP code.
func (s *AuthService) Login(ctx context.Context, email, password, otpCode string, meta RequestMeta) (*user.User, *domain.TokenPair, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			return nil, nil, fmt.Errorf("looking up user: %w", err)
		}
		// Hash anyway so response time does not reveal whether the email exists.
		_, _ = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		s.metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, nil, ErrInvalidCredentials
	}

	if !u.IsActive {
		s.metrics.LoginAttemptsTotal.WithLabelValues("inactive").Inc()
		return nil, nil, ErrAccountInactive
	}

	if u.IsLocked() {
		s.metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil, s.recordFailure(ctx, u, meta)
	}

	if u.MFAEnabled {
		if otpCode == "" {
			return nil, nil, ErrMFARequired
		}
		if !totp.Validate(otpCode, u.MFASecret) {
			return nil, nil, s.recordFailure(ctx, u, meta)
		}
	}

	if err := s.users.UpdateLoginSuccess(ctx, u.ID); err != nil {
		s.log.Warn("failed to record successful login", zap.String("user_id", u.ID.String()), zap.Error(err))
	}

	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.auditSvc.LogAsync(ctx, auditEntry(u.Claims(), meta, domain.ActionLogin, "user", u.ID))
	s.log.Info("user logged in",
		zap.String("user_id", u.ID.String()),
		zap.String("ip", meta.IP),
	)

	return u, pair, nil
}

func (s *AuthService) recordFailure(ctx context.Context, u *user.User, meta RequestMeta) error {
	s.metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
	s.log.Warn("failed login attempt",
		zap.String("user_id", u.ID.String()),
		zap.String("ip", meta.IP),
	)

	n, err := s.users.IncrementFailedLogin(ctx, u.ID)
	if err != nil {
		s.log.Error("failed to record failed login", zap.Error(err))
		return ErrInvalidCredentials
	}
	if n >= maxFailedAttempts {
		if err := s.users.LockAccount(ctx, u.ID, s.now().Add(lockDuration)); err != nil {
			s.log.Error("failed to lock account", zap.String("user_id", u.ID.String()), zap.Error(err))
		}
		s.log.Warn("account locked", zap.String("user_id", u.ID.String()), zap.Int("failed_attempts", n))
	}
	return ErrInvalidCredentials
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated revokes every session of the user.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	stored, err := s.tokens.GetByHash(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrRefreshTokenNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading refresh token: %w", err)
	}
	if stored.UserID != claims.UserID {
		return nil, ErrInvalidCredentials
	}

	revoked, err := s.tokens.Revoke(ctx, stored.ID)
	if err != nil {
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}
	if !revoked {
		s.log.Warn("refresh token reuse detected; revoking all sessions", zap.String("user_id", stored.UserID.String()))
		if err := s.tokens.RevokeAllForUser(ctx, stored.UserID); err != nil {
			s.log.Error("failed to revoke sessions", zap.Error(err))
		}
		return nil, ErrInvalidCredentials
	}
	if s.now().After(stored.ExpiresAt) {
		return nil, ErrInvalidCredentials
	}

	// Re-validate user is still active
	u, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil || !u.IsActive {
		return nil, ErrInvalidCredentials
	}

	return s.issueTokens(ctx, u)
}

// Logout revokes the given refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, caller *domain.Claims, refreshToken string, meta RequestMeta) error {
	if refreshToken != "" {
		stored, err := s.tokens.GetByHash(ctx, hashToken(refreshToken))
		switch {
		case errors.Is(err, domain.ErrRefreshTokenNotFound):
		case err != nil:
			return fmt.Errorf("loading refresh token: %w", err)
		case stored.UserID != caller.UserID:
			return ErrForbidden
		default:
			if _, err := s.tokens.Revoke(ctx, stored.ID); err != nil {
				return fmt.Errorf("revoking refresh token: %w", err)
			}
		}
	}

	s.auditSvc.LogAsync(ctx, auditEntry(caller, meta, domain.ActionLogout, "user", caller.UserID))
	return nil
}

type MFAEnrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

// EnrollMFA generates a new TOTP secret. MFA stays disabled until EnableMFA
// confirms a code generated from it.
func (s *AuthService) EnrollMFA(ctx context.Context, caller *domain.Claims) (*MFAEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.mfaIssuer,
		AccountName: caller.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("generating totp secret: %w", err)
	}

	if err := s.users.UpdateMFA(ctx, caller.UserID, key.Secret(), false); err != nil {
		return nil, err
	}

	return &MFAEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

func (s *AuthService) EnableMFA(ctx context.Context, caller *domain.Claims, code string, meta RequestMeta) error {
	u, err := s.users.GetByID(ctx, caller.UserID)
	if err != nil {
		return err
	}
	if u.MFASecret == "" {
		return NewValidationError("code", "enroll before enabling MFA")
	}
	if !totp.Validate(code, u.MFASecret) {
		return ErrInvalidMFACode
	}

	if err := s.users.UpdateMFA(ctx, u.ID, u.MFASecret, true); err != nil {
		return err
	}

	e := auditEntry(caller, meta, domain.ActionUpdate, "user", u.ID)
	e.Changes = `{"mfa_enabled":true}`
	s.auditSvc.LogAsync(ctx, e)
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, u *user.User) (*domain.TokenPair, error) {
	pair, err := s.jwtManager.GenerateTokenPair(u.Claims())
	if err != nil {
		s.log.Error("failed to generate token pair", zap.Error(err))
		return nil, fmt.Errorf("generating tokens: %w", err)
	}

	if err := s.tokens.Create(ctx, &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    u.ID,
		TokenHash: hashToken(pair.RefreshToken),
		ExpiresAt: s.now().Add(s.jwtManager.RefreshTTL()),
	}); err != nil {
		return nil, err
	}

	return pair, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func validatePasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("must be at least %d characters", minPasswordLength)
	}
	return nil
}
