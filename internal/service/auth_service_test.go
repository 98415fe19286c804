package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

func newAuthFixture(t *testing.T) (*AuthService, *memUsers, *memTokens) {
	t.Helper()
	audit, _ := newTestAudit(t)
	users := newMemUsers()
	tokens := newMemTokens()
	jwtm := auth.NewJWTManager(config.JWTConfig{
		Secret:          "test-secret-that-is-long-enough-for-hs256",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "medbook-test",
	})
	svc := NewAuthService(users, tokens, jwtm, audit, metrics.NewNopCollector(), "medbook-test", zap.NewNop())
	return svc, users, tokens
}

func registerPatient(t *testing.T, svc *AuthService, email string) *user.User {
	t.Helper()
	u, _, err := svc.Register(context.Background(), &user.CreateUserCommand{
		Email: email, Password: "correct-horse", FirstName: "Ada", LastName: "Lovelace", Role: domain.RolePatient,
	}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return u
}

func TestRegister(t *testing.T) {
	svc, _, tokens := newAuthFixture(t)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, &user.CreateUserCommand{
		Email: "  Ada@Example.com ", Password: "correct-horse", FirstName: "Ada", Role: domain.RolePatient,
	}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Email != "ada@example.com" {
		t.Errorf("expected normalized email, got %q", u.Email)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct-horse")) != nil {
		t.Error("expected password to be stored as a bcrypt hash")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected a token pair")
	}
	if tokens.active(u.ID) != 1 {
		t.Errorf("expected 1 stored refresh token, got %d", tokens.active(u.ID))
	}

	tests := []struct {
		name  string
		cmd   user.CreateUserCommand
		field string
	}{
		{"admin role", user.CreateUserCommand{Email: "x@example.com", Password: "correct-horse", FirstName: "X", Role: domain.RoleAdmin}, "role"},
		{"short password", user.CreateUserCommand{Email: "y@example.com", Password: "short", FirstName: "Y", Role: domain.RolePatient}, "password"},
		{"duplicate email", user.CreateUserCommand{Email: "ada@example.com", Password: "correct-horse", FirstName: "Ada", Role: domain.RolePatient}, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd
			_, _, err := svc.Register(ctx, &cmd, testMeta)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Errorf("expected error on %s, got %v", tt.field, ve.Fields)
			}
		})
	}
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	svc, users, _ := newAuthFixture(t)
	u := registerPatient(t, svc, "ada@example.com")
	ctx := context.Background()

	for i := 0; i < maxFailedAttempts; i++ {
		if _, _, err := svc.Login(ctx, "ada@example.com", "wrong-password", "", testMeta); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	stored, _ := users.GetByID(ctx, u.ID)
	if !stored.IsLocked() {
		t.Fatal("expected account to be locked")
	}

	if _, _, err := svc.Login(ctx, "ada@example.com", "correct-horse", "", testMeta); !errors.Is(err, ErrAccountLocked) {
		t.Errorf("expected ErrAccountLocked even with the right password, got %v", err)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	if _, _, err := svc.Login(context.Background(), "nobody@example.com", "whatever1", "", testMeta); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_Success(t *testing.T) {
	svc, users, _ := newAuthFixture(t)
	u := registerPatient(t, svc, "ada@example.com")
	ctx := context.Background()

	if _, _, err := svc.Login(ctx, "ada@example.com", "nope-nope", "", testMeta); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	got, pair, err := svc.Login(ctx, "ADA@example.com", "correct-horse", "", testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != u.ID || pair.AccessToken == "" {
		t.Errorf("expected tokens for %s", u.ID)
	}
	stored, _ := users.GetByID(ctx, u.ID)
	if stored.FailedLoginCount != 0 || stored.LastLoginAt == nil {
		t.Errorf("expected login bookkeeping reset, got count %d last %v", stored.FailedLoginCount, stored.LastLoginAt)
	}
}

func TestMFA_EnrollEnableLogin(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	u := registerPatient(t, svc, "ada@example.com")
	ctx := context.Background()

	enrollment, err := svc.EnrollMFA(ctx, claimsOf(u))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enrollment.Secret == "" || enrollment.URL == "" {
		t.Fatal("expected secret and otpauth url")
	}

	if err := svc.EnableMFA(ctx, claimsOf(u), "000000", testMeta); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected ErrInvalidMFACode, got %v", err)
	}

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.EnableMFA(ctx, claimsOf(u), code, testMeta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := svc.Login(ctx, "ada@example.com", "correct-horse", "", testMeta); !errors.Is(err, ErrMFARequired) {
		t.Errorf("expected ErrMFARequired, got %v", err)
	}

	code, _ = totp.GenerateCode(enrollment.Secret, time.Now())
	if _, _, err := svc.Login(ctx, "ada@example.com", "correct-horse", code, testMeta); err != nil {
		t.Errorf("expected login with code to succeed, got %v", err)
	}
}

func TestRefresh_RotatesAndDetectsReuse(t *testing.T) {
	svc, _, tokens := newAuthFixture(t)
	ctx := context.Background()

	u, first, err := svc.Register(ctx, &user.CreateUserCommand{
		Email: "ada@example.com", Password: "correct-horse", FirstName: "Ada", Role: domain.RolePatient,
	}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("expected a new refresh token")
	}
	if tokens.active(u.ID) != 1 {
		t.Errorf("expected exactly 1 active refresh token, got %d", tokens.active(u.ID))
	}

	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected reuse to be rejected, got %v", err)
	}
	if tokens.active(u.ID) != 0 {
		t.Errorf("expected reuse to revoke all sessions, %d remain", tokens.active(u.ID))
	}

	if _, err := svc.Refresh(ctx, second.AccessToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected access token to be refused, got %v", err)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	svc, _, tokens := newAuthFixture(t)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, &user.CreateUserCommand{
		Email: "ada@example.com", Password: "correct-horse", FirstName: "Ada", Role: domain.RolePatient,
	}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other := registerPatient(t, svc, "eve@example.com")

	if err := svc.Logout(ctx, claimsOf(other), pair.RefreshToken, testMeta); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden revoking someone else's token, got %v", err)
	}

	if err := svc.Logout(ctx, claimsOf(u), pair.RefreshToken, testMeta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.active(u.ID) != 0 {
		t.Errorf("expected token revoked, %d active", tokens.active(u.ID))
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected refresh after logout to fail, got %v", err)
	}
}
