package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/user"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
)

type AuthService interface {
	Register(ctx context.Context, cmd *user.CreateUserCommand, meta service.RequestMeta) (*user.User, *domain.TokenPair, error)
	Login(ctx context.Context, email, password, otpCode string, meta service.RequestMeta) (*user.User, *domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, caller *domain.Claims, refreshToken string, meta service.RequestMeta) error
	EnrollMFA(ctx context.Context, caller *domain.Claims) (*service.MFAEnrollment, error)
	EnableMFA(ctx context.Context, caller *domain.Claims, code string, meta service.RequestMeta) error
}

type AuthHandler struct {
	base
	svc AuthService
}

func NewAuthHandler(svc AuthService, log *zap.Logger, exposeErrors bool) *AuthHandler {
	return &AuthHandler{base: base{log: log, exposeErrors: exposeErrors}, svc: svc}
}

type registerRequest struct {
	Email          string `json:"email" binding:"required,email,max=255"`
	Password       string `json:"password" binding:"required,min=8,max=72"`
	FirstName      string `json:"first_name" binding:"required,max=100"`
	LastName       string `json:"last_name" binding:"max=100"`
	Role           string `json:"role" binding:"required,oneof=patient doctor"`
	Specialization string `json:"specialization" binding:"max=150"`
	Bio            string `json:"bio"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	OTPCode  string `json:"otp_code" binding:"omitempty,len=6,numeric"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type mfaCodeRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

type authResponse struct {
	User   *user.User        `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	u, tokens, err := h.svc.Register(c.Request.Context(), &user.CreateUserCommand{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Role:           domain.Role(req.Role),
		Specialization: req.Specialization,
		Bio:            req.Bio,
	}, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondCreated(c, "registration successful", authResponse{User: u, Tokens: tokens})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	u, tokens, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, req.OTPCode, requestMeta(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Message: "login successful", Data: authResponse{User: u, Tokens: tokens}})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondOK(c, tokens)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.svc.Logout(c.Request.Context(), claims, req.RefreshToken, requestMeta(c)); err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondMessage(c, "logged out")
}

func (h *AuthHandler) EnrollMFA(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}

	enrollment, err := h.svc.EnrollMFA(c.Request.Context(), claims)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondOK(c, enrollment)
}

func (h *AuthHandler) EnableMFA(c *gin.Context) {
	claims := caller(c)
	if claims == nil {
		return
	}
	var req mfaCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.svc.EnableMFA(c.Request.Context(), claims, req.Code, requestMeta(c)); err != nil {
		h.respondServiceError(c, err)
		return
	}
	respondMessage(c, "two-factor authentication enabled")
}
