package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
)

const claimsKey = "claims"

// TokenValidator is satisfied by *auth.JWTManager.
type TokenValidator interface {
	ValidateAccessToken(token string) (*domain.Claims, error)
}

// Authenticate requires a valid bearer access token and stores its claims
// on the context.
func Authenticate(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.Header("WWW-Authenticate", `Bearer realm="medbook"`)
			abort(c, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := v.ValidateAccessToken(strings.TrimSpace(token))
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			abort(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func ClaimsFrom(c *gin.Context) (*domain.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*domain.Claims)
	return claims, ok && claims != nil
}

// RequireRole admits only callers holding one of roles. It must run after
// Authenticate.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "authentication required")
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			abort(c, http.StatusForbidden, "access denied")
			return
		}
		c.Next()
	}
}
