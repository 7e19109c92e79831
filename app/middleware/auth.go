package middleware

import (
	"net/http"
	"strings"

	"github.com/vibast-solutions/ms-go-member/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	ContextKeyMemberID    = "member_id"
	ContextKeyMemberEmail = "member_email"
)

type accessTokenValidator interface {
	ValidateAccessToken(tokenString string) (*service.Claims, error)
}

type AuthMiddleware struct {
	authService accessTokenValidator
}

func NewAuthMiddleware(authService accessTokenValidator) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString, ok := BearerToken(c.Request().Header.Get("Authorization"))
		if !ok {
			logrus.Debug("Missing or malformed authorization header")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid authorization header",
			})
		}

		claims, err := m.authService.ValidateAccessToken(tokenString)
		if err != nil {
			logrus.Debug("Invalid or expired access token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid or expired token",
			})
		}

		c.Set(ContextKeyMemberID, claims.MemberID)
		c.Set(ContextKeyMemberEmail, claims.Email)

		return next(c)
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

// MemberIDFromContext returns the member id set by RequireAuth.
func MemberIDFromContext(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ContextKeyMemberID).(uint64)
	return id, ok && id != 0
}
