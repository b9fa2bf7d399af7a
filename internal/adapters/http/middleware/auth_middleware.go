package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AdminIDKey is the echo context key carrying the authenticated admin's id.
const AdminIDKey = "admin_id"

// TokenVerifier checks a bearer token and returns the admin id it encodes.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireAuth gates a route group behind a valid Authorization bearer token.
// Every failure mode answers with the same 401 body.
func RequireAuth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			}
			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if tokenString == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			}
			adminID, err := verifier.Verify(tokenString)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			}
			c.Set(AdminIDKey, adminID)
			return next(c)
		}
	}
}
