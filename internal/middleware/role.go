package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Roles carried in the "role" claim of staff tokens.
const (
	RoleStaff = "STAFF"
	RoleAdmin = "ADMIN"
)

// RequireRole returns a middleware function that enforces that the
// authenticated caller has one of the specified roles.  It assumes JWTAuth
// ran first and stored the role under CtxRole.  Requests with a missing or
// foreign role are aborted with 403 Forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
