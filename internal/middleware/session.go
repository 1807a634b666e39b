// Package middleware provides Gin HTTP middleware for sessions, capability
// checks, rate limiting, security headers, metrics and audit logging.
//
// Middleware ordering is set up in router.go:
//
//	RequestID → Metrics → Logger → Security → RateLimit → Session → Capability → Audit → Handler
//
// Session resolves the caller from the vh_session cookie or a Bearer token and
// loads the profile role; RequireCapability reads the capabilities it stores.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/volunteer-hub/volunteer-hub/internal/auth"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
)

// Keys stored in gin.Context by SessionMiddleware
const (
	UserKey         = "user"
	UserIDKey       = "user_id"
	RoleKey         = "role"
	CapabilitiesKey = "capabilities"
)

// AccountLoader loads an account with its profile by user ID
type AccountLoader interface {
	Get(ctx context.Context, userID string) (*models.AccountWithProfile, error)
}

// SessionMiddleware authenticates the request from the session cookie, falling
// back to an Authorization: Bearer header. Failures abort with 401.
func SessionMiddleware(cookieName string, accounts AccountLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c, cookieName)
		if token == "" {
			abortUnauthorized(c, "Authentication required")
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired session")
			return
		}

		acct, err := accounts.Get(c.Request.Context(), claims.UserID)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to load session account", "user_id", claims.UserID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load user"})
			return
		}
		if acct == nil {
			abortUnauthorized(c, "User not found")
			return
		}

		caps := auth.Capabilities(acct.Role, acct.Department, acct.Subrole)
		c.Set(UserKey, acct)
		c.Set(UserIDKey, acct.ID)
		c.Set(RoleKey, acct.Role)
		c.Set(CapabilitiesKey, caps.Strings())

		c.Next()
	}
}

// sessionToken returns the cookie value if present, otherwise the Bearer token.
func sessionToken(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil && v != "" {
			return v
		}
	}
	return auth.BearerToken(c.GetHeader("Authorization"))
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": msg})
}

// CurrentUser returns the account stored by SessionMiddleware.
func CurrentUser(c *gin.Context) (*models.AccountWithProfile, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	acct, ok := v.(*models.AccountWithProfile)
	return acct, ok && acct != nil
}
