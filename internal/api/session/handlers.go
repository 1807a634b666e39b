// Package session implements password login, logout and the current-user endpoint.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/volunteer-hub/volunteer-hub/internal/auth"
	"github.com/volunteer-hub/volunteer-hub/internal/config"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/identity"
	"github.com/volunteer-hub/volunteer-hub/internal/middleware"
)

// Authenticator checks an email/password pair
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.AccountWithProfile, error)
}

// CookieSettings controls the session cookie
type CookieSettings struct {
	Name   string
	Domain string
	Secure bool
	TTL    time.Duration
}

// CookieSettingsFrom derives cookie settings from configuration. The cookie is
// Secure when the server terminates TLS or auth.cookie_secure is set.
func CookieSettingsFrom(cfg *config.Config) CookieSettings {
	return CookieSettings{
		Name:   cfg.Auth.CookieName,
		Domain: cfg.Auth.CookieDomain,
		Secure: cfg.Auth.CookieSecure || cfg.Security.TLS.Enabled,
		TTL:    cfg.Auth.SessionTTL,
	}
}

// Handlers serves /api/v1/auth
type Handlers struct {
	accounts Authenticator
	cookie   CookieSettings
}

// NewHandlers creates session handlers
func NewHandlers(accounts Authenticator, cookie CookieSettings) *Handlers {
	return &Handlers{accounts: accounts, cookie: cookie}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type userView struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	Subrole    string `json:"subrole,omitempty"`
}

func viewOf(acct *models.AccountWithProfile) userView {
	return userView{
		ID:         acct.ID,
		Email:      acct.Email,
		Name:       acct.Name,
		Role:       acct.Role,
		Department: acct.Department,
		Subrole:    acct.Subrole,
	}
}

// @Summary      Log in
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Router       /api/v1/auth/login [post]
// LoginHandler checks credentials and sets the session cookie
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Email and password are required"})
			return
		}

		acct, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": err.Error()})
			return
		}
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "login failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Login failed"})
			return
		}

		token, err := auth.GenerateJWT(acct.ID, acct.Email, h.cookie.TTL)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to issue session token", "user_id", acct.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Login failed"})
			return
		}
		expiresAt := time.Now().Add(h.cookie.TTL)

		h.setCookie(c, token, int(h.cookie.TTL.Seconds()))
		// Lets the audit middleware attribute the login.
		c.Set(middleware.UserIDKey, acct.ID)

		slog.Info("user logged in", "user_id", acct.ID)
		c.JSON(http.StatusOK, gin.H{
			"ok":         true,
			"user":       viewOf(acct),
			"expires_at": expiresAt.UTC(),
		})
	}
}

// @Summary      Log out
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/auth/logout [post]
// LogoutHandler clears the session cookie
func (h *Handlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.setCookie(c, "", -1)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// @Summary      Current user
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}
// @Router       /api/v1/auth/me [get]
// MeHandler returns the session's account, profile and capabilities
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		acct, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authentication required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":           true,
			"user":         viewOf(acct),
			"capabilities": auth.Capabilities(acct.Role, acct.Department, acct.Subrole).Strings(),
		})
	}
}

func (h *Handlers) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}
