// Package api wires together all HTTP routes for the Volunteer Hub backend.
//
// Route groups:
//   - /health, /ready and /version are unauthenticated probes.
//   - POST /api/v1/auth/login and POST /api/v1/team-applications are public and
//     sit behind the stricter auth rate limiter.
//   - Everything else under /api/v1 requires a session and, for staff routes,
//     the matching capability. Approval checks its own capability inside the
//     workflow so refusals are counted with the other approval outcomes.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/volunteer-hub/volunteer-hub/internal/api/applications"
	"github.com/volunteer-hub/volunteer-hub/internal/api/auditlogs"
	"github.com/volunteer-hub/volunteer-hub/internal/api/session"
	"github.com/volunteer-hub/volunteer-hub/internal/approval"
	"github.com/volunteer-hub/volunteer-hub/internal/audit"
	"github.com/volunteer-hub/volunteer-hub/internal/auth"
	"github.com/volunteer-hub/volunteer-hub/internal/config"
	"github.com/volunteer-hub/volunteer-hub/internal/db/repositories"
	"github.com/volunteer-hub/volunteer-hub/internal/identity"
	"github.com/volunteer-hub/volunteer-hub/internal/middleware"
	"github.com/volunteer-hub/volunteer-hub/internal/notify"
	"github.com/volunteer-hub/volunteer-hub/internal/storage"
)

// Version is the server version reported by /version and the CLI.
var Version = "0.1.0"

// readinessProbeKey is never written; Exists on it checks credentials and reachability.
const readinessProbeKey = ".readiness-probe"

// BackgroundServices holds resources that must be released during graceful
// shutdown, after the HTTP server has drained.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
	shipper      audit.Shipper
	redis        *redis.Client
}

// Shutdown stops limiter cleanup goroutines, flushes audit shippers and closes Redis.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	if bg.redis != nil {
		if err := bg.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter builds the Gin engine and every component behind it.
func NewRouter(cfg *config.Config, database *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	bg := &BackgroundServices{}

	archive, err := newArchive(cfg)
	if err != nil {
		return nil, nil, err
	}
	multi, err := audit.NewMultiShipper(cfg.Audit.Shippers, archive)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure audit shippers: %w", err)
	}
	var shipper audit.Shipper
	if multi.Len() > 0 {
		shipper = multi
		bg.shipper = multi
		slog.Info("audit shipping enabled", "shippers", multi.Len())
	}

	var apiLimiter, authLimiter middleware.Limiter
	if cfg.Security.RateLimiting.Enabled {
		general := middleware.RateLimitConfigFrom(cfg.Security.RateLimiting)
		if cfg.Redis.Enabled() {
			bg.redis = middleware.NewRedisClient(cfg.Redis)
			apiLimiter = middleware.NewRedisRateLimiter(bg.redis, general)
			authLimiter = middleware.NewRedisRateLimiter(bg.redis, middleware.AuthRateLimitConfig())
			slog.Info("rate limiting backed by redis", "addr", cfg.Redis.Addr)
		} else {
			apiRL := middleware.NewRateLimiter(general)
			loginRL := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
			bg.rateLimiters = append(bg.rateLimiters, apiRL, loginRL)
			apiLimiter, authLimiter = apiRL, loginRL
		}
	}

	identityRepo := repositories.NewIdentityRepository(database)
	accounts := identity.NewStore(identityRepo)
	appRepo := repositories.NewTeamApplicationRepository(database)
	linkageRepo := repositories.NewLinkageRepository(database)
	auditRepo := repositories.NewAuditRepository(database)

	approvals := approval.NewService(approval.Dependencies{
		Applications: appRepo,
		Accounts:     accounts,
		Linkage:      linkageRepo,
		Notifier:     notify.NewSender(cfg.Notifications),
		Shipper:      shipper,
		LoginURL:     cfg.LoginURL(),
	})

	sessionHandlers := session.NewHandlers(accounts, session.CookieSettingsFrom(cfg))
	appHandlers := applications.NewHandlers(approvals, appRepo, linkageRepo, shipper)
	auditHandlers := auditlogs.NewHandlers(auditRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.SecurityHeadersConfigFor(cfg)))
	router.Use(CORSMiddleware(cfg))

	router.GET("/health", healthCheckHandler(database.DB))
	var rdb redis.UniversalClient
	if bg.redis != nil {
		rdb = bg.redis
	}
	router.GET("/ready", readinessHandler(database.DB, rdb, archive))
	router.GET("/version", versionHandler())

	requireSession := middleware.SessionMiddleware(cfg.Auth.CookieName, accounts)
	public := limit(authLimiter, "auth")

	v1 := router.Group("/api/v1")
	v1.Use(limit(apiLimiter, "api")...)
	v1.Use(middleware.AuditMiddleware(auditRepo, shipper, &cfg.Audit))

	authGroup := v1.Group("/auth")
	authGroup.POST("/login", append(public, sessionHandlers.LoginHandler())...)
	authGroup.POST("/logout", sessionHandlers.LogoutHandler())
	authGroup.GET("/me", requireSession, sessionHandlers.MeHandler())

	v1.POST("/team-applications", append(public, appHandlers.SubmitHandler())...)
	appGroup := v1.Group("/team-applications", requireSession)
	appGroup.GET("", middleware.RequireCapability(auth.CapApplicationsRead), appHandlers.ListHandler())
	appGroup.GET("/:id", middleware.RequireCapability(auth.CapApplicationsRead), appHandlers.GetHandler())
	appGroup.POST("/:id/approve", appHandlers.ApproveHandler())
	appGroup.POST("/:id/reject", middleware.RequireCapability(auth.CapApplicationsReject), appHandlers.RejectHandler())

	auditGroup := v1.Group("/audit-logs", requireSession, middleware.RequireCapability(auth.CapAuditRead))
	auditGroup.GET("", auditHandlers.ListHandler())
	auditGroup.GET("/:id", auditHandlers.GetHandler())

	return router, bg, nil
}

// newArchive opens object storage only when a storage audit shipper is enabled.
func newArchive(cfg *config.Config) (storage.Storage, error) {
	for _, s := range cfg.Audit.Shippers {
		if s.Enabled && s.Type == "storage" {
			archive, err := storage.NewStorage(cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
			}
			slog.Info("audit archive storage initialized", "backend", cfg.Storage.Backend)
			return archive, nil
		}
	}
	return nil, nil
}

// limit returns the rate limit middleware for l, or nothing when limiting is off.
func limit(l middleware.Limiter, scope string) []gin.HandlerFunc {
	if l == nil {
		return nil
	}
	return []gin.HandlerFunc{middleware.RateLimitMiddleware(l, scope)}
}

// @Summary      Health check
// @Description  Liveness probe including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Checks the database, Redis when it backs rate limiting, and the audit archive when enabled.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler reports whether every configured dependency is reachable.
// rdb and archive are optional.
func readinessHandler(db *sql.DB, rdb redis.UniversalClient, archive storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		checks := gin.H{}
		notReady := func(component string, err error) {
			checks[component] = "unhealthy"
			slog.Warn("readiness check failed", "component", component, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  component + " not ready",
			})
		}

		if err := db.PingContext(ctx); err != nil {
			notReady("database", err)
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				notReady("redis", err)
				return
			}
			checks["redis"] = "healthy"
		}

		if archive != nil {
			if _, err := archive.Exists(ctx, readinessProbeKey); err != nil {
				notReady("storage", err)
				return
			}
			checks["storage"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware writes one structured record per request. Server errors log
// at error level and client errors at warn.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
		}
		if query != "" {
			attrs = append(attrs, slog.String("query", query))
		}
		if userID := c.GetString(middleware.UserIDKey); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware answers preflight requests and sets CORS headers for the
// configured origins. Credentials are allowed, so a "*" entry echoes the
// request origin rather than sending a literal wildcard.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, OPTIONS"
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && originAllowed(cfg.Security.CORS.AllowedOrigins, origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			h.Set("Access-Control-Max-Age", "3600")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
