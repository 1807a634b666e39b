// audit.go provides Gin middleware that records authenticated write operations to the audit
// log and ships them to the configured external destinations.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/volunteer-hub/volunteer-hub/internal/audit"
	"github.com/volunteer-hub/volunteer-hub/internal/config"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/safego"
)

// AuditRecordedKey is set by handlers that write their own, more specific
// audit entry (approval, rejection) so the middleware does not add a second one.
const AuditRecordedKey = "audit_recorded"

const auditWriteTimeout = 5 * time.Second

// AuditRecorder persists audit rows
type AuditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// resourceTypes maps path fragments to audit resource types, most specific first.
var resourceTypes = []struct {
	fragment     string
	resourceType string
}{
	{"/team-applications", "team_application"},
	{"/audit-logs", "audit_log"},
	{"/auth/", "session"},
}

// AuditMiddleware records authenticated actions in the database and ships them.
// recorder and shipper may each be nil.
func AuditMiddleware(recorder AuditRecorder, shipper audit.Shipper, auditCfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if !shouldAudit(c, auditCfg) {
			return
		}

		userID := c.GetString(UserIDKey)
		if userID == "" {
			return
		}

		ipAddress := c.ClientIP()
		status := c.Writer.Status()
		auditLog := &models.AuditLog{
			Action:    fmt.Sprintf("%s %s", c.Request.Method, routePath(c)),
			UserID:    &userID,
			IPAddress: &ipAddress,
			CreatedAt: time.Now(),
			Metadata: map[string]interface{}{
				"status_code": status,
			},
		}
		if rt := resourceTypeFor(c.Request.URL.Path); rt != "" {
			auditLog.ResourceType = &rt
		}
		if id := c.Param("id"); id != "" {
			auditLog.ResourceID = &id
		}
		if reqID := c.GetString(RequestIDKey); reqID != "" {
			auditLog.Metadata["request_id"] = reqID
		}

		safego.GoWithTimeout("audit-log", auditWriteTimeout, func(ctx context.Context) {
			if recorder != nil {
				if err := recorder.CreateAuditLog(ctx, auditLog); err != nil {
					slog.Error("failed to create audit log", "action", auditLog.Action, "error", err)
				}
			}
			if shipper != nil {
				entry := audit.EntryFromModel(auditLog)
				entry.StatusCode = status
				if err := shipper.Ship(ctx, entry); err != nil {
					slog.Warn("failed to ship audit log", "action", auditLog.Action, "error", err)
				}
			}
		})
	}
}

// shouldAudit applies the read/failed-request settings. Without a config only
// successful writes are recorded.
func shouldAudit(c *gin.Context, auditCfg *config.AuditConfig) bool {
	if c.Request.Method == http.MethodOptions || c.GetBool(AuditRecordedKey) {
		return false
	}
	isRead := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
	isFailed := c.Writer.Status() >= 400

	if auditCfg == nil {
		return !isRead && !isFailed
	}
	if isRead && !auditCfg.LogReadOperations {
		return false
	}
	if isFailed && !auditCfg.LogFailedRequests {
		return false
	}
	return true
}

// routePath prefers the route template so IDs do not leak into action names.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

func resourceTypeFor(path string) string {
	for _, rt := range resourceTypes {
		if strings.Contains(path, rt.fragment) {
			return rt.resourceType
		}
	}
	return ""
}
