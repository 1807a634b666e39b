// Package auditlogs serves read access to the audit trail.
package auditlogs

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/volunteer-hub/volunteer-hub/internal/audit"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/db/repositories"
	"github.com/volunteer-hub/volunteer-hub/internal/validation"
)

// Repository reads audit rows
type Repository interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
	GetAuditLog(ctx context.Context, logID string) (*models.AuditLog, error)
}

// Handlers serves /api/v1/audit-logs
type Handlers struct {
	repo Repository
}

// NewHandlers creates audit log handlers
func NewHandlers(repo Repository) *Handlers {
	return &Handlers{repo: repo}
}

// @Summary      List audit logs
// @Tags         Audit
// @Produce      json
// @Param        action         query  string  false  "Exact action, e.g. team_application.approved"
// @Param        resource_type  query  string  false  "team_application, session or audit_log"
// @Param        resource_id    query  string  false  "Resource ID"
// @Param        user_id        query  string  false  "Acting user"
// @Param        start          query  string  false  "RFC 3339 lower bound"
// @Param        end            query  string  false  "RFC 3339 upper bound"
// @Param        limit          query  int     false  "Page size (default 20, max 100)"
// @Param        offset         query  int     false  "Offset"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/audit-logs [get]
// ListHandler returns a filtered page of audit entries, newest first
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, err := validation.Pagination(c.Query("limit"), c.Query("offset"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}

		var filters repositories.AuditFilters
		filters.Action = optional(c.Query("action"))
		filters.ResourceType = optional(c.Query("resource_type"))
		filters.ResourceID = optional(c.Query("resource_id"))
		filters.UserID = optional(c.Query("user_id"))

		for param, dst := range map[string]**time.Time{"start": &filters.StartDate, "end": &filters.EndDate} {
			v := c.Query(param)
			if v == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid " + param + " time, expected RFC 3339"})
				return
			}
			*dst = &t
		}

		logs, total, err := h.repo.ListAuditLogs(c.Request.Context(), filters, limit, offset)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to list audit logs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to list audit logs"})
			return
		}

		entries := make([]*audit.LogEntry, 0, len(logs))
		for _, l := range logs {
			entries = append(entries, audit.EntryFromModel(l))
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":      true,
			"entries": entries,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		})
	}
}

// @Summary      Get an audit log entry
// @Tags         Audit
// @Produce      json
// @Param        id  path  string  true  "Entry ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/v1/audit-logs/{id} [get]
// GetHandler returns one audit entry
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		entry, err := h.repo.GetAuditLog(c.Request.Context(), id)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to get audit log", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load audit log"})
			return
		}
		if entry == nil {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Audit log entry not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "entry": audit.EntryFromModel(entry)})
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
