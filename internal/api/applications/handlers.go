// Package applications implements the team application endpoints: public
// submission, staff review (list, get, reject) and the approval workflow trigger.
package applications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/volunteer-hub/volunteer-hub/internal/approval"
	"github.com/volunteer-hub/volunteer-hub/internal/audit"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/db/repositories"
	"github.com/volunteer-hub/volunteer-hub/internal/middleware"
	"github.com/volunteer-hub/volunteer-hub/internal/validation"
)

// ActionRejected is the audit action written when an application is rejected.
const ActionRejected = "team_application.rejected"

// Approver runs the approval workflow
type Approver interface {
	Approve(ctx context.Context, actor approval.Actor, applicationID int64) (*approval.Summary, error)
}

// Repository is the application persistence used by the handlers
type Repository interface {
	Create(ctx context.Context, app *models.TeamApplication) error
	GetByID(ctx context.Context, id int64) (*models.TeamApplication, error)
	List(ctx context.Context, status string, limit, offset int) ([]*models.TeamApplication, int, error)
	RejectWithAudit(ctx context.Context, id int64, reason string, entry *models.AuditLog) error
}

// MembershipLister reads the accounts linked to an approved application
type MembershipLister interface {
	ListTeamMemberships(ctx context.Context, teamApplicationID int64) ([]*models.TeamMembership, error)
}

// Handlers serves /api/v1/team-applications
type Handlers struct {
	approver    Approver
	apps        Repository
	memberships MembershipLister
	shipper     audit.Shipper
}

// NewHandlers creates Handlers. shipper may be nil.
func NewHandlers(approver Approver, apps Repository, memberships MembershipLister, shipper audit.Shipper) *Handlers {
	return &Handlers{approver: approver, apps: apps, memberships: memberships, shipper: shipper}
}

type submitRequest struct {
	TeamName       string                `json:"team_name" binding:"required,max=200"`
	ContactEmail   string                `json:"contact_email" binding:"required,email"`
	PrimaryContact string                `json:"primary_contact" binding:"required"`
	School         string                `json:"school" binding:"max=200"`
	Members        []models.MemberRecord `json:"members" binding:"required,min=1"`
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required,max=2000"`
}

// applicationView adds the decoded member list to the stored row
type applicationView struct {
	*models.TeamApplication
	Members json.RawMessage `json:"members"`
}

func viewOf(app *models.TeamApplication) applicationView {
	members := json.RawMessage(app.Members)
	if len(members) == 0 || !json.Valid(members) {
		members = json.RawMessage("null")
	}
	return applicationView{TeamApplication: app, Members: members}
}

// @Summary      Submit a team application
// @Tags         Team Applications
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/v1/team-applications [post]
// SubmitHandler stores a new application in the submitted state
func (h *Handlers) SubmitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid request: " + err.Error()})
			return
		}

		members, err := json.Marshal(req.Members)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid member list"})
			return
		}

		app := &models.TeamApplication{
			TeamName:       req.TeamName,
			ContactEmail:   req.ContactEmail,
			PrimaryContact: req.PrimaryContact,
			School:         req.School,
			Members:        members,
		}
		if err := h.apps.Create(c.Request.Context(), app); err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to create team application", "team_name", req.TeamName, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to submit application"})
			return
		}

		slog.Info("team application submitted", "application_id", app.ID, "members", len(req.Members))
		c.JSON(http.StatusCreated, gin.H{"ok": true, "application": viewOf(app)})
	}
}

// @Summary      List team applications
// @Tags         Team Applications
// @Produce      json
// @Param        status  query  string  false  "submitted, approved or rejected"
// @Param        limit   query  int     false  "Page size (default 20, max 100)"
// @Param        offset  query  int     false  "Offset"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/team-applications [get]
// ListHandler returns a page of applications with the total count
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		if err := validation.ApplicationStatus(status); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}
		limit, offset, err := validation.Pagination(c.Query("limit"), c.Query("offset"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}

		apps, total, err := h.apps.List(c.Request.Context(), status, limit, offset)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to list team applications", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to list applications"})
			return
		}

		views := make([]applicationView, 0, len(apps))
		for _, app := range apps {
			views = append(views, viewOf(app))
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":           true,
			"applications": views,
			"total":        total,
			"limit":        limit,
			"offset":       offset,
		})
	}
}

// @Summary      Get a team application
// @Tags         Team Applications
// @Produce      json
// @Param        id  path  int  true  "Application ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/v1/team-applications/{id} [get]
// GetHandler returns one application. Approved applications also carry the
// accounts linked to the team, primary contact first.
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := applicationID(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		app, err := h.apps.GetByID(ctx, id)
		if err != nil {
			slog.ErrorContext(ctx, "failed to get team application", "application_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load application"})
			return
		}
		if app == nil {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Team application not found"})
			return
		}

		resp := gin.H{"ok": true, "application": viewOf(app)}
		if app.Status == models.ApplicationStatusApproved && h.memberships != nil {
			linked, err := h.memberships.ListTeamMemberships(ctx, id)
			if err != nil {
				slog.ErrorContext(ctx, "failed to list team memberships", "application_id", id, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load team members"})
				return
			}
			resp["linked_members"] = linked
		}
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary      Approve a team application
// @Description  Provisions member accounts, links them to the team and marks the application approved
// @Tags         Team Applications
// @Produce      json
// @Param        id  path  int  true  "Application ID"
// @Success      200  {object}  approval.Summary
// @Failure      400  {object}  map[string]interface{}  "Already processed or invalid member list"
// @Failure      401  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Router       /api/v1/team-applications/{id}/approve [post]
// ApproveHandler runs the approval workflow for one application
func (h *Handlers) ApproveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := applicationID(c)
		if !ok {
			return
		}
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authentication required"})
			return
		}

		summary, err := h.approver.Approve(c.Request.Context(), actor, id)
		if err != nil {
			status := approvalStatus(err)
			msg := err.Error()
			if status == http.StatusInternalServerError && !errors.Is(err, approval.ErrProvisioningFailed) {
				slog.ErrorContext(c.Request.Context(), "team approval failed", "application_id", id, "user_id", actor.UserID, "error", err)
				msg = "Failed to approve team application"
			}
			resp := gin.H{"ok": false, "error": msg}
			if summary != nil && len(summary.Errors) > 0 {
				resp["errors"] = summary.Errors
			}
			c.JSON(status, resp)
			return
		}

		c.Set(middleware.AuditRecordedKey, true)
		c.JSON(http.StatusOK, summary)
	}
}

// @Summary      Reject a team application
// @Tags         Team Applications
// @Accept       json
// @Produce      json
// @Param        id  path  int  true  "Application ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Already processed"
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/v1/team-applications/{id}/reject [post]
// RejectHandler moves a submitted application to rejected
func (h *Handlers) RejectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := applicationID(c)
		if !ok {
			return
		}
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authentication required"})
			return
		}

		var req rejectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "A rejection reason is required"})
			return
		}

		ctx := c.Request.Context()
		app, err := h.apps.GetByID(ctx, id)
		if err != nil {
			slog.ErrorContext(ctx, "failed to get team application", "application_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load application"})
			return
		}
		if app == nil {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Team application not found"})
			return
		}
		if !app.CanTransitionTo(models.ApplicationStatusRejected) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": approval.ErrAlreadyProcessed.Error()})
			return
		}

		entry := rejectionAuditEntry(actor, app, req.Reason)
		if err := h.apps.RejectWithAudit(ctx, id, req.Reason, entry); err != nil {
			if errors.Is(err, repositories.ErrStaleState) {
				c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": approval.ErrAlreadyProcessed.Error()})
				return
			}
			slog.ErrorContext(ctx, "failed to reject team application", "application_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to reject application"})
			return
		}
		c.Set(middleware.AuditRecordedKey, true)

		if h.shipper != nil {
			if err := h.shipper.Ship(ctx, audit.EntryFromModel(entry)); err != nil {
				slog.Warn("failed to ship rejection audit entry", "application_id", id, "error", err)
			}
		}

		slog.Info("team application rejected", "application_id", id, "user_id", actor.UserID)
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Team application rejected"})
	}
}

func rejectionAuditEntry(actor approval.Actor, app *models.TeamApplication, reason string) *models.AuditLog {
	resourceType := "team_application"
	resourceID := strconv.FormatInt(app.ID, 10)
	entry := &models.AuditLog{
		UserID:       &actor.UserID,
		Action:       ActionRejected,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		CreatedAt:    time.Now(),
		Metadata: map[string]interface{}{
			"application_id": app.ID,
			"team_name":      app.TeamName,
			"reason":         reason,
		},
	}
	if actor.IPAddress != "" {
		entry.IPAddress = &actor.IPAddress
	}
	return entry
}

// approvalStatus maps workflow errors to HTTP status codes.
func approvalStatus(err error) int {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, approval.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, approval.ErrAlreadyProcessed), errors.Is(err, approval.ErrInvalidState):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// applicationID parses :id as a positive integer, writing a 400 when it is not.
func applicationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid application ID"})
		return 0, false
	}
	return id, true
}

func actorFrom(c *gin.Context) (approval.Actor, bool) {
	acct, ok := middleware.CurrentUser(c)
	if !ok {
		return approval.Actor{}, false
	}
	return approval.Actor{
		UserID:     acct.ID,
		Email:      acct.Email,
		Role:       acct.Role,
		Department: acct.Department,
		Subrole:    acct.Subrole,
		IPAddress:  c.ClientIP(),
	}, true
}
