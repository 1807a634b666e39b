package applications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/volunteer-hub/volunteer-hub/internal/approval"
	"github.com/volunteer-hub/volunteer-hub/internal/audit"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/db/repositories"
	"github.com/volunteer-hub/volunteer-hub/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var appCols = []string{
	"id", "team_name", "contact_email", "primary_contact", "school", "members", "status",
	"operational_status", "onboarding_stage", "rejection_reason", "approved_at", "approved_by",
	"rejected_at", "created_at", "updated_at",
}

var threeMembers = []byte(`[{"name":"Ana","email":"ana@x.org"},{"name":"Ben","email":"ben@x.org"},{"name":"Cy","email":"cy@x.org"}]`)

func appRow(id int64, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(appCols).
		AddRow(id, "Robotics Club", "lead@x.org", "ana@x.org", "North High", threeMembers, status,
			"pending", nil, nil, nil, nil, nil, now, now)
}

type fakeApprover struct {
	summary *approval.Summary
	err     error
	actor   approval.Actor
	id      int64
}

func (f *fakeApprover) Approve(_ context.Context, actor approval.Actor, id int64) (*approval.Summary, error) {
	f.actor, f.id = actor, id
	return f.summary, f.err
}

type recordingShipper struct {
	entries []*audit.LogEntry
	err     error
}

func (s *recordingShipper) Ship(_ context.Context, e *audit.LogEntry) error {
	s.entries = append(s.entries, e)
	return s.err
}

func (s *recordingShipper) Close() error { return nil }

func staffUser() *models.AccountWithProfile {
	return &models.AccountWithProfile{
		IdentityAccount: models.IdentityAccount{ID: "staff-1", Email: "staff@example.org"},
		Role:            "staff",
		Department:      "outreach",
	}
}

type harness struct {
	router   *gin.Engine
	mock     sqlmock.Sqlmock
	approver *fakeApprover
	shipper  *recordingShipper
	recorded *bool
}

// newHarness wires the handlers behind a stub session that injects user (when
// non-nil) and reports whether the handler marked its audit entry as recorded.
func newHarness(t *testing.T, user *models.AccountWithProfile) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := &harness{
		mock:     mock,
		approver: &fakeApprover{},
		shipper:  &recordingShipper{},
		recorded: new(bool),
	}
	sqlxDB := sqlx.NewDb(db, "postgres")
	handlers := NewHandlers(h.approver,
		repositories.NewTeamApplicationRepository(sqlxDB),
		repositories.NewLinkageRepository(sqlxDB),
		h.shipper)

	r := gin.New()
	r.POST("/team-applications", handlers.SubmitHandler())
	authed := r.Group("/team-applications", func(c *gin.Context) {
		if user != nil {
			c.Set(middleware.UserKey, user)
		}
		c.Next()
		*h.recorded = c.GetBool(middleware.AuditRecordedKey)
	})
	authed.GET("", handlers.ListHandler())
	authed.GET("/:id", handlers.GetHandler())
	authed.POST("/:id/approve", handlers.ApproveHandler())
	authed.POST("/:id/reject", handlers.RejectHandler())
	h.router = r
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return body
}

// ---------------------------------------------------------------------------
// ApproveHandler
// ---------------------------------------------------------------------------

func TestApproveHandler_Success(t *testing.T) {
	h := newHarness(t, staffUser())
	h.approver.summary = &approval.Summary{
		OK:      true,
		Message: `Team "Robotics Club" approved with 2 member account(s)`,
		CreatedUsers: []approval.ProvisionedAccount{
			{UserID: "u1", Email: "ana@x.org", Name: "Ana"},
			{UserID: "u2", Email: "ben@x.org", Name: "Ben"},
		},
		Errors: []approval.MemberError{{Email: "cy@x.org", Error: "account creation failed"}},
	}

	w := h.do(http.MethodPost, "/team-applications/42/approve", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["ok"] != true {
		t.Errorf("ok = %v", body["ok"])
	}
	users, _ := body["created_users"].([]interface{})
	if len(users) != 2 {
		t.Fatalf("created_users = %v", body["created_users"])
	}
	first := users[0].(map[string]interface{})
	if first["user_id"] != "u1" || first["email"] != "ana@x.org" || first["name"] != "Ana" {
		t.Errorf("created_users[0] = %v", first)
	}
	if errs, _ := body["errors"].([]interface{}); len(errs) != 1 {
		t.Errorf("errors = %v", body["errors"])
	}
	if h.approver.id != 42 || h.approver.actor.UserID != "staff-1" || h.approver.actor.Role != "staff" {
		t.Errorf("approver called with id %d actor %+v", h.approver.id, h.approver.actor)
	}
	if !*h.recorded {
		t.Error("approval should mark its audit entry as recorded")
	}
}

func TestApproveHandler_ErrorsOmittedWhenEmpty(t *testing.T) {
	h := newHarness(t, staffUser())
	h.approver.summary = &approval.Summary{OK: true, Message: "done", CreatedUsers: []approval.ProvisionedAccount{{UserID: "u1"}}}

	w := h.do(http.MethodPost, "/team-applications/1/approve", "")

	if _, present := decode(t, w)["errors"]; present {
		t.Errorf("errors key present in %s", w.Body.String())
	}
}

func TestApproveHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"not found", approval.ErrNotFound, http.StatusNotFound, approval.ErrNotFound.Error()},
		{"forbidden", approval.ErrForbidden, http.StatusForbidden, approval.ErrForbidden.Error()},
		{"already processed", approval.ErrAlreadyProcessed, http.StatusBadRequest, approval.ErrAlreadyProcessed.Error()},
		{"invalid state", fmt.Errorf("%w: a team needs at least 3 members, this one has 2", approval.ErrInvalidState), http.StatusBadRequest, "a team needs at least 3 members"},
		{"provisioning failed", approval.ErrProvisioningFailed, http.StatusInternalServerError, approval.ErrProvisioningFailed.Error()},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "Failed to approve team application"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, staffUser())
			h.approver.err = tt.err

			w := h.do(http.MethodPost, "/team-applications/42/approve", "")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decode(t, w)
			if body["ok"] != false {
				t.Errorf("ok = %v, want false", body["ok"])
			}
			if msg, _ := body["error"].(string); !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", msg, tt.wantMsg)
			}
			if strings.Contains(w.Body.String(), "connection reset") {
				t.Error("internal error detail leaked to the client")
			}
			if *h.recorded {
				t.Error("failed approval must not suppress the request audit entry")
			}
		})
	}
}

func TestApproveHandler_ZeroSuccessesItemizesMemberErrors(t *testing.T) {
	h := newHarness(t, staffUser())
	h.approver.err = approval.ErrProvisioningFailed
	h.approver.summary = &approval.Summary{
		OK:      false,
		Message: "No member accounts could be provisioned",
		Errors: []approval.MemberError{
			{Email: "ana@x.org", Error: "account lookup failed"},
			{Email: "ben@x.org", Error: "invalid email address"},
			{Email: "ana@x.org", Error: "duplicate email within the team"},
		},
	}

	w := h.do(http.MethodPost, "/team-applications/42/approve", "")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decode(t, w)
	if body["error"] != approval.ErrProvisioningFailed.Error() {
		t.Errorf("error = %v", body["error"])
	}
	errs, _ := body["errors"].([]interface{})
	if len(errs) != 3 {
		t.Fatalf("errors = %v, want 3 items", body["errors"])
	}
	second := errs[1].(map[string]interface{})
	if second["email"] != "ben@x.org" || second["error"] != "invalid email address" {
		t.Errorf("errors[1] = %v", second)
	}
	if *h.recorded {
		t.Error("failed approval must not suppress the request audit entry")
	}
}

func TestApproveHandler_InvalidID(t *testing.T) {
	for _, id := range []string{"abc", "0", "-5", "1.5"} {
		t.Run(id, func(t *testing.T) {
			h := newHarness(t, staffUser())
			w := h.do(http.MethodPost, "/team-applications/"+id+"/approve", "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if h.approver.id != 0 {
				t.Error("approver must not be called for an invalid ID")
			}
		})
	}
}

func TestApproveHandler_NoSession(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodPost, "/team-applications/42/approve", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// ---------------------------------------------------------------------------
// SubmitHandler
// ---------------------------------------------------------------------------

const validSubmission = `{
	"team_name": "Robotics Club",
	"contact_email": "lead@x.org",
	"primary_contact": "ana@x.org",
	"school": "North High",
	"members": [{"name": "Ana", "email": "ana@x.org"}]
}`

func TestSubmitHandler_Success(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Now()
	h.mock.ExpectQuery("INSERT INTO team_applications").
		WithArgs("Robotics Club", "lead@x.org", "ana@x.org", "North High", sqlmock.AnyArg(), models.ApplicationStatusSubmitted, "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(9), now, now))

	w := h.do(http.MethodPost, "/team-applications", validSubmission)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}
	app := decode(t, w)["application"].(map[string]interface{})
	if app["id"] != float64(9) || app["status"] != "submitted" {
		t.Errorf("application = %v", app)
	}
	if members, _ := app["members"].([]interface{}); len(members) != 1 {
		t.Errorf("members = %v", app["members"])
	}
	if err := h.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSubmitHandler_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing team name", `{"contact_email":"a@x.org","primary_contact":"a","members":[{"name":"A","email":"a@x.org"}]}`},
		{"bad contact email", `{"team_name":"T","contact_email":"nope","primary_contact":"a","members":[{"name":"A","email":"a@x.org"}]}`},
		{"no members", `{"team_name":"T","contact_email":"a@x.org","primary_contact":"a","members":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			w := h.do(http.MethodPost, "/team-applications", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestSubmitHandler_DBError(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.ExpectQuery("INSERT INTO team_applications").WillReturnError(errors.New("db down"))

	w := h.do(http.MethodPost, "/team-applications", validSubmission)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// ListHandler / GetHandler
// ---------------------------------------------------------------------------

func TestListHandler_Success(t *testing.T) {
	h := newHarness(t, staffUser())
	h.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM team_applications WHERE status").
		WithArgs("submitted").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE status = \\$1 ORDER BY created_at DESC LIMIT \\$2 OFFSET \\$3").
		WithArgs("submitted", 2, 0).
		WillReturnRows(appRow(1, "submitted").AddRow(int64(2), "Chess", "c@x.org", "c@x.org", "", nil, "submitted", "pending", nil, nil, nil, nil, nil, time.Now(), time.Now()))

	w := h.do(http.MethodGet, "/team-applications?status=submitted&limit=2", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["total"] != float64(3) || body["limit"] != float64(2) {
		t.Errorf("total/limit = %v/%v", body["total"], body["limit"])
	}
	apps := body["applications"].([]interface{})
	if len(apps) != 2 {
		t.Fatalf("applications = %v", apps)
	}
	if second := apps[1].(map[string]interface{}); second["members"] != nil {
		t.Errorf("NULL members should render as null, got %v", second["members"])
	}
}

func TestListHandler_BadParams(t *testing.T) {
	for _, q := range []string{"?status=pending", "?limit=0", "?offset=-1"} {
		t.Run(q, func(t *testing.T) {
			h := newHarness(t, staffUser())
			if w := h.do(http.MethodGet, "/team-applications"+q, ""); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestGetHandler(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h := newHarness(t, staffUser())
		h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").
			WithArgs(int64(42)).
			WillReturnRows(appRow(42, "submitted"))

		w := h.do(http.MethodGet, "/team-applications/42", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		app := decode(t, w)["application"].(map[string]interface{})
		if app["team_name"] != "Robotics Club" {
			t.Errorf("team_name = %v", app["team_name"])
		}
		if members, _ := app["members"].([]interface{}); len(members) != 3 {
			t.Errorf("members = %v", app["members"])
		}
	})

	t.Run("submitted has no linked members", func(t *testing.T) {
		h := newHarness(t, staffUser())
		h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").
			WithArgs(int64(42)).
			WillReturnRows(appRow(42, "submitted"))

		w := h.do(http.MethodGet, "/team-applications/42", "")
		if _, present := decode(t, w)["linked_members"]; present {
			t.Errorf("linked_members present in %s", w.Body.String())
		}
		if err := h.mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("approved lists linked members", func(t *testing.T) {
		h := newHarness(t, staffUser())
		now := time.Now()
		h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").
			WithArgs(int64(42)).
			WillReturnRows(appRow(42, "approved"))
		h.mock.ExpectQuery("FROM team_memberships").
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "team_application_id", "user_id", "is_primary_contact", "created_at", "updated_at"}).
				AddRow("m-1", int64(42), "user-ana", true, now, now).
				AddRow("m-2", int64(42), "user-ben", false, now, now))

		w := h.do(http.MethodGet, "/team-applications/42", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
		}
		linked, _ := decode(t, w)["linked_members"].([]interface{})
		if len(linked) != 2 {
			t.Fatalf("linked_members = %v", linked)
		}
		first := linked[0].(map[string]interface{})
		if first["user_id"] != "user-ana" || first["is_primary_contact"] != true {
			t.Errorf("linked_members[0] = %v", first)
		}
		if err := h.mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("membership query error", func(t *testing.T) {
		h := newHarness(t, staffUser())
		h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").
			WithArgs(int64(42)).
			WillReturnRows(appRow(42, "approved"))
		h.mock.ExpectQuery("FROM team_memberships").WillReturnError(errors.New("boom"))

		if w := h.do(http.MethodGet, "/team-applications/42", ""); w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		h := newHarness(t, staffUser())
		h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(appCols))

		if w := h.do(http.MethodGet, "/team-applications/7", ""); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("db error", func(t *testing.T) {
		h := newHarness(t, staffUser())
		h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").WillReturnError(errors.New("boom"))

		if w := h.do(http.MethodGet, "/team-applications/7", ""); w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// RejectHandler
// ---------------------------------------------------------------------------

func TestRejectHandler_Success(t *testing.T) {
	h := newHarness(t, staffUser())
	h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(appRow(42, "submitted"))
	h.mock.ExpectBegin()
	h.mock.ExpectExec("UPDATE team_applications").
		WithArgs(int64(42), models.ApplicationStatusRejected, "Not enough members", sqlmock.AnyArg(), models.ApplicationStatusSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectCommit()

	w := h.do(http.MethodPost, "/team-applications/42/reject", `{"reason":"Not enough members"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if err := h.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
	if len(h.shipper.entries) != 1 {
		t.Fatalf("shipped %d entries, want 1", len(h.shipper.entries))
	}
	entry := h.shipper.entries[0]
	if entry.Action != ActionRejected || entry.ResourceID != "42" || entry.UserID != "staff-1" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Metadata["reason"] != "Not enough members" {
		t.Errorf("metadata = %v", entry.Metadata)
	}
	if !*h.recorded {
		t.Error("rejection should mark its audit entry as recorded")
	}
}

func TestRejectHandler_ShipFailureStillSucceeds(t *testing.T) {
	h := newHarness(t, staffUser())
	h.shipper.err = errors.New("webhook down")
	h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").WillReturnRows(appRow(42, "submitted"))
	h.mock.ExpectBegin()
	h.mock.ExpectExec("UPDATE team_applications").WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectCommit()

	if w := h.do(http.MethodPost, "/team-applications/42/reject", `{"reason":"r"}`); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRejectHandler_AlreadyProcessed(t *testing.T) {
	for _, status := range []string{"approved", "rejected"} {
		t.Run(status, func(t *testing.T) {
			h := newHarness(t, staffUser())
			h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").WillReturnRows(appRow(42, status))

			w := h.do(http.MethodPost, "/team-applications/42/reject", `{"reason":"r"}`)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if err := h.mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestRejectHandler_LostRace(t *testing.T) {
	h := newHarness(t, staffUser())
	h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").WillReturnRows(appRow(42, "submitted"))
	h.mock.ExpectBegin()
	h.mock.ExpectExec("UPDATE team_applications").WillReturnResult(sqlmock.NewResult(0, 0))
	h.mock.ExpectRollback()

	w := h.do(http.MethodPost, "/team-applications/42/reject", `{"reason":"r"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body %s", w.Code, w.Body.String())
	}
	if len(h.shipper.entries) != 0 {
		t.Error("nothing should be shipped when the rejection did not commit")
	}
}

func TestRejectHandler_Validation(t *testing.T) {
	tests := []struct {
		name       string
		user       *models.AccountWithProfile
		target     string
		body       string
		wantStatus int
	}{
		{"no session", nil, "/team-applications/42/reject", `{"reason":"r"}`, http.StatusUnauthorized},
		{"bad id", staffUser(), "/team-applications/x/reject", `{"reason":"r"}`, http.StatusBadRequest},
		{"missing reason", staffUser(), "/team-applications/42/reject", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.user)
			if w := h.do(http.MethodPost, tt.target, tt.body); w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRejectHandler_NotFound(t *testing.T) {
	h := newHarness(t, staffUser())
	h.mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").WillReturnRows(sqlmock.NewRows(appCols))

	if w := h.do(http.MethodPost, "/team-applications/42/reject", `{"reason":"r"}`); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
