package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var teamApplicationCols = []string{
	"id", "team_name", "contact_email", "primary_contact", "school", "members", "status",
	"operational_status", "onboarding_stage", "rejection_reason", "approved_at", "approved_by",
	"rejected_at", "created_at", "updated_at",
}

var sampleMembers = []byte(`[{"name":"A","email":"a@x.com"},{"name":"B","email":"b@x.com"},{"name":"C","email":"c@x.com"}]`)

func newTeamAppRepo(t *testing.T) (*TeamApplicationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSqlxMock(t)
	return NewTeamApplicationRepository(db), mock
}

func sampleTeamAppRow(id int64, status string, members []byte) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(teamApplicationCols).
		AddRow(id, "Robotics Club", "lead@x.com", "a@x.com", "North High", members, status,
			"pending", nil, nil, nil, nil, nil, now, now)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestTeamApplicationCreate(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO team_applications").
		WithArgs("Robotics Club", "lead@x.com", "a@x.com", "", sampleMembers, models.ApplicationStatusSubmitted, "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))

	app := &models.TeamApplication{
		TeamName:       "Robotics Club",
		ContactEmail:   "lead@x.com",
		PrimaryContact: "a@x.com",
		Members:        sampleMembers,
		Status:         models.ApplicationStatusApproved, // ignored
	}
	if err := repo.Create(context.Background(), app); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.ID != 7 || app.Status != models.ApplicationStatusSubmitted {
		t.Errorf("app = id %d status %s", app.ID, app.Status)
	}
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestTeamApplicationGetByID(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	mock.ExpectQuery("SELECT .* FROM team_applications WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(sampleTeamAppRow(42, "submitted", sampleMembers))

	app, err := repo.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.ID != 42 || app.Status != models.ApplicationStatusSubmitted {
		t.Errorf("app = %+v", app)
	}
	if string(app.Members) != string(sampleMembers) {
		t.Errorf("members = %s", app.Members)
	}
}

func TestTeamApplicationGetByID_NullMembers(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	mock.ExpectQuery("SELECT .* FROM team_applications").
		WillReturnRows(sampleTeamAppRow(5, "submitted", nil))

	app, err := repo.GetByID(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Members != nil {
		t.Errorf("members = %s, want nil", app.Members)
	}
}

func TestTeamApplicationGetByID_NotFound(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	mock.ExpectQuery("SELECT .* FROM team_applications").WillReturnRows(sqlmock.NewRows(teamApplicationCols))

	app, err := repo.GetByID(context.Background(), 99)
	if err != nil || app != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", app, err)
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestTeamApplicationList_WithStatus(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	mock.ExpectQuery("SELECT COUNT").WithArgs("submitted").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .* FROM team_applications WHERE status = \\$1 ORDER BY created_at DESC LIMIT \\$2 OFFSET \\$3").
		WithArgs("submitted", 20, 0).
		WillReturnRows(sampleTeamAppRow(1, "submitted", sampleMembers))

	apps, total, err := repo.List(context.Background(), "submitted", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(apps) != 1 {
		t.Errorf("total=%d len=%d", total, len(apps))
	}
}

func TestTeamApplicationList_NoFilter(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("LIMIT \\$1 OFFSET \\$2").WithArgs(10, 5).
		WillReturnRows(sqlmock.NewRows(teamApplicationCols))

	apps, total, err := repo.List(context.Background(), "", 10, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || apps == nil || len(apps) != 0 {
		t.Errorf("total=%d apps=%v", total, apps)
	}
}

// ---------------------------------------------------------------------------
// ApproveWithAudit / RejectWithAudit
// ---------------------------------------------------------------------------

func approvalEntry() *models.AuditLog {
	return &models.AuditLog{
		UserID:       strPtr("staff-1"),
		Action:       "team_application.approved",
		ResourceType: strPtr("team_application"),
		ResourceID:   strPtr("42"),
		Metadata:     map[string]interface{}{"application_id": 42, "created_count": 3},
	}
}

func TestApproveWithAudit_Success(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE team_applications").
		WithArgs(int64(42), models.ApplicationStatusApproved, "active", sqlmock.AnyArg(), "staff-1", "orientation", models.ApplicationStatusSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	at, err := repo.ApproveWithAudit(context.Background(), 42, "staff-1", "orientation", approvalEntry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if at.IsZero() {
		t.Error("expected approval timestamp")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApproveWithAudit_AlreadyApproved(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE team_applications").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ApproveWithAudit(context.Background(), 42, "staff-1", "orientation", approvalEntry())
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("error = %v, want ErrStaleState", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("audit row must not be written: %v", err)
	}
}

func TestApproveWithAudit_AuditFailureRollsBack(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE team_applications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := repo.ApproveWithAudit(context.Background(), 42, "staff-1", "orientation", approvalEntry()); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRejectWithAudit(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE team_applications").
		WithArgs(int64(8), models.ApplicationStatusRejected, "incomplete roster", sqlmock.AnyArg(), models.ApplicationStatusSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry := &models.AuditLog{Action: "team_application.rejected"}
	if err := repo.RejectWithAudit(context.Background(), 8, "incomplete roster", entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRejectWithAudit_NotSubmitted(t *testing.T) {
	repo, mock := newTeamAppRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE team_applications").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.RejectWithAudit(context.Background(), 8, "late", &models.AuditLog{Action: "team_application.rejected"})
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("error = %v, want ErrStaleState", err)
	}
}
