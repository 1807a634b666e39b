// team_application_repository.go implements TeamApplicationRepository: submission, review
// queries and the transactional status transitions (approve, reject) that also write the
// audit entry for the decision.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volunteer-hub/volunteer-hub/internal/db"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
)

// TeamApplicationRepository handles team application database operations
type TeamApplicationRepository struct {
	db *sqlx.DB
}

// NewTeamApplicationRepository creates a new TeamApplicationRepository
func NewTeamApplicationRepository(db *sqlx.DB) *TeamApplicationRepository {
	return &TeamApplicationRepository{db: db}
}

const teamApplicationColumns = `id, team_name, contact_email, primary_contact, school, members, status,
	operational_status, onboarding_stage, rejection_reason, approved_at, approved_by, rejected_at,
	created_at, updated_at`

// Create inserts a submitted application and fills in ID and timestamps
func (r *TeamApplicationRepository) Create(ctx context.Context, app *models.TeamApplication) error {
	app.Status = models.ApplicationStatusSubmitted
	app.OperationalStatus = models.OperationalStatusPending

	query := `
		INSERT INTO team_applications (team_name, contact_email, primary_contact, school, members, status, operational_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		app.TeamName, app.ContactEmail, app.PrimaryContact, app.School,
		app.Members, app.Status, app.OperationalStatus,
	).Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create team application: %w", err)
	}
	return nil
}

// GetByID returns an application by ID, or nil when it does not exist
func (r *TeamApplicationRepository) GetByID(ctx context.Context, id int64) (*models.TeamApplication, error) {
	query := `SELECT ` + teamApplicationColumns + ` FROM team_applications WHERE id = $1`

	var app models.TeamApplication
	err := r.db.QueryRowxContext(ctx, query, id).StructScan(&app)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team application: %w", err)
	}
	return &app, nil
}

// List returns applications newest first, optionally filtered by status, plus the total count
func (r *TeamApplicationRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.TeamApplication, int, error) {
	where := ""
	args := make([]interface{}, 0, 3)
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM team_applications`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count team applications: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM team_applications%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		teamApplicationColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	apps := make([]*models.TeamApplication, 0)
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list team applications: %w", err)
	}
	return apps, total, nil
}

// ApproveWithAudit moves a submitted application to approved/active, stamps the approver
// and first onboarding stage, and inserts entry, all in one transaction. When the
// application is no longer submitted nothing is written and ErrStaleState is returned.
func (r *TeamApplicationRepository) ApproveWithAudit(ctx context.Context, id int64, approvedBy, onboardingStage string, entry *models.AuditLog) (time.Time, error) {
	approvedAt := time.Now()

	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE team_applications
			SET status = $2, operational_status = $3, approved_at = $4, approved_by = $5,
			    onboarding_stage = $6, updated_at = $4
			WHERE id = $1 AND status = $7`,
			id, models.ApplicationStatusApproved, models.OperationalStatusActive, approvedAt,
			approvedBy, onboardingStage, models.ApplicationStatusSubmitted,
		)
		if err != nil {
			return fmt.Errorf("failed to approve team application: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		return insertAuditLog(ctx, tx, entry)
	})
	if err != nil {
		return time.Time{}, err
	}
	return approvedAt, nil
}

// RejectWithAudit moves a submitted application to rejected with a reason and inserts
// entry in the same transaction. Returns ErrStaleState when it was not submitted.
func (r *TeamApplicationRepository) RejectWithAudit(ctx context.Context, id int64, reason string, entry *models.AuditLog) error {
	now := time.Now()

	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE team_applications
			SET status = $2, rejection_reason = $3, rejected_at = $4, updated_at = $4
			WHERE id = $1 AND status = $5`,
			id, models.ApplicationStatusRejected, reason, now, models.ApplicationStatusSubmitted,
		)
		if err != nil {
			return fmt.Errorf("failed to reject team application: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		return insertAuditLog(ctx, tx, entry)
	})
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}
