// linkage_repository.go implements LinkageRepository, the idempotent writes that link a
// provisioned account to its team and record how the account was created.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
)

// LinkageRepository handles team membership and signup source database operations
type LinkageRepository struct {
	db *sqlx.DB
}

// NewLinkageRepository creates a new LinkageRepository
func NewLinkageRepository(db *sqlx.DB) *LinkageRepository {
	return &LinkageRepository{db: db}
}

// UpsertTeamMembership inserts the membership or, when the (team, user) pair already
// exists, refreshes its primary-contact flag. Safe to repeat.
func (r *LinkageRepository) UpsertTeamMembership(ctx context.Context, m *models.TeamMembership) error {
	now := time.Now()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO team_memberships (id, team_application_id, user_id, is_primary_contact, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (team_application_id, user_id) DO UPDATE
		SET is_primary_contact = EXCLUDED.is_primary_contact,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.TeamApplicationID, m.UserID, m.IsPrimaryContact, now,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert team membership: %w", err)
	}
	return nil
}

// UpsertSignupSource records the signup source for a user, replacing the metadata
// when a row of the same source type exists.
func (r *LinkageRepository) UpsertSignupSource(ctx context.Context, s *models.SignupSource) error {
	now := time.Now()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	metadataJSON := []byte(`{}`)
	if s.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(s.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal signup source metadata: %w", err)
		}
	}

	query := `
		INSERT INTO signup_sources (id, user_id, source_type, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, source_type) DO UPDATE
		SET metadata = EXCLUDED.metadata,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		s.ID, s.UserID, s.SourceType, metadataJSON, now,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert signup source: %w", err)
	}
	return nil
}

// ListTeamMemberships returns the memberships of an application, primary contact first
func (r *LinkageRepository) ListTeamMemberships(ctx context.Context, teamApplicationID int64) ([]*models.TeamMembership, error) {
	query := `
		SELECT id, team_application_id, user_id, is_primary_contact, created_at, updated_at
		FROM team_memberships
		WHERE team_application_id = $1
		ORDER BY is_primary_contact DESC, created_at
	`
	memberships := make([]*models.TeamMembership, 0)
	if err := r.db.SelectContext(ctx, &memberships, query, teamApplicationID); err != nil {
		return nil, fmt.Errorf("failed to list team memberships: %w", err)
	}
	return memberships, nil
}
