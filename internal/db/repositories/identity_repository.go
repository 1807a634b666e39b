// identity_repository.go implements IdentityRepository, the database side of the identity
// store: account lookup by email, account + profile creation and session lookups.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volunteer-hub/volunteer-hub/internal/db"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
)

// IdentityRepository handles identity account and profile database operations
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new IdentityRepository
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

const accountColumns = `id, email, name, phone, credential_hash, email_verified, metadata, created_at, updated_at`

// GetAccountByEmail returns the account whose email matches case-insensitively, or nil.
func (r *IdentityRepository) GetAccountByEmail(ctx context.Context, email string) (*models.IdentityAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM identity_accounts WHERE LOWER(email) = LOWER($1)`

	var acct models.IdentityAccount
	err := r.db.QueryRowxContext(ctx, query, email).StructScan(&acct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return &acct, nil
}

// GetAccountWithProfile returns an account joined with its profile, or nil.
// Accounts without a profile row get an empty role.
func (r *IdentityRepository) GetAccountWithProfile(ctx context.Context, userID string) (*models.AccountWithProfile, error) {
	query := `
		SELECT a.id, a.email, a.name, a.phone, a.credential_hash, a.email_verified, a.metadata,
		       a.created_at, a.updated_at,
		       COALESCE(p.role, '') AS role,
		       COALESCE(p.department, '') AS department,
		       COALESCE(p.subrole, '') AS subrole
		FROM identity_accounts a
		LEFT JOIN profiles p ON p.user_id = a.id
		WHERE a.id = $1
	`

	var acct models.AccountWithProfile
	err := r.db.QueryRowxContext(ctx, query, userID).StructScan(&acct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account with profile: %w", err)
	}
	return &acct, nil
}

// CreateAccountWithProfile inserts an account and its profile in one transaction.
// ID and timestamps are assigned here. A clash on the email index returns ErrDuplicate.
func (r *IdentityRepository) CreateAccountWithProfile(ctx context.Context, acct *models.IdentityAccount, role string) error {
	acct.ID = uuid.New().String()
	now := time.Now()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	if acct.Metadata == nil {
		acct.Metadata = []byte(`{}`)
	}

	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO identity_accounts (id, email, name, phone, credential_hash, email_verified, metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			acct.ID, acct.Email, acct.Name, acct.Phone, acct.CredentialHash,
			acct.EmailVerified, acct.Metadata, acct.CreatedAt, acct.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("account %s: %w", acct.Email, ErrDuplicate)
			}
			return fmt.Errorf("failed to insert identity account: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO profiles (user_id, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4)`,
			acct.ID, role, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}
		return nil
	})
}
