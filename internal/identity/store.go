// Package identity is the account store used by the approval workflow and the login
// handler. It hides hashing and profile creation behind lookup/create/authenticate calls.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/volunteer-hub/volunteer-hub/internal/auth"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/db/repositories"
)

var (
	// ErrEmailTaken is returned by CreateAccount when the email already has an account.
	ErrEmailTaken = errors.New("an account with this email already exists")

	// ErrInvalidCredentials is returned by Authenticate for unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// NewAccount is the input for CreateAccount. Role defaults to volunteer.
type NewAccount struct {
	Email      string
	Name       string
	Phone      string
	School     string
	Credential string
	Role       string
}

// Repository is the persistence the store needs
type Repository interface {
	GetAccountByEmail(ctx context.Context, email string) (*models.IdentityAccount, error)
	GetAccountWithProfile(ctx context.Context, userID string) (*models.AccountWithProfile, error)
	CreateAccountWithProfile(ctx context.Context, acct *models.IdentityAccount, role string) error
}

// Store implements account lookup, creation and authentication
type Store struct {
	repo Repository
}

// NewStore creates a Store over repo, usually a *repositories.IdentityRepository
func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// LookupByEmail returns the account for email, or nil when none exists.
func (s *Store) LookupByEmail(ctx context.Context, email string) (*models.IdentityAccount, error) {
	acct, err := s.repo.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return acct, nil
}

// CreateAccount creates a pre-verified account. The credential is hashed before
// storage; name, phone and school are kept as account metadata.
func (s *Store) CreateAccount(ctx context.Context, in NewAccount) (*models.IdentityAccount, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	if in.Credential == "" {
		return nil, errors.New("credential is required")
	}

	role := in.Role
	if role == "" {
		role = models.RoleVolunteer
	}
	if !auth.IsKnownRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	hash, err := auth.HashCredential(in.Credential)
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]string{
		"name":   in.Name,
		"phone":  in.Phone,
		"school": in.School,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode account metadata: %w", err)
	}

	acct := &models.IdentityAccount{
		Email:          email,
		Name:           strings.TrimSpace(in.Name),
		CredentialHash: hash,
		EmailVerified:  true,
		Metadata:       metadata,
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		acct.Phone = &phone
	}

	if err := s.repo.CreateAccountWithProfile(ctx, acct, role); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acct, nil
}

// Authenticate checks an email/password pair and returns the account with its profile.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*models.AccountWithProfile, error) {
	acct, err := s.repo.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if acct == nil || !auth.CheckCredential(password, acct.CredentialHash) {
		return nil, ErrInvalidCredentials
	}

	full, err := s.repo.GetAccountWithProfile(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if full == nil {
		return nil, ErrInvalidCredentials
	}
	return full, nil
}

// Get returns an account with its profile, or nil.
func (s *Store) Get(ctx context.Context, userID string) (*models.AccountWithProfile, error) {
	return s.repo.GetAccountWithProfile(ctx, userID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
