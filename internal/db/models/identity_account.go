// Package models - identity_account.go defines the IdentityAccount and Profile models.
// An identity account exists once per unique email; the profile carries its role.
package models

import "time"

// IdentityAccount is a login identity. Email is unique across the store.
type IdentityAccount struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	Name           string    `db:"name" json:"name"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	CredentialHash string    `db:"credential_hash" json:"-"`
	EmailVerified  bool      `db:"email_verified" json:"email_verified"`
	Metadata       []byte    `db:"metadata" json:"-"` // JSONB user metadata (name, phone, school)
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Role names stored on profiles
const (
	RoleAdmin       = "admin"
	RoleStaff       = "staff"
	RoleChapterLead = "chapter_lead"
	RoleVolunteer   = "volunteer"
	RoleTeacher     = "teacher"
)

// Profile holds the authorization attributes of an identity account
type Profile struct {
	UserID     string    `db:"user_id" json:"user_id"`
	Role       string    `db:"role" json:"role"`
	Department string    `db:"department" json:"department,omitempty"`
	Subrole    string    `db:"subrole" json:"subrole,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// AccountWithProfile joins an account with its profile for session lookups
type AccountWithProfile struct {
	IdentityAccount
	Role       string `db:"role" json:"role"`
	Department string `db:"department" json:"department,omitempty"`
	Subrole    string `db:"subrole" json:"subrole,omitempty"`
}
