// Package models - linkage.go defines the rows written when a team is approved:
// the team membership link and the signup-source attribution.
package models

import "time"

// SignupSourceTeamApplication marks accounts created by a team approval
const SignupSourceTeamApplication = "team_application"

// TeamMembership links an identity account to the team application it belongs to.
// Unique on (TeamApplicationID, UserID).
type TeamMembership struct {
	ID                string    `db:"id" json:"id"`
	TeamApplicationID int64     `db:"team_application_id" json:"team_application_id"`
	UserID            string    `db:"user_id" json:"user_id"`
	IsPrimaryContact  bool      `db:"is_primary_contact" json:"is_primary_contact"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// SignupSource records which flow created an account. Unique on (UserID, SourceType).
type SignupSource struct {
	ID         string
	UserID     string
	SourceType string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
