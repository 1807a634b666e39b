package approval

import (
	"github.com/volunteer-hub/volunteer-hub/internal/auth"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
)

// Actor is the authenticated caller of a workflow action.
type Actor struct {
	UserID     string
	Email      string
	Role       string
	Department string
	Subrole    string
	IPAddress  string
}

// Capabilities returns the capability set of the actor's profile.
func (a Actor) Capabilities() auth.CapabilitySet {
	return auth.Capabilities(a.Role, a.Department, a.Subrole)
}

// ProvisionedAccount is an identity account bound to a team member.
type ProvisionedAccount struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Phone  string `json:"-"`
	// Created is false when an existing account was reused.
	Created bool `json:"-"`
}

// MemberResult is the outcome for one member: exactly one of Success and
// Failure is set.
type MemberResult struct {
	Member  models.MemberRecord
	Success *ProvisionedAccount
	Failure *MemberProvisioningError
}

func succeeded(m models.MemberRecord, acct ProvisionedAccount) MemberResult {
	return MemberResult{Member: m, Success: &acct}
}

func failed(m models.MemberRecord, email, reason string, err error) MemberResult {
	return MemberResult{Member: m, Failure: &MemberProvisioningError{Email: email, Reason: reason, Err: err}}
}

// MemberError is a non-fatal error reported to the caller.
type MemberError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Summary is the itemized result of an approval attempt.
type Summary struct {
	OK            bool                 `json:"ok"`
	Message       string               `json:"message"`
	ApplicationID int64                `json:"-"`
	TeamName      string               `json:"-"`
	CreatedUsers  []ProvisionedAccount `json:"created_users"`
	Errors        []MemberError        `json:"errors,omitempty"`
}

// partition splits results into successes and reportable failures.
func partition(results []MemberResult) ([]ProvisionedAccount, []MemberError) {
	successes := make([]ProvisionedAccount, 0, len(results))
	var failures []MemberError
	for _, r := range results {
		switch {
		case r.Success != nil:
			successes = append(successes, *r.Success)
		case r.Failure != nil:
			failures = append(failures, MemberError{Email: r.Failure.Email, Error: r.Failure.Reason})
		}
	}
	return successes, failures
}
