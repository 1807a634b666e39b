package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/volunteer-hub/volunteer-hub/internal/audit"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/db/repositories"
)

// ActionApproved is the audit action written when an application is approved.
const ActionApproved = "team_application.approved"

// Finalize marks the application approved and writes its audit entry in one
// transaction. With no provisioned members nothing is written; the returned
// Summary still itemizes every member failure next to ErrProvisioningFailed.
func (s *Service) Finalize(ctx context.Context, actor Actor, app *models.TeamApplication, results []MemberResult, linkErrs []error) (*Summary, error) {
	successes, memberErrs := partition(results)
	for _, err := range linkErrs {
		var lerr *LinkageWriteError
		if errors.As(err, &lerr) {
			memberErrs = append(memberErrs, MemberError{Email: lerr.Email, Error: fmt.Sprintf("failed to record %s", lerr.Table)})
		}
	}

	if len(successes) == 0 {
		slog.WarnContext(ctx, "approval aborted, no member accounts provisioned",
			"application_id", app.ID, "errors", len(memberErrs))
		return &Summary{
			OK:            false,
			Message:       "No member accounts could be provisioned",
			ApplicationID: app.ID,
			TeamName:      app.TeamName,
			CreatedUsers:  []ProvisionedAccount{},
			Errors:        memberErrs,
		}, ErrProvisioningFailed
	}

	entry := approvalAuditEntry(actor, app, successes, memberErrs)
	entry.CreatedAt = s.now()

	if _, err := s.apps.ApproveWithAudit(ctx, app.ID, actor.UserID, models.FirstOnboardingStage(), entry); err != nil {
		if errors.Is(err, repositories.ErrStaleState) {
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("failed to finalize team application: %w", err)
	}

	if s.shipper != nil {
		if err := s.shipper.Ship(ctx, audit.EntryFromModel(entry)); err != nil {
			slog.WarnContext(ctx, "failed to ship approval audit entry", "application_id", app.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "team application approved",
		"application_id", app.ID, "user_id", actor.UserID, "created_count", len(successes), "errors", len(memberErrs))

	return &Summary{
		OK:            true,
		Message:       fmt.Sprintf("Team %q approved with %d member account(s)", app.TeamName, len(successes)),
		ApplicationID: app.ID,
		TeamName:      app.TeamName,
		CreatedUsers:  successes,
		Errors:        memberErrs,
	}, nil
}

func approvalAuditEntry(actor Actor, app *models.TeamApplication, successes []ProvisionedAccount, memberErrs []MemberError) *models.AuditLog {
	ids := make([]string, 0, len(successes))
	newAccounts := 0
	for _, acct := range successes {
		ids = append(ids, acct.UserID)
		if acct.Created {
			newAccounts++
		}
	}

	metadata := map[string]interface{}{
		"application_id":   app.ID,
		"team_name":        app.TeamName,
		"created_count":    len(successes),
		"new_accounts":     newAccounts,
		"created_user_ids": ids,
	}
	if len(memberErrs) > 0 {
		metadata["errors"] = memberErrs
	}

	resourceType := "team_application"
	resourceID := strconv.FormatInt(app.ID, 10)
	entry := &models.AuditLog{
		Action:       ActionApproved,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		Metadata:     metadata,
	}
	if actor.UserID != "" {
		uid := actor.UserID
		entry.UserID = &uid
	}
	if actor.IPAddress != "" {
		ip := actor.IPAddress
		entry.IPAddress = &ip
	}
	return entry
}
