package approval

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/telemetry"
)

// RecordLinkage upserts a team membership and a signup source for every
// provisioned account. Write failures are logged and returned as
// *LinkageWriteError values; they never stop the loop.
func (s *Service) RecordLinkage(ctx context.Context, app *models.TeamApplication, accounts []ProvisionedAccount) []error {
	var errs []error
	record := func(table string, acct ProvisionedAccount, err error) {
		telemetry.LinkageWriteErrorsTotal.WithLabelValues(table).Inc()
		lerr := &LinkageWriteError{Table: table, Email: acct.Email, UserID: acct.UserID, Err: err}
		slog.ErrorContext(ctx, "linkage write failed", "application_id", app.ID, "user_id", acct.UserID, "table", table, "error", err)
		errs = append(errs, lerr)
	}

	for _, acct := range accounts {
		membership := &models.TeamMembership{
			TeamApplicationID: app.ID,
			UserID:            acct.UserID,
			IsPrimaryContact:  isPrimaryContact(app.PrimaryContact, acct),
		}
		if err := s.linkage.UpsertTeamMembership(ctx, membership); err != nil {
			record("team_memberships", acct, err)
		}

		source := &models.SignupSource{
			UserID:     acct.UserID,
			SourceType: models.SignupSourceTeamApplication,
			Metadata: map[string]interface{}{
				"application_id": app.ID,
				"team_name":      app.TeamName,
			},
		}
		if err := s.linkage.UpsertSignupSource(ctx, source); err != nil {
			record("signup_sources", acct, err)
		}
	}
	return errs
}

// isPrimaryContact matches the application's primary contact against the
// member's email (case-insensitive) or phone number (digits only).
func isPrimaryContact(primary string, acct ProvisionedAccount) bool {
	primary = strings.TrimSpace(primary)
	if primary == "" {
		return false
	}
	if strings.EqualFold(primary, acct.Email) {
		return true
	}
	want := digitsOnly(primary)
	return want != "" && want == digitsOnly(acct.Phone)
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
