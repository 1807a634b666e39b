package approval

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/identity"
	"github.com/volunteer-hub/volunteer-hub/internal/notify"
	"github.com/volunteer-hub/volunteer-hub/internal/telemetry"
)

// Provision finds or creates an identity account for every member with a name
// and an email. Members are processed one at a time and a failure on one never
// stops the others. A repeated email is reported as a failure, not skipped.
func (s *Service) Provision(ctx context.Context, members []models.MemberRecord) []MemberResult {
	results := make([]MemberResult, 0, len(members))
	seen := make(map[string]struct{}, len(members))

	for _, m := range members {
		name := strings.TrimSpace(m.Name)
		email := m.NormalizedEmail()
		if name == "" || email == "" {
			slog.WarnContext(ctx, "skipping team member without name or email", "name", name, "email", email)
			telemetry.MemberProvisioningTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if _, dup := seen[email]; dup {
			slog.WarnContext(ctx, "duplicate team member email", "email", email)
			telemetry.MemberProvisioningTotal.WithLabelValues("failed").Inc()
			results = append(results, failed(m, email, "duplicate email within the team", nil))
			continue
		}
		seen[email] = struct{}{}

		r := s.provisionMember(ctx, m, name, email)
		if r.Failure != nil {
			slog.WarnContext(ctx, "member provisioning failed", "email", email, "error", r.Failure)
			telemetry.MemberProvisioningTotal.WithLabelValues("failed").Inc()
		}
		results = append(results, r)
	}
	return results
}

func (s *Service) provisionMember(ctx context.Context, m models.MemberRecord, name, email string) MemberResult {
	if err := s.validate.Var(email, "email"); err != nil {
		return failed(m, email, "invalid email address", err)
	}

	phone := strings.TrimSpace(m.Phone)

	existing, err := s.accounts.LookupByEmail(ctx, email)
	if err != nil {
		return failed(m, email, "account lookup failed", err)
	}
	if existing != nil {
		telemetry.MemberProvisioningTotal.WithLabelValues("reused").Inc()
		return succeeded(m, ProvisionedAccount{UserID: existing.ID, Email: existing.Email, Name: name, Phone: phone})
	}

	credential, err := s.newCredential()
	if err != nil {
		return failed(m, email, "could not generate a temporary password", err)
	}

	created, err := s.accounts.CreateAccount(ctx, identity.NewAccount{
		Email:      email,
		Name:       name,
		Phone:      phone,
		School:     strings.TrimSpace(m.School),
		Credential: credential,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return failed(m, email, identity.ErrEmailTaken.Error(), err)
		}
		return failed(m, email, "account creation failed", err)
	}
	telemetry.MemberProvisioningTotal.WithLabelValues("created").Inc()

	if nerr := s.sendWelcome(ctx, name, email, credential); nerr != nil {
		slog.WarnContext(ctx, "welcome email not delivered", "email", email, "user_id", created.ID, "error", nerr)
	}

	return succeeded(m, ProvisionedAccount{UserID: created.ID, Email: created.Email, Name: name, Phone: phone, Created: true})
}

// sendWelcome delivers the temporary credential. Failures are returned for
// logging only.
func (s *Service) sendWelcome(ctx context.Context, name, email, credential string) *NotificationError {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.Send(ctx, notify.WelcomeMessage(name, email, credential, s.loginURL)); err != nil {
		telemetry.WelcomeEmailsTotal.WithLabelValues("failed").Inc()
		return &NotificationError{Email: email, Err: err}
	}
	telemetry.WelcomeEmailsTotal.WithLabelValues("sent").Inc()
	return nil
}
