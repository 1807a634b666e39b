// Package approval implements the team application approval workflow. One
// Approve call validates the request, provisions an identity account per
// member, links the accounts to the team and finalizes the application status
// with an audit entry. Member-level failures are collected, not returned.
package approval

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/volunteer-hub/volunteer-hub/internal/audit"
	"github.com/volunteer-hub/volunteer-hub/internal/auth"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/identity"
	"github.com/volunteer-hub/volunteer-hub/internal/notify"
	"github.com/volunteer-hub/volunteer-hub/internal/telemetry"
)

// ApplicationStore reads and finalizes team applications.
type ApplicationStore interface {
	GetByID(ctx context.Context, id int64) (*models.TeamApplication, error)
	ApproveWithAudit(ctx context.Context, id int64, approvedBy, onboardingStage string, entry *models.AuditLog) (time.Time, error)
}

// AccountStore is the identity service used for provisioning.
type AccountStore interface {
	LookupByEmail(ctx context.Context, email string) (*models.IdentityAccount, error)
	CreateAccount(ctx context.Context, in identity.NewAccount) (*models.IdentityAccount, error)
}

// LinkageStore upserts the rows tying accounts to a team.
type LinkageStore interface {
	UpsertTeamMembership(ctx context.Context, m *models.TeamMembership) error
	UpsertSignupSource(ctx context.Context, s *models.SignupSource) error
}

// Dependencies are the collaborators of a Service. Shipper and NewCredential
// are optional.
type Dependencies struct {
	Applications ApplicationStore
	Accounts     AccountStore
	Linkage      LinkageStore
	Notifier     notify.Sender
	Shipper      audit.Shipper
	LoginURL     string

	NewCredential func() (string, error)
}

// Service runs the approval workflow
type Service struct {
	apps          ApplicationStore
	accounts      AccountStore
	linkage       LinkageStore
	notifier      notify.Sender
	shipper       audit.Shipper
	loginURL      string
	newCredential func() (string, error)
	validate      *validator.Validate
	now           func() time.Time
}

// NewService creates a Service
func NewService(deps Dependencies) *Service {
	s := &Service{
		apps:          deps.Applications,
		accounts:      deps.Accounts,
		linkage:       deps.Linkage,
		notifier:      deps.Notifier,
		shipper:       deps.Shipper,
		loginURL:      deps.LoginURL,
		newCredential: deps.NewCredential,
		validate:      validator.New(),
		now:           time.Now,
	}
	if s.newCredential == nil {
		s.newCredential = auth.GenerateTemporaryCredential
	}
	return s
}

// Approve runs validation, provisioning, linkage and finalization for one
// application. On ErrProvisioningFailed the returned Summary is non-nil and
// carries the per-member errors.
func (s *Service) Approve(ctx context.Context, actor Actor, applicationID int64) (*Summary, error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "approval.Approve", trace.WithAttributes(
		attribute.Int64("application.id", applicationID),
		attribute.String("actor.id", actor.UserID),
	))
	defer span.End()

	summary, err := s.approve(ctx, actor, applicationID)

	telemetry.ApprovalsTotal.WithLabelValues(outcome(err)).Inc()
	telemetry.ApprovalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return summary, err
}

func (s *Service) approve(ctx context.Context, actor Actor, applicationID int64) (*Summary, error) {
	var (
		app     *models.TeamApplication
		members []models.MemberRecord
		err     error
	)
	withSpan(ctx, "approval.validate", func(ctx context.Context) error {
		app, members, err = s.Validate(ctx, actor, applicationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var results []MemberResult
	withSpan(ctx, "approval.provision", func(ctx context.Context) error {
		results = s.Provision(ctx, members)
		return nil
	})

	successes, _ := partition(results)
	var linkErrs []error
	withSpan(ctx, "approval.link", func(ctx context.Context) error {
		linkErrs = s.RecordLinkage(ctx, app, successes)
		return nil
	})

	var summary *Summary
	withSpan(ctx, "approval.finalize", func(ctx context.Context) error {
		summary, err = s.Finalize(ctx, actor, app, results, linkErrs)
		return err
	})
	return summary, err
}

func withSpan(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx, span := telemetry.Tracer().Start(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
