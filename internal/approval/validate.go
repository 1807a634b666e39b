package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/volunteer-hub/volunteer-hub/internal/auth"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
)

// Validate checks that actor may approve and that the application can be
// approved. It performs no writes.
func (s *Service) Validate(ctx context.Context, actor Actor, applicationID int64) (*models.TeamApplication, []models.MemberRecord, error) {
	if !actor.Capabilities().Has(auth.CapApplicationsApprove) {
		return nil, nil, ErrForbidden
	}

	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load team application: %w", err)
	}
	if app == nil {
		return nil, nil, ErrNotFound
	}
	if app.Status == models.ApplicationStatusApproved || app.Status == models.ApplicationStatusRejected {
		return nil, nil, ErrAlreadyProcessed
	}

	members, err := parseMembers(app.Members)
	if err != nil {
		return nil, nil, err
	}
	return app, members, nil
}

// parseMembers decodes the members JSONB column. Absent, null, non-array and
// short lists are all ErrInvalidState.
func parseMembers(raw []byte) ([]models.MemberRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: member list is missing", ErrInvalidState)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: member list is not an array", ErrInvalidState)
	}
	if len(entries) < models.MinTeamMembers {
		return nil, fmt.Errorf("%w: a team needs at least %d members, this one has %d",
			ErrInvalidState, models.MinTeamMembers, len(entries))
	}

	members := make([]models.MemberRecord, 0, len(entries))
	for i, entry := range entries {
		var m models.MemberRecord
		if err := json.Unmarshal(entry, &m); err != nil {
			return nil, fmt.Errorf("%w: member %d is malformed", ErrInvalidState, i+1)
		}
		members = append(members, m)
	}
	return members, nil
}
