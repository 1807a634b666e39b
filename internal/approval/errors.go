package approval

import (
	"errors"
	"fmt"
)

// Fatal workflow errors. Approve returns these (possibly wrapped with more
// detail) and leaves the application unchanged.
var (
	ErrForbidden          = errors.New("insufficient permissions to approve team applications")
	ErrNotFound           = errors.New("team application not found")
	ErrAlreadyProcessed   = errors.New("team application has already been processed")
	ErrInvalidState       = errors.New("team application is not in an approvable state")
	ErrProvisioningFailed = errors.New("no member accounts could be provisioned")
)

// MemberProvisioningError is the failure recorded for one member. It never
// aborts the workflow.
type MemberProvisioningError struct {
	Email  string
	Reason string
	Err    error
}

func (e *MemberProvisioningError) Error() string {
	return fmt.Sprintf("member %s: %s", e.Email, e.Reason)
}

func (e *MemberProvisioningError) Unwrap() error { return e.Err }

// LinkageWriteError is a failed membership or signup-source upsert.
type LinkageWriteError struct {
	Table  string
	Email  string
	UserID string
	Err    error
}

func (e *LinkageWriteError) Error() string {
	return fmt.Sprintf("failed to write %s for %s: %v", e.Table, e.Email, e.Err)
}

func (e *LinkageWriteError) Unwrap() error { return e.Err }

// NotificationError is a welcome email that could not be delivered. It is
// logged and counted only.
type NotificationError struct {
	Email string
	Err   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("failed to send welcome email to %s: %v", e.Email, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// outcome maps a workflow result to the team_approvals_total label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "approved"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrProvisioningFailed):
		return "provisioning_failed"
	default:
		return "error"
	}
}
