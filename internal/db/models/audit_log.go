// Package models - audit_log.go defines the AuditLog model for recording review decisions
// and other security-relevant events with actor, action, resource, client IP and metadata.
package models

import "time"

// AuditLog represents an audit log entry for tracking user actions
type AuditLog struct {
	ID           string
	UserID       *string                // Nullable for system actions
	Action       string                 // "team_application.approved", "POST /api/v1/..."
	ResourceType *string                // "team_application", "session"
	ResourceID   *string                // ID of affected resource
	Metadata     map[string]interface{} // JSONB: additional context
	IPAddress    *string                // Client IP
	CreatedAt    time.Time
}
