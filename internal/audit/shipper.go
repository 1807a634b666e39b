// Package audit ships audit entries to destinations outside the database.
// Every entry is first written to the audit_logs table; shippers copy it to a
// webhook, a local JSON-lines file or the object storage archive. Shipping is
// best effort and never fails the request that produced the entry.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/volunteer-hub/volunteer-hub/internal/config"
	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
	"github.com/volunteer-hub/volunteer-hub/internal/storage"
)

// LogEntry represents a structured audit log entry
type LogEntry struct {
	ID           string                 `json:"id,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	UserID       string                 `json:"user_id,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	StatusCode   int                    `json:"status_code,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EntryFromModel converts a persisted audit row into a shippable entry.
func EntryFromModel(log *models.AuditLog) *LogEntry {
	entry := &LogEntry{
		ID:        log.ID,
		Timestamp: log.CreatedAt,
		Action:    log.Action,
		Metadata:  log.Metadata,
	}
	if log.UserID != nil {
		entry.UserID = *log.UserID
	}
	if log.ResourceType != nil {
		entry.ResourceType = *log.ResourceType
	}
	if log.ResourceID != nil {
		entry.ResourceID = *log.ResourceID
	}
	if log.IPAddress != nil {
		entry.IPAddress = *log.IPAddress
	}
	return entry
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close cleans up any resources
	Close() error
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []Shipper
	mu       sync.RWMutex
}

// NewMultiShipper creates a new multi-shipper from configs. store backs the
// "storage" shipper type and may be nil when that type is not configured.
func NewMultiShipper(configs []config.AuditShipperConfig, store storage.Storage) (*MultiShipper, error) {
	ms := &MultiShipper{
		shippers: make([]Shipper, 0),
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		case "storage":
			if store == nil {
				return nil, fmt.Errorf("a storage backend is required for storage shipper")
			}
			prefix := ""
			if cfg.Storage != nil {
				prefix = cfg.Storage.Prefix
			}
			shipper = NewStorageShipper(store, prefix)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, shipper)
	}

	return ms, nil
}

// Len returns the number of active shippers.
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends an entry to all configured shippers
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			lastErr = err
			slog.Warn("audit shipper error", "action", entry.Action, "error", err)
		}
	}
	return lastErr
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
