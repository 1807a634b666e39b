package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/volunteer-hub/volunteer-hub/internal/storage"
	"github.com/volunteer-hub/volunteer-hub/pkg/checksum"
)

// ErrChecksumMismatch is returned by Verify when an archived entry no longer
// matches its sidecar.
var ErrChecksumMismatch = errors.New("audit archive checksum mismatch")

// DefaultArchivePrefix is used when the storage shipper has no prefix configured.
const DefaultArchivePrefix = "audit"

// StorageShipper archives each entry as its own JSON object in the configured
// object storage backend, under <prefix>/YYYY/MM/DD/<unix-nanos>-<action>.json,
// with a sha256sum sidecar next to it.
type StorageShipper struct {
	store  storage.Storage
	prefix string
}

// NewStorageShipper creates a shipper writing to store.
func NewStorageShipper(store storage.Storage, prefix string) *StorageShipper {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	return &StorageShipper{store: store, prefix: prefix}
}

// ArchiveKey returns the object key an entry is stored under.
func (s *StorageShipper) ArchiveKey(entry *LogEntry) string {
	ts := entry.Timestamp.UTC()
	return fmt.Sprintf("%s/%s/%d-%s.json", s.prefix, ts.Format("2006/01/02"), ts.UnixNano(), sanitizeAction(entry.Action))
}

// Ship uploads the entry.
func (s *StorageShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	key := s.ArchiveKey(entry)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("failed to archive audit entry %s: %w", key, err)
	}
	sidecar := checksum.SidecarLine(data, key)
	if err := s.store.Put(ctx, key+checksum.SidecarSuffix, strings.NewReader(sidecar), "text/plain"); err != nil {
		return fmt.Errorf("failed to write checksum for %s: %w", key, err)
	}
	return nil
}

// Verify checks an archived object against its sidecar.
func (s *StorageShipper) Verify(ctx context.Context, key string) error {
	rc, err := s.store.Get(ctx, key+checksum.SidecarSuffix)
	if err != nil {
		return fmt.Errorf("failed to read checksum for %s: %w", key, err)
	}
	digest, _, err := checksum.ParseSidecar(rc)
	rc.Close()
	if err != nil {
		return err
	}

	obj, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read archived entry %s: %w", key, err)
	}
	defer obj.Close()

	ok, err := checksum.VerifySHA256(obj, digest)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, key)
	}
	return nil
}

// Close is a no-op; the storage backend is owned by the caller.
func (s *StorageShipper) Close() error { return nil }

// sanitizeAction keeps action names like "POST /api/v1/team-applications" usable as key segments.
func sanitizeAction(action string) string {
	if action == "" {
		return "event"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, action)
}
