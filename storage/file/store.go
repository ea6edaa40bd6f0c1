// Package filestore persists the entitlement ledger in a single JSON file,
// wire-compatible with the subscriptions.json shape the original shell
// tooling reads: a map of client ID to {"email", "expires_at"}.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-rails/vpnkit/entitlements"
)

// Store is a durable file-backed implementation of entitlements.Store. The
// file on disk is the source of truth: every operation reads it fresh, and
// every mutation rewrites it atomically (temp file + rename) so a crash
// leaves either the old ledger or the new one, never a mix.
type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// diskRecord is the on-disk value shape. Timestamps are written RFC 3339
// UTC; legacy files written with naive ISO-8601 timestamps (no zone) are
// read as UTC.
type diskRecord struct {
	Email     string `json:"email"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Store) Get(ctx context.Context, clientID string) (*entitlements.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := data[clientID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) Upsert(ctx context.Context, rec entitlements.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load()
	if err != nil {
		return err
	}
	data[rec.ClientID] = rec
	return s.save(data)
}

func (s *Store) Delete(ctx context.Context, clientID string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load()
	if err != nil {
		return false, err
	}
	if _, ok := data[clientID]; !ok {
		return false, nil
	}
	delete(data, clientID)
	if err := s.save(data); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Snapshot(ctx context.Context) ([]entitlements.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]entitlements.Record, 0, len(data))
	for _, rec := range data {
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) load() (map[string]entitlements.Record, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]entitlements.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", s.path, err)
	}
	var disk map[string]diskRecord
	if err := json.Unmarshal(raw, &disk); err != nil {
		return nil, fmt.Errorf("filestore: parse %s: %w", s.path, err)
	}
	out := make(map[string]entitlements.Record, len(disk))
	for clientID, d := range disk {
		exp, err := parseTimestamp(d.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("filestore: bad expires_at for %s: %w", clientID, err)
		}
		out[clientID] = entitlements.Record{ClientID: clientID, Email: d.Email, ExpiresAt: exp}
	}
	return out, nil
}

func (s *Store) save(data map[string]entitlements.Record) error {
	disk := make(map[string]diskRecord, len(data))
	for clientID, rec := range data {
		disk[clientID] = diskRecord{
			Email:     rec.Email,
			ExpiresAt: rec.ExpiresAt.UTC().Format(time.RFC3339),
		}
	}
	// Indented so the ledger stays hand-inspectable on the VPN host.
	raw, err := json.MarshalIndent(disk, "", "    ")
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".subscriptions-*.json")
	if err != nil {
		return fmt.Errorf("filestore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filestore: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("filestore: rename %s: %w", tmpName, err)
	}
	return nil
}

// parseTimestamp accepts RFC 3339 and the zone-less ISO-8601 form the
// original Python tooling wrote (interpreted as UTC).
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
