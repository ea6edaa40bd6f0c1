package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/open-rails/vpnkit/entitlements"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	return New(path), path
}

func TestMissingFileIsEmptyLedger(t *testing.T) {
	s, _ := newTestStore(t)
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 0 {
		t.Fatalf("snapshot = %v", snap)
	}
}

func TestRoundTrip(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()
	rec := entitlements.Record{
		ClientID:  "jane_doe",
		Email:     "Jane.Doe@example.com",
		ExpiresAt: time.Date(2026, 9, 29, 12, 0, 0, 0, time.UTC),
	}
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// A fresh store over the same file sees the record.
	got, err := New(path).Get(ctx, "jane_doe")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Email != rec.Email || !got.ExpiresAt.Equal(rec.ExpiresAt) {
		t.Fatalf("got %+v, want %+v", got, rec)
	}

	removed, err := s.Delete(ctx, "jane_doe")
	if err != nil || !removed {
		t.Fatalf("delete = (%v, %v)", removed, err)
	}
	if got, _ := s.Get(ctx, "jane_doe"); got != nil {
		t.Fatal("record should be gone")
	}
}

func TestOnDiskShapeMatchesOriginalTooling(t *testing.T) {
	s, path := newTestStore(t)
	err := s.Upsert(context.Background(), entitlements.Record{
		ClientID:  "jane_doe",
		Email:     "jane.doe@example.com",
		ExpiresAt: time.Date(2026, 9, 29, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var disk map[string]map[string]string
	if err := json.Unmarshal(raw, &disk); err != nil {
		t.Fatalf("ledger is not the flat map shape: %v", err)
	}
	entry := disk["jane_doe"]
	if entry["email"] != "jane.doe@example.com" {
		t.Errorf("email field = %q", entry["email"])
	}
	if entry["expires_at"] != "2026-09-29T12:00:00Z" {
		t.Errorf("expires_at field = %q", entry["expires_at"])
	}
}

func TestReadsLegacyNaiveTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	legacy := `{
    "jane_doe": {
        "email": "jane@example.com",
        "expires_at": "2026-09-29T12:00:00.123456"
    }
}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := New(path).Get(context.Background(), "jane_doe")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("record not found")
	}
	want := time.Date(2026, 9, 29, 12, 0, 0, 123456000, time.UTC)
	if !got.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v (naive timestamps read as UTC)", got.ExpiresAt, want)
	}
}

func TestCorruptLedgerSurfacesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path).Snapshot(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	s, path := newTestStore(t)
	for i := 0; i < 3; i++ {
		err := s.Upsert(context.Background(), entitlements.Record{
			ClientID:  "jane",
			Email:     "jane@example.com",
			ExpiresAt: time.Now().UTC().Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only the ledger file, found %v", names)
	}
}
