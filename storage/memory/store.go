package memorystore

import (
	"context"
	"sync"

	"github.com/open-rails/vpnkit/entitlements"
)

// Store is an in-memory implementation of entitlements.Store, used in tests
// and single-node setups where durability is handled elsewhere.
type Store struct {
	mu   sync.Mutex
	data map[string]entitlements.Record
}

func New() *Store {
	return &Store{data: make(map[string]entitlements.Record)}
}

func (s *Store) Get(ctx context.Context, clientID string) (*entitlements.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[clientID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) Upsert(ctx context.Context, rec entitlements.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.ClientID] = rec
	return nil
}

func (s *Store) Delete(ctx context.Context, clientID string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[clientID]
	if ok {
		delete(s.data, clientID)
	}
	return ok, nil
}

func (s *Store) Snapshot(ctx context.Context) ([]entitlements.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entitlements.Record, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, rec)
	}
	return out, nil
}
