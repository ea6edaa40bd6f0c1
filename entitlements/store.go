package entitlements

import "context"

// Store persists the entitlement ledger keyed by client ID.
//
// Implementations must make each mutation atomic with respect to the durable
// backing representation: a crash between mutation and flush must never leave
// mixed old/new state for a key. Get returns nil (not an error) when the
// client has no record. Delete reports whether a record was actually removed
// so callers can skip redundant revoke work.
type Store interface {
	Get(ctx context.Context, clientID string) (*Record, error)
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, clientID string) (bool, error)

	// Snapshot returns a consistent point-in-time copy of all records.
	// Order is unspecified. Mutating the returned slice must not affect
	// the store.
	Snapshot(ctx context.Context) ([]Record, error)
}
