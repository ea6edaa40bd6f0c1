package entitlements

import "time"

// Record represents a client's active VPN entitlement. A record exists in a
// Store iff the client currently holds provisioned access that has not been
// revoked; the store is the authoritative ledger, not a cache.
type Record struct {
	ClientID  string    `json:"client_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record's term has elapsed at the given instant.
// A record expiring exactly at now is expired.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
