package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorizedEvent means the payload's signature did not verify.
	// The event must be rejected without touching any state.
	ErrUnauthorizedEvent = errors.New("core: unauthorized event")

	// ErrInvalidIdentity means a contact address could not be normalized
	// into a client ID (no local part to extract).
	ErrInvalidIdentity = errors.New("core: invalid contact address")
)

// ProvisionError reports a failed call to the external provisioning tooling
// for a single client. The entitlement ledger is kept consistent with intent
// (see Service docs); the error exists so operators can remediate.
type ProvisionError struct {
	ClientID string
	Op       string // "add-client" or "revoke"
	Err      error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("core: provision %s failed for %s: %v", e.Op, e.ClientID, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// StorageError wraps a failed durable write. An operation whose entitlement
// change did not persist must not be reported as successful.
type StorageError struct {
	ClientID string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("core: storage failure for %s: %v", e.ClientID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
