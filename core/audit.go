package core

import (
	"context"

	"github.com/google/uuid"
)

// LifecycleAuditLogger records entitlement lifecycle decisions to an
// external sink (e.g. ClickHouse). Implementations should be non-blocking
// and best-effort; the engine never fails an operation over a lost audit row.
type LifecycleAuditLogger interface {
	LogLifecycle(ctx context.Context, eventID uuid.UUID, clientID string, action string, outcome string) error
}
