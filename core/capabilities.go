package core

import "context"

// Provisioner drives the external VPN tooling that grants and withdraws
// network access. Both actions must be idempotent: adding an already
// provisioned client and revoking an already absent one are no-ops that
// return nil, because the engine may repeat either call across retries,
// renewals, and redelivered events.
type Provisioner interface {
	AddClient(ctx context.Context, clientID string) error
	Revoke(ctx context.Context, clientID string) error
}

// Notifier delivers the client's access artifact (the generated VPN config)
// to their contact address. Delivery is best-effort: the engine logs
// failures and never rolls back provisioning over them.
type Notifier interface {
	DeliverArtifact(ctx context.Context, clientID, contactAddress string) error
}
