package execprovision

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// MuttNotifier mails the client's generated VPN config as an attachment via
// the mutt binary. It implements core.Notifier and is best-effort by
// contract: callers log failures and move on.
type MuttNotifier struct {
	// ConfigDir holds the generated client configs, one
	// <client_id>.ovpn per client.
	ConfigDir string

	// MuttPath defaults to "mutt" on PATH.
	MuttPath string

	// Subject and Body default to the standard delivery message.
	Subject string
	Body    string

	Timeout time.Duration
}

const defaultBody = "Thank you for your payment. Your VPN config file is attached.\n"

func (n *MuttNotifier) DeliverArtifact(ctx context.Context, clientID, contactAddress string) error {
	artifact := filepath.Join(n.ConfigDir, clientID+".ovpn")
	if _, err := os.Stat(artifact); err != nil {
		return fmt.Errorf("execprovision: client config missing: %w", err)
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mutt := n.MuttPath
	if mutt == "" {
		mutt = "mutt"
	}
	subject := n.Subject
	if subject == "" {
		subject = "VPN"
	}
	body := n.Body
	if body == "" {
		body = defaultBody
	}

	cmd := exec.CommandContext(ctx, mutt, "-s", subject, "-a", artifact, "--", contactAddress)
	cmd.Stdin = strings.NewReader(body)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("execprovision: mutt delivery to %s: %w (output: %s)", contactAddress, err, strings.TrimSpace(string(out)))
	}
	return nil
}
