// Package execprovision drives the VPN host tooling by shelling out to the
// installer and revoke scripts. It implements core.Provisioner.
package execprovision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Provisioner invokes the host scripts that create and revoke VPN clients.
// Both scripts are expected to be idempotent: adding an existing client and
// revoking an absent one exit zero. Script output mentioning an unknown
// client on revoke is treated as success, matching that contract even for
// tooling that exits non-zero in that case.
type Provisioner struct {
	InstallerPath string
	RevokePath    string

	// Timeout bounds each script invocation; zero means DefaultTimeout.
	Timeout time.Duration

	Logger logrus.FieldLogger
}

const DefaultTimeout = 30 * time.Second

func (p *Provisioner) AddClient(ctx context.Context, clientID string) error {
	out, err := p.run(ctx, p.InstallerPath, "add-client", clientID)
	if err != nil {
		return fmt.Errorf("execprovision: add-client %s: %w (output: %s)", clientID, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (p *Provisioner) Revoke(ctx context.Context, clientID string) error {
	out, err := p.run(ctx, p.RevokePath, clientID)
	if err != nil {
		if clientAbsent(out) {
			// Already gone; revoke is idempotent.
			return nil
		}
		return fmt.Errorf("execprovision: revoke %s: %w (output: %s)", clientID, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (p *Provisioner) run(ctx context.Context, path string, args ...string) ([]byte, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"cmd":  path,
			"args": args,
			"ok":   err == nil,
		}).Debug("provision script finished")
	}
	return buf.Bytes(), err
}

func clientAbsent(out []byte) bool {
	s := strings.ToLower(string(out))
	return strings.Contains(s, "does not exist") || strings.Contains(s, "no such client") || strings.Contains(s, "not found")
}
