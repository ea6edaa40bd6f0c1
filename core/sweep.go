package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SweepResult reports one expiration sweep. Failed lists the clients whose
// external revoke call failed; their records remain in the store so the
// next sweep retries them.
type SweepResult struct {
	Revoked int      `json:"revoked"`
	Failed  []string `json:"failed,omitempty"`
}

// RunExpirationSweep revokes every entitlement whose term has elapsed at
// now. It works from a point-in-time snapshot; order across clients is
// unspecified. A revoke failure for one client never stops the sweep from
// reaching the rest.
func (s *Service) RunExpirationSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return res, &StorageError{Err: err}
	}
	for _, rec := range snap {
		if !rec.Expired(now) {
			continue
		}
		revoked, err := s.sweepOne(ctx, rec.ClientID, now)
		if err != nil {
			s.log.WithError(err).WithField("client_id", rec.ClientID).Error("sweep revoke failed")
			res.Failed = append(res.Failed, rec.ClientID)
			continue
		}
		if revoked {
			res.Revoked++
		}
	}
	if res.Revoked > 0 || len(res.Failed) > 0 {
		s.log.WithFields(logrus.Fields{
			"revoked": res.Revoked,
			"failed":  len(res.Failed),
		}).Info("expiration sweep finished")
	}
	return res, nil
}

func (s *Service) sweepOne(ctx context.Context, clientID string, now time.Time) (bool, error) {
	unlock := s.locks.lock(clientID)
	defer unlock()

	// Re-check under the lock: a renewal may have landed after the
	// snapshot was taken.
	cur, err := s.store.Get(ctx, clientID)
	if err != nil {
		return false, &StorageError{ClientID: clientID, Err: err}
	}
	if cur == nil || !cur.Expired(now) {
		return false, nil
	}
	if err := s.prov.Revoke(ctx, clientID); err != nil {
		s.auditLifecycle(ctx, clientID, "sweep-revoke", err)
		return false, &ProvisionError{ClientID: clientID, Op: "revoke", Err: err}
	}
	if _, err := s.store.Delete(ctx, clientID); err != nil {
		return false, &StorageError{ClientID: clientID, Err: err}
	}
	s.auditLifecycle(ctx, clientID, "sweep-revoke", nil)
	return true, nil
}
