// Package jobs runs the expiration sweep on a schedule, either on an
// in-process cron or as a river job for Postgres deployments.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/vpnkit/core"
)

// sweepBudget bounds one scheduled sweep end to end, external revoke calls
// included.
const sweepBudget = 5 * time.Minute

// ScheduleSweeps registers the expiration sweep on c. An empty spec means
// hourly. The caller owns starting and stopping the cron.
func ScheduleSweeps(c *cron.Cron, svc *core.Service, spec string, log logrus.FieldLogger) (cron.EntryID, error) {
	if spec == "" {
		spec = "@hourly"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepBudget)
		defer cancel()
		res, err := svc.RunExpirationSweep(ctx, time.Now().UTC())
		if err != nil {
			log.WithError(err).Error("scheduled sweep failed")
			return
		}
		if len(res.Failed) > 0 {
			log.WithField("failed_clients", res.Failed).Warn("scheduled sweep left clients unrevoked")
		}
	})
}
