package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/vpnkit/core"
)

// SweepArgs is the (empty) argument set for a queued expiration sweep.
type SweepArgs struct{}

func (SweepArgs) Kind() string { return "entitlement_sweep" }

// SweepWorker runs the expiration sweep as a river job. A sweep that leaves
// failed clients returns an error so river retries it; the engine keeps the
// failed records, so the retry picks them up.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]

	svc *core.Service
	log logrus.FieldLogger
}

func NewSweepWorker(svc *core.Service, log logrus.FieldLogger) *SweepWorker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SweepWorker{svc: svc, log: log}
}

func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepArgs]) error {
	res, err := w.svc.RunExpirationSweep(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("jobs: sweep left %d clients unrevoked: %v", len(res.Failed), res.Failed)
	}
	w.log.WithField("revoked", res.Revoked).Debug("queued sweep finished")
	return nil
}

// AddSweepWorker registers the sweep worker on a river worker set.
func AddSweepWorker(workers *river.Workers, svc *core.Service, log logrus.FieldLogger) {
	river.AddWorker(workers, NewSweepWorker(svc, log))
}

// PeriodicSweep returns the periodic job definition for river clients.
func PeriodicSweep(interval time.Duration) *river.PeriodicJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return SweepArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
