package ledger

import (
	"context"
	"encoding/json"

	"github.com/robfig/cron/v3"

	walletsvc "github.com/shf-platform/credit_layer/internal/app/services/wallet"
	"github.com/shf-platform/credit_layer/internal/app/storage"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

// StatsSnapshotKey is the KV key the periodic stats snapshot writes to.
const StatsSnapshotKey = "stats:ledger"

// Jobs runs the periodic ledger maintenance schedule: a wallet stats
// snapshot into the KV store and a chain integrity sweep. It participates in
// the application lifecycle as a system service.
type Jobs struct {
	cron     *cron.Cron
	wallet   *walletsvc.Service
	kv       storage.KV
	log      *logger.Logger
	schedule string
	window   int
}

// NewJobs builds the job runner. An empty schedule defaults to every 15
// minutes.
func NewJobs(wallet *walletsvc.Service, kv storage.KV, log *logger.Logger) *Jobs {
	if log == nil {
		log = logger.NewDefault("ledger-jobs")
	}
	return &Jobs{
		cron:     cron.New(),
		wallet:   wallet,
		kv:       kv,
		log:      log,
		schedule: "@every 15m",
		window:   30,
	}
}

// WithSchedule overrides the cron schedule for both jobs.
func (j *Jobs) WithSchedule(spec string) *Jobs {
	j.schedule = spec
	return j
}

// Name implements system.Service.
func (j *Jobs) Name() string { return "ledger-jobs" }

// Start registers and starts the schedule.
func (j *Jobs) Start(_ context.Context) error {
	if _, err := j.cron.AddFunc(j.schedule, j.snapshotStats); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc(j.schedule, j.verifyChain); err != nil {
		return err
	}
	j.cron.Start()
	j.log.WithField("schedule", j.schedule).Info("ledger jobs started")
	return nil
}

// Stop halts the schedule and waits for any running job to finish.
func (j *Jobs) Stop(ctx context.Context) error {
	done := j.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	j.log.Info("ledger jobs stopped")
	return nil
}

func (j *Jobs) snapshotStats() {
	ctx := context.Background()
	stats := j.wallet.Stats(ctx, j.window)
	raw, err := json.Marshal(stats)
	if err != nil {
		j.log.WithError(err).Warn("encoding stats snapshot failed")
		return
	}
	if err := j.kv.Set(ctx, StatsSnapshotKey, raw); err != nil {
		j.log.WithError(err).Warn("writing stats snapshot failed")
		return
	}
	j.log.WithField("entries", stats.Entries).Debug("stats snapshot written")
}

func (j *Jobs) verifyChain() {
	if idx := j.wallet.Verify(context.Background()); idx >= 0 {
		j.log.WithField("entry", idx).Error("wallet ledger chain broken")
	}
}
