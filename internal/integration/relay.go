package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// DefaultRelayInterval is how often the relay scans the outbox.
const DefaultRelayInterval = 30 * time.Second

const relayBatch = 100

// Relay re-dispatches PENDING outbox jobs whose enqueue was lost or failed,
// and FAILED jobs whose retry time has come.
type Relay struct {
	outbox    Outbox
	enqueuer  Enqueuer
	logger    *slog.Logger
	now       func() time.Time
	interval  time.Duration
	scheduler gocron.Scheduler
}

// NewRelay constructs a relay ticking every interval.
func NewRelay(outbox Outbox, enqueuer Enqueuer, interval time.Duration, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultRelayInterval
	}
	return &Relay{outbox: outbox, enqueuer: enqueuer, logger: logger, now: time.Now, interval: interval}
}

// Tick dispatches every due job once and returns how many were enqueued.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	jobs, err := r.outbox.DueJobs(ctx, r.now(), relayBatch)
	if err != nil {
		return 0, fmt.Errorf("integration: load due jobs: %w", err)
	}
	sent := 0
	for _, job := range jobs {
		if dispatch(ctx, r.outbox, r.enqueuer, job, r.logger) {
			sent++
		}
	}
	if sent > 0 {
		r.logger.Info("relayed sync jobs", slog.Int("count", sent), slog.Int("due", len(jobs)))
	}
	return sent, nil
}

// Start schedules Tick on its interval. Overlapping runs are skipped.
func (r *Relay) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			if _, err := r.Tick(ctx); err != nil {
				r.logger.Warn("outbox relay", slog.Any("error", err))
			}
		}),
		gocron.WithName("accounting-outbox-relay"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return err
	}
	s.Start()
	r.scheduler = s
	return nil
}

// Stop shuts the scheduler down and waits for a running tick.
func (r *Relay) Stop() error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Shutdown()
}
