package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/hallbook/hallbook/internal/integration"
	"github.com/hallbook/hallbook/internal/observability"
)

// SyncRunner executes one outbox job. lastTry is set when the queue will not
// retry the task again.
type SyncRunner interface {
	RunJob(ctx context.Context, jobID int64, lastTry bool) error
}

// AccountingSyncJob runs accounting outbox jobs pulled from the queue.
type AccountingSyncJob struct {
	Runner  SyncRunner
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewAccountingSyncJob initialises the sync handler.
func NewAccountingSyncJob(runner SyncRunner, logger *slog.Logger, metrics *observability.Metrics) *AccountingSyncJob {
	return &AccountingSyncJob{Runner: runner, Logger: logger, Metrics: metrics}
}

// Handle executes TaskAccountingSync. Errors retrying cannot fix skip the
// remaining retries.
func (j *AccountingSyncJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Runner == nil {
		return errors.New("accounting sync: handler not configured")
	}
	var payload SyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.JobID <= 0 {
		return fmt.Errorf("accounting sync: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskAccountingSync)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Int64("job_id", payload.JobID))
	if runErr := j.Runner.RunJob(ctx, payload.JobID, lastTry(ctx)); runErr != nil {
		if integration.IsPermanent(runErr) {
			logger.Warn("accounting sync failed permanently", slog.Any("error", runErr))
			return fmt.Errorf("%w: %w", runErr, asynq.SkipRetry)
		}
		logger.Warn("accounting sync failed", slog.Any("error", runErr))
		return runErr
	}
	logger.Debug("accounting sync done")
	return nil
}

// lastTry reports whether a failure of the running task is final. Outside a
// worker context the task counts as a single try.
func lastTry(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (j *AccountingSyncJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
