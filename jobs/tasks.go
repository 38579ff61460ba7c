package jobs

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAccounting carries accounting sync tasks.
	QueueAccounting = "accounting"

	// TaskAccountingSync runs one accounting outbox job.
	TaskAccountingSync = "accounting:sync"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"

	syncMaxRetry       = 8
	syncTaskRetention  = 24 * time.Hour
	defaultKeyLifetime = 48 * time.Hour
)

// SyncPayload identifies the outbox job to run.
type SyncPayload struct {
	JobID int64 `json:"job_id"`
}

// SyncTaskID is the asynq task id for one dispatch of an outbox job. attempt
// is the job's attempt count, so a redelivered dispatch collides with the
// retained task while a later round gets a fresh id.
func SyncTaskID(jobID int64, attempt int) string {
	return "sync:" + strconv.FormatInt(jobID, 10) + ":" + strconv.Itoa(attempt)
}

// NewSyncTask constructs an accounting sync task.
func NewSyncTask(jobID int64, attempt int) (*asynq.Task, error) {
	data, err := json.Marshal(SyncPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccountingSync, data,
		asynq.TaskID(SyncTaskID(jobID, attempt)),
		asynq.Queue(QueueAccounting),
		asynq.MaxRetry(syncMaxRetry),
		asynq.Retention(syncTaskRetention),
	), nil
}

// CleanupPayload configures the idempotency cleanup.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

func (p CleanupPayload) retention() time.Duration {
	if p.RetentionHours <= 0 {
		return defaultKeyLifetime
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
