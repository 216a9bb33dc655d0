package jobs

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/cabinetworks/mto/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries status re-resolution retries.
	QueueCritical = "critical"

	// TaskNotify hands a notification to the delivery sink.
	TaskNotify = "mto:notify"
	// TaskResolveStatus re-resolves one MTO after a failed inline attempt.
	TaskResolveStatus = "mto:resolve-status"
	// TaskResolveSweep re-resolves every live MTO.
	TaskResolveSweep = "mto:resolve-sweep"
	// TaskIdempotencyCleanup prunes expired reservation idempotency keys.
	TaskIdempotencyCleanup = "mto:idempotency-cleanup"
)

// NotifyPayload wraps a notification with a delivery id.
type NotifyPayload struct {
	RequestID    string              `json:"request_id"`
	Notification shared.Notification `json:"notification"`
}

// ResolveStatusPayload names the MTO to re-resolve.
type ResolveStatusPayload struct {
	MTOID int64 `json:"mto_id"`
}

// NewNotifyTask builds a notification task.
func NewNotifyTask(n shared.Notification) (*asynq.Task, error) {
	body, err := json.Marshal(NotifyPayload{RequestID: uuid.NewString(), Notification: n})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotify, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewResolveStatusTask builds a re-resolution task. Pending duplicates for the
// same MTO share one task id.
func NewResolveStatusTask(mtoID int64) (*asynq.Task, error) {
	body, err := json.Marshal(ResolveStatusPayload{MTOID: mtoID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskResolveStatus, body,
		asynq.Queue(QueueCritical),
		asynq.TaskID(resolveTaskID(mtoID)),
		asynq.MaxRetry(10),
	), nil
}

// NewResolveSweepTask builds the periodic sweep task.
func NewResolveSweepTask() *asynq.Task {
	return asynq.NewTask(TaskResolveSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

func resolveTaskID(mtoID int64) string {
	return "resolve-status:" + strconv.FormatInt(mtoID, 10)
}

// NewIdempotencyCleanupTask builds the periodic key pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}
