package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/cabinetworks/mto/internal/jobs"
	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/shared"
)

// Sink delivers a notification to its final destination.
type Sink interface {
	Deliver(ctx context.Context, requestID string, n shared.Notification) error
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements Sink.
func (s LogSink) Deliver(_ context.Context, requestID string, n shared.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		slog.String("request_id", requestID),
		slog.String("kind", n.Kind),
		slog.String("entity_type", n.EntityType),
		slog.Int64("entity_id", n.EntityID),
		slog.Int64("actor_id", n.ActorID),
		slog.String("message", n.Message))
	return nil
}

// NotifyJob processes TaskNotify.
type NotifyJob struct {
	Sink    Sink
	Metrics *jobmetrics.Metrics
}

// Handle implements asynq.HandlerFunc.
func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Metrics.Track(TaskNotify)
	defer func() { err = tracker.End(err) }()

	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode notify payload: %v: %w", err, asynq.SkipRetry)
	}
	if j.Sink == nil {
		return nil
	}
	return j.Sink.Deliver(ctx, payload.RequestID, payload.Notification)
}

// ResolveStatusJob processes TaskResolveStatus.
type ResolveStatusJob struct {
	Resolver mto.StatusResolver
	Redis    redis.UniversalClient
	LockTTL  time.Duration
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle implements asynq.HandlerFunc. Only one worker resolves a given MTO
// at a time; a task that finds the lock taken is dropped because the holder
// reads the same committed lines.
func (j *ResolveStatusJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Resolver == nil {
		return errors.New("resolve status: handler not configured")
	}
	tracker := j.Metrics.Track(TaskResolveStatus)
	defer func() { err = tracker.End(err) }()

	var payload ResolveStatusPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.MTOID <= 0 {
		return fmt.Errorf("decode resolve payload: %w", asynq.SkipRetry)
	}
	logger := j.logger().With(slog.Int64("mto_id", payload.MTOID))

	if j.Redis != nil {
		key := shared.ResolveStatusLockKey(payload.MTOID)
		ttl := j.LockTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		ok, err := j.Redis.SetNX(ctx, key, "1", ttl).Result()
		if err != nil {
			logger.Warn("resolve lock unavailable", slog.Any("error", err))
		} else if !ok {
			logger.Info("resolve already in progress")
			return nil
		} else {
			defer j.Redis.Del(context.WithoutCancel(ctx), key)
		}
	}

	status, changed, err := j.Resolver.Resolve(ctx, payload.MTOID)
	if errors.Is(err, shared.ErrNotFound) {
		logger.Info("mto vanished before retry")
		return nil
	}
	if err != nil {
		logger.Warn("deferred resolve failed", slog.Any("error", err))
		return err
	}
	logger.Info("deferred resolve done", slog.String("status", string(status)), slog.Bool("changed", changed))
	return nil
}

func (j *ResolveStatusJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// Sweeper re-resolves every live MTO.
type Sweeper interface {
	ResolveAll(ctx context.Context) (mto.ResolveSummary, error)
}

// ResolveSweepJob processes TaskResolveSweep.
type ResolveSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle implements asynq.HandlerFunc.
func (j *ResolveSweepJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("resolve sweep: handler not configured")
	}
	tracker := j.Metrics.Track(TaskResolveSweep)
	defer func() { err = tracker.End(err) }()

	summary, err := j.Sweeper.ResolveAll(ctx)
	j.Metrics.AddSweep(summary.Checked, summary.Changed, summary.Failed)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("status sweep",
		slog.Int("checked", summary.Checked),
		slog.Int("changed", summary.Changed),
		slog.Int("failed", summary.Failed))
	return err
}

// KeyCleaner deletes idempotency keys older than a cutoff.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob processes TaskIdempotencyCleanup.
type IdempotencyCleanupJob struct {
	Store     KeyCleaner
	Retention time.Duration
	Metrics   *jobmetrics.Metrics
}

// Handle implements asynq.HandlerFunc.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	retention := j.Retention
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return j.Store.Cleanup(ctx, retention)
}
