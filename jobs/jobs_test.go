package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/shared"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type countingResolver struct {
	calls int
	err   error
}

func (r *countingResolver) Resolve(_ context.Context, _ int64) (mto.Status, bool, error) {
	r.calls++
	return mto.StatusFullyOrdered, true, r.err
}

func TestClientNotifyEnqueuesPayload(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)

	err := client.Notify(context.Background(), shared.Notification{Kind: shared.NotifyStockReserved, EntityType: "mto", EntityID: 7})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskNotify, enq.tasks[0].Type())

	var payload NotifyPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.NotEmpty(t, payload.RequestID)
	require.Equal(t, int64(7), payload.Notification.EntityID)
}

func TestClientResolveStatusIgnoresPendingDuplicate(t *testing.T) {
	client := NewClientWith(&fakeEnqueuer{err: asynq.ErrTaskIDConflict})
	require.NoError(t, client.EnqueueResolveStatus(context.Background(), 3))

	client = NewClientWith(&fakeEnqueuer{err: errors.New("redis down")})
	require.Error(t, client.EnqueueResolveStatus(context.Background(), 3))
}

func TestClientSatisfiesCollaboratorPorts(t *testing.T) {
	var _ shared.Notifier = (*Client)(nil)
	var _ mto.RetryScheduler = (*Client)(nil)
}

func resolveTask(t *testing.T, mtoID int64) *asynq.Task {
	t.Helper()
	task, err := NewResolveStatusTask(mtoID)
	require.NoError(t, err)
	return task
}

func TestResolveStatusJobRunsResolver(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	resolver := &countingResolver{}
	job := &ResolveStatusJob{Resolver: resolver, Redis: rdb}

	require.NoError(t, job.Handle(context.Background(), resolveTask(t, 9)))
	require.Equal(t, 1, resolver.calls)
	require.False(t, mr.Exists(shared.ResolveStatusLockKey(9)), "lock released")
}

func TestResolveStatusJobSkipsWhenLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, mr.Set(shared.ResolveStatusLockKey(9), "1"))
	mr.SetTTL(shared.ResolveStatusLockKey(9), time.Minute)
	resolver := &countingResolver{}
	job := &ResolveStatusJob{Resolver: resolver, Redis: rdb}

	require.NoError(t, job.Handle(context.Background(), resolveTask(t, 9)))
	require.Zero(t, resolver.calls)
}

func TestResolveStatusJobRetriesOnFailure(t *testing.T) {
	boom := errors.New("serialization failure")
	job := &ResolveStatusJob{Resolver: &countingResolver{err: boom}}
	require.ErrorIs(t, job.Handle(context.Background(), resolveTask(t, 9)), boom)

	job = &ResolveStatusJob{Resolver: &countingResolver{err: shared.NotFoundf("mto 9")}}
	require.NoError(t, job.Handle(context.Background(), resolveTask(t, 9)))
}

func TestResolveStatusJobRejectsBadPayload(t *testing.T) {
	job := &ResolveStatusJob{Resolver: &countingResolver{}}
	err := job.Handle(context.Background(), asynq.NewTask(TaskResolveStatus, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type sweeper struct{ summary mto.ResolveSummary }

func (s sweeper) ResolveAll(context.Context) (mto.ResolveSummary, error) { return s.summary, nil }

func TestResolveSweepJob(t *testing.T) {
	job := &ResolveSweepJob{Sweeper: sweeper{summary: mto.ResolveSummary{Checked: 3, Changed: 1}}}
	require.NoError(t, job.Handle(context.Background(), NewResolveSweepTask()))
}

type recordingSink struct{ got []shared.Notification }

func (s *recordingSink) Deliver(_ context.Context, _ string, n shared.Notification) error {
	s.got = append(s.got, n)
	return nil
}

func TestNotifyJobDelivers(t *testing.T) {
	task, err := NewNotifyTask(shared.Notification{Kind: shared.NotifyMTOCreated, EntityID: 4})
	require.NoError(t, err)
	sink := &recordingSink{}
	job := &NotifyJob{Sink: sink}

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sink.got, 1)
	require.Equal(t, shared.NotifyMTOCreated, sink.got[0].Kind)
}

type fakeInspector struct{}

func (fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 2}, nil
}

func TestHealthReportsQueues(t *testing.T) {
	h := NewHandler(fakeInspector{}, nil)
	rr := httptest.NewRecorder()
	h.health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"queue":"critical"`)
	require.Contains(t, rr.Body.String(), `"pending":2`)
}

type recordingCleaner struct {
	olderThan time.Duration
}

func (r *recordingCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	r.olderThan = olderThan
	return nil
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	cleaner := &recordingCleaner{}
	job := &IdempotencyCleanupJob{Store: cleaner, Retention: 24 * time.Hour}
	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, 24*time.Hour, cleaner.olderThan)

	job.Retention = 0
	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, 72*time.Hour, cleaner.olderThan)
}
