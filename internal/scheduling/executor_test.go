package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/analytics"
	"voice-agent-platform/internal/calls"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeInitiator struct {
	mu   sync.Mutex
	reqs []calls.InitiateRequest
	err  error
}

func (f *fakeInitiator) Initiate(ctx context.Context, req calls.InitiateRequest) (calls.InitiateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return calls.InitiateResult{}, f.err
	}
	return calls.InitiateResult{ConversationID: "conv-" + req.IdempotencyKey}, nil
}

func (f *fakeInitiator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeAnalytics struct {
	runs int
	err  error
}

func (f *fakeAnalytics) Run(ctx context.Context) (analytics.Result, error) {
	f.runs++
	return analytics.Result{Processed: 1, OK: 1}, f.err
}

func registry() *agents.Registry {
	return agents.NewRegistry(agents.NewMemoryRepo(agents.Agent{
		ID: "a1", UserID: "u1", Name: "Ava", ProviderAgentID: "prov-1", Active: true, CreatedAt: now.Add(-time.Hour),
	}))
}

func row(id string, at time.Time, p Priority) ScheduledCall {
	return ScheduledCall{
		ID:          id,
		UserID:      "u1",
		PhoneNumber: "+14155550100",
		ClientName:  "Jane",
		ScheduledAt: at,
		Priority:    p,
		Status:      StatusScheduled,
	}
}

func newExecutor(repo Repository, in CallInitiator, an AnalyticsRunner, lock Locker) *Executor {
	e := NewExecutor(repo, registry(), in, an, lock)
	e.clock = func() time.Time { return now }
	return e
}

func TestRun_DueWindow(t *testing.T) {
	repo := NewMemoryRepo(
		row("recent", now.Add(-4*time.Minute), PriorityMedium),
		row("stale", now.Add(-6*time.Minute), PriorityMedium),
		row("future", now.Add(time.Minute), PriorityMedium),
	)
	in := &fakeInitiator{}
	e := newExecutor(repo, in, nil, nil)

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, in.reqs, 1)
	assert.Equal(t, "scheduled:recent", in.reqs[0].IdempotencyKey)
	assert.Equal(t, "prov-1", in.reqs[0].AgentID)
	assert.Equal(t, 1, res.ExecutedTasks)
	assert.EqualValues(t, 1, res.MissedTasks)

	recent, _ := repo.Get(context.Background(), "recent")
	assert.Equal(t, StatusCompleted, recent.Status)
	assert.Equal(t, "conv-scheduled:recent", recent.ConversationID)
	stale, _ := repo.Get(context.Background(), "stale")
	assert.Equal(t, StatusMissed, stale.Status)
	future, _ := repo.Get(context.Background(), "future")
	assert.Equal(t, StatusScheduled, future.Status)
}

func TestRun_HighPriorityFirst(t *testing.T) {
	repo := NewMemoryRepo(
		row("low", now.Add(-3*time.Minute), PriorityLow),
		row("high", now.Add(-1*time.Minute), PriorityHigh),
		row("medium", now.Add(-2*time.Minute), PriorityMedium),
	)
	in := &fakeInitiator{}
	_, err := newExecutor(repo, in, nil, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, in.reqs, 3)
	assert.Equal(t, "scheduled:high", in.reqs[0].IdempotencyKey)
	assert.Equal(t, "scheduled:medium", in.reqs[1].IdempotencyKey)
	assert.Equal(t, "scheduled:low", in.reqs[2].IdempotencyKey)
}

func TestRun_FailureAppendsNote(t *testing.T) {
	sc := row("r1", now.Add(-time.Minute), PriorityMedium)
	sc.Notes = "call after lunch"
	repo := NewMemoryRepo(sc)
	in := &fakeInitiator{err: errors.New("provider down")}

	res, err := newExecutor(repo, in, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedTasks)
	require.Len(t, res.Details, 1)
	assert.Equal(t, "provider down", res.Details[0].Error)

	got, _ := repo.Get(context.Background(), "r1")
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "call after lunch\n[failed 2026-03-01T12:00:00Z] provider down", got.Notes)
}

func TestRun_UnknownAgentFails(t *testing.T) {
	sc := row("r1", now.Add(-time.Minute), PriorityMedium)
	sc.AgentID = "missing"
	repo := NewMemoryRepo(sc)
	in := &fakeInitiator{}

	res, err := newExecutor(repo, in, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedTasks)
	assert.Equal(t, 0, in.count())
}

func TestRun_AnalyticsRunsEvenWhenNothingIsDue(t *testing.T) {
	an := &fakeAnalytics{}
	res, err := newExecutor(NewMemoryRepo(), &fakeInitiator{}, an, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, an.runs)
	require.NotNil(t, res.Analytics)
	assert.Equal(t, 1, res.Analytics.OK)
}

func TestRun_AnalyticsErrorIsReported(t *testing.T) {
	an := &fakeAnalytics{err: errors.New("db gone")}
	res, err := newExecutor(NewMemoryRepo(), &fakeInitiator{}, an, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "db gone", res.AnalyticsError)
	assert.Nil(t, res.Analytics)
}

func TestRun_ConcurrentRunsInitiateOnce(t *testing.T) {
	repo := NewMemoryRepo(row("r1", now.Add(-time.Minute), PriorityHigh))
	in := &fakeInitiator{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = newExecutor(repo, in, nil, nil).Run(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, in.count())
}

func TestRun_SkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	lock := NewRedisLocker(rdb)

	token, held, err := lock.Acquire(context.Background(), runLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	repo := NewMemoryRepo(row("r1", now.Add(-time.Minute), PriorityHigh))
	in := &fakeInitiator{}
	res, err := newExecutor(repo, in, nil, lock).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, in.count())

	require.NoError(t, lock.Release(context.Background(), runLockKey, token))
	res, err = newExecutor(repo, in, nil, lock).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, in.count())
	assert.False(t, mr.Exists(runLockKey))
}

// strictRepo rejects writes on a finished context the way database/sql does.
type strictRepo struct {
	*MemoryRepo
}

func (r strictRepo) Complete(ctx context.Context, id, conversationID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MemoryRepo.Complete(ctx, id, conversationID, at)
}

func (r strictRepo) Fail(ctx context.Context, id, note string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MemoryRepo.Fail(ctx, id, note, at)
}

// cancellingInitiator ends the run's context while the provider call is in flight.
type cancellingInitiator struct {
	cancel context.CancelFunc
	err    error
}

func (c cancellingInitiator) Initiate(ctx context.Context, req calls.InitiateRequest) (calls.InitiateResult, error) {
	c.cancel()
	if c.err != nil {
		return calls.InitiateResult{}, c.err
	}
	return calls.InitiateResult{ConversationID: "conv-late"}, nil
}

func TestRun_SettlesClaimedRowAfterContextEnds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status Status
	}{
		{"placed", nil, StatusCompleted},
		{"failed", context.Canceled, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := NewMemoryRepo(row("r1", now.Add(-time.Minute), PriorityMedium))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			e := newExecutor(strictRepo{mem}, cancellingInitiator{cancel: cancel, err: tt.err}, nil, nil)
			_, _ = e.Run(ctx)

			got, err := mem.Get(context.Background(), "r1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
		})
	}
}
