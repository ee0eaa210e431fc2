package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-agent-platform/internal/analytics"
	"voice-agent-platform/internal/scheduling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduled struct {
	runs chan struct{}
}

func (f *fakeScheduled) Run(ctx context.Context) (scheduling.RunResult, error) {
	if _, ok := ctx.Deadline(); !ok {
		return scheduling.RunResult{}, errors.New("job context has no deadline")
	}
	f.runs <- struct{}{}
	return scheduling.RunResult{}, nil
}

type fakeAnalytics struct {
	runs int
}

func (f *fakeAnalytics) Run(ctx context.Context) (analytics.Result, error) {
	f.runs++
	return analytics.Result{}, nil
}

func TestSetupJobs_RejectsBadSpec(t *testing.T) {
	cm := NewCronManager(&fakeScheduled{}, &fakeAnalytics{}, nil)
	err := cm.SetupJobs(Specs{Scheduled: "every now and then"})
	assert.Error(t, err)
}

func TestSetupJobs_EmptySpecDisablesJob(t *testing.T) {
	cm := NewCronManager(&fakeScheduled{}, &fakeAnalytics{}, nil)
	require.NoError(t, cm.SetupJobs(Specs{}))
	assert.Empty(t, cm.cron.Entries())
}

func TestCron_RunsScheduledJob(t *testing.T) {
	sched := &fakeScheduled{runs: make(chan struct{}, 4)}
	cm := NewCronManager(sched, &fakeAnalytics{}, nil)
	require.NoError(t, cm.SetupJobs(Specs{Scheduled: "@every 1s"}))
	require.Len(t, cm.cron.Entries(), 1)

	cm.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cm.Stop(ctx)
	})

	select {
	case <-sched.runs:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}
}

func TestRunAnalytics(t *testing.T) {
	an := &fakeAnalytics{}
	cm := NewCronManager(nil, an, nil)
	cm.runAnalytics()
	assert.Equal(t, 1, an.runs)
}
