package scheduling

import (
	"context"
	"fmt"
	"time"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/analytics"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/pkg/logger"
)

const (
	// DueWindow is how late a scheduled call may still be placed.
	DueWindow = config.ScheduleDueWindow

	runLockKey = "lock:scheduled-calls"
	runLockTTL = 5 * time.Minute
)

type AgentResolver interface {
	ResolveForCall(ctx context.Context, userID, agentID string) (agents.Agent, error)
}

type CallInitiator interface {
	Initiate(ctx context.Context, req calls.InitiateRequest) (calls.InitiateResult, error)
}

type AnalyticsRunner interface {
	Run(ctx context.Context) (analytics.Result, error)
}

// Executor places the calls that are due and then refreshes analytics.
//
// A run:
//  1. takes the run lock, or returns Skipped when another run holds it
//  2. marks rows older than the due window as missed
//  3. claims each due row (scheduled -> executing) and places the call
//  4. runs the analytics backfill, whose errors are reported, not returned
type Executor struct {
	repo      Repository
	agents    AgentResolver
	initiator CallInitiator
	analytics AnalyticsRunner
	lock      Locker
	clock     func() time.Time
}

func NewExecutor(repo Repository, resolver AgentResolver, initiator CallInitiator, backfill AnalyticsRunner, lock Locker) *Executor {
	if lock == nil {
		lock = NopLocker{}
	}
	return &Executor{
		repo:      repo,
		agents:    resolver,
		initiator: initiator,
		analytics: backfill,
		lock:      lock,
		clock:     time.Now,
	}
}

func (e *Executor) Run(ctx context.Context) (RunResult, error) {
	log := logger.From(ctx).With("job", "scheduled_calls")
	res := RunResult{Details: make([]TaskDetail, 0)}

	token, ok, err := e.lock.Acquire(ctx, runLockKey, runLockTTL)
	if err != nil {
		return res, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		log.Info("scheduled call run skipped, lock held")
		res.Skipped = true
		return res, nil
	}
	defer func() {
		if err := e.lock.Release(context.WithoutCancel(ctx), runLockKey, token); err != nil {
			log.Warn("run lock release failed", "err", err)
		}
	}()

	now := e.clock().UTC()
	windowStart := now.Add(-DueWindow)

	missed, err := e.repo.MarkMissed(ctx, windowStart, now)
	if err != nil {
		return res, fmt.Errorf("mark missed: %w", err)
	}
	res.MissedTasks = missed
	if missed > 0 {
		metrics.ScheduledCalls.WithLabelValues(string(StatusMissed)).Add(float64(missed))
	}

	due, err := e.repo.ListDue(ctx, windowStart, now)
	if err != nil {
		return res, fmt.Errorf("list due calls: %w", err)
	}

	for _, sc := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		claimed, err := e.repo.Claim(ctx, sc.ID, e.clock().UTC())
		if err != nil {
			log.Error("claim scheduled call failed", "scheduled_call_id", sc.ID, "err", err)
			continue
		}
		if !claimed {
			continue
		}
		detail := e.execute(ctx, sc)
		switch detail.Status {
		case StatusCompleted:
			res.ExecutedTasks++
		case StatusFailed:
			res.FailedTasks++
		}
		metrics.ScheduledCalls.WithLabelValues(string(detail.Status)).Inc()
		res.Details = append(res.Details, detail)
	}

	if e.analytics != nil {
		ar, err := e.analytics.Run(ctx)
		if err != nil {
			log.Warn("analytics backfill after scheduled run failed", "err", err)
			res.AnalyticsError = err.Error()
		} else {
			res.Analytics = &ar
		}
	}

	log.Info("scheduled call run finished",
		"executed", res.ExecutedTasks, "failed", res.FailedTasks, "missed", res.MissedTasks)
	return res, nil
}

func (e *Executor) execute(ctx context.Context, sc ScheduledCall) TaskDetail {
	log := logger.From(ctx).With("scheduled_call_id", sc.ID, "user_id", sc.UserID)

	out, callErr := e.place(ctx, sc)
	at := e.clock().UTC()
	// The row is claimed; it must leave executing even if the run's context ended.
	settle := context.WithoutCancel(ctx)
	if callErr != nil {
		note := fmt.Sprintf("[failed %s] %s", at.Format(time.RFC3339), callErr.Error())
		if err := e.repo.Fail(settle, sc.ID, note, at); err != nil {
			log.Error("mark scheduled call failed", "err", err)
		}
		log.Warn("scheduled call failed", "err", callErr)
		return TaskDetail{ID: sc.ID, Status: StatusFailed, Error: callErr.Error()}
	}

	if err := e.repo.Complete(settle, sc.ID, out.ConversationID, at); err != nil {
		log.Error("mark scheduled call completed", "err", err)
	}
	log.Info("scheduled call placed", "conversation_id", out.ConversationID)
	return TaskDetail{ID: sc.ID, Status: StatusCompleted, ConversationID: out.ConversationID}
}

func (e *Executor) place(ctx context.Context, sc ScheduledCall) (calls.InitiateResult, error) {
	agent, err := e.agents.ResolveForCall(ctx, sc.UserID, sc.AgentID)
	if err != nil {
		return calls.InitiateResult{}, fmt.Errorf("resolve agent: %w", err)
	}
	return e.initiator.Initiate(ctx, calls.InitiateRequest{
		UserID:         sc.UserID,
		AgentID:        agent.ProviderAgentID,
		PhoneNumber:    sc.PhoneNumber,
		ContactName:    sc.ClientName,
		IdempotencyKey: "scheduled:" + sc.ID,
	})
}
