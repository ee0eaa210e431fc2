package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/credits"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/internal/voice"
	"voice-agent-platform/pkg/logger"

	"github.com/google/uuid"
)

const (
	DefaultGracePeriod  = 10 * time.Minute
	DefaultBatchSize    = 100
	DefaultRetryBackoff = 30 * time.Minute
	DefaultMaxAttempts  = 12
)

// AgentNames resolves a provider agent id to the registry entry.
type AgentNames interface {
	ByProviderID(ctx context.Context, providerAgentID string) (agents.Agent, error)
}

// OutcomeWriter completes a call history row.
type OutcomeWriter interface {
	UpdateOutcome(ctx context.Context, id string, o calls.Outcome, at time.Time) error
}

// UsageCharger debits call usage from the user's credits.
type UsageCharger interface {
	ChargeUsage(ctx context.Context, userID string, req credits.UsageRequest) (credits.LedgerEntry, credits.Balance, error)
}

// Backfill fills the analytics cache for finished conversations.
//
// Each eligible row is handled independently: a failure is recorded in the
// result and the loop moves on. Rows whose conversation is still running are
// left for a later run. Nothing is retried within a run.
type Backfill struct {
	repo          Repository
	conversations voice.Conversations
	history       OutcomeWriter
	agents        AgentNames
	usage         UsageCharger
	perMinute     int64

	grace       time.Duration
	batchSize   int
	backoff     time.Duration
	maxAttempts int
	clock       func() time.Time
}

type Option func(*Backfill)

func WithUsageCharger(c UsageCharger, creditsPerMinute int64) Option {
	return func(b *Backfill) {
		b.usage = c
		b.perMinute = creditsPerMinute
	}
}

func WithAgentNames(a AgentNames) Option {
	return func(b *Backfill) { b.agents = a }
}

// WithRetry sets how long a row that failed or was still running waits before
// the next try, and how many tries it gets in total.
func WithRetry(backoff time.Duration, maxAttempts int) Option {
	return func(b *Backfill) {
		b.backoff = backoff
		b.maxAttempts = maxAttempts
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *Backfill) { b.clock = clock }
}

func NewBackfill(repo Repository, conversations voice.Conversations, history OutcomeWriter, opts ...Option) *Backfill {
	b := &Backfill{
		repo:          repo,
		conversations: conversations,
		history:       history,
		grace:         DefaultGracePeriod,
		batchSize:     DefaultBatchSize,
		backoff:       DefaultRetryBackoff,
		maxAttempts:   DefaultMaxAttempts,
		clock:         time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

var errNotFinished = errors.New("conversation not finished")

func (b *Backfill) Run(ctx context.Context) (Result, error) {
	log := logger.From(ctx).With("job", "analytics_backfill")
	now := b.clock().UTC()

	rows, err := b.repo.ListEligible(ctx, EligibleQuery{
		Cutoff:      now.Add(-b.grace),
		RetryBefore: now.Add(-b.backoff),
		MaxAttempts: b.maxAttempts,
		Limit:       b.batchSize,
	})
	if err != nil {
		return Result{}, fmt.Errorf("list eligible conversations: %w", err)
	}

	res := Result{Details: make([]RowDetail, 0, len(rows))}
	names := map[string]string{}
	for _, rec := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++
		err := b.processOne(ctx, rec, names, now)
		if err != nil {
			b.markAttempted(ctx, rec, err, now)
		}
		switch {
		case err == nil:
			res.OK++
			metrics.AnalyticsRows.WithLabelValues("ok").Inc()
			res.Details = append(res.Details, RowDetail{ConversationID: rec.ConversationID, Status: "ok"})
		case errors.Is(err, errNotFinished):
			res.Pending++
			metrics.AnalyticsRows.WithLabelValues("pending").Inc()
			res.Details = append(res.Details, RowDetail{ConversationID: rec.ConversationID, Status: "pending"})
		default:
			res.Failed++
			metrics.AnalyticsRows.WithLabelValues("failed").Inc()
			log.Warn("conversation analytics failed", "conversation_id", rec.ConversationID, "err", err)
			res.Details = append(res.Details, RowDetail{ConversationID: rec.ConversationID, Status: "failed", Error: err.Error()})
		}
	}

	log.Info("analytics backfill finished", "processed", res.Processed, "ok", res.OK, "failed", res.Failed)
	return res, nil
}

// markAttempted pushes an uncached row behind never-tried ones. A conversation
// the provider no longer knows leaves the eligible set for good.
func (b *Backfill) markAttempted(ctx context.Context, rec calls.Record, cause error, now time.Time) {
	log := logger.From(ctx).With("conversation_id", rec.ConversationID)
	if err := b.repo.MarkAttempted(ctx, rec.ID, now); err != nil {
		log.Warn("analytics attempt not recorded", "err", err)
	}
	if apiErr, ok := voice.AsAPIError(cause); ok && apiErr.StatusCode == http.StatusNotFound && b.history != nil {
		if err := b.history.UpdateOutcome(ctx, rec.ID, calls.Outcome{Status: calls.StatusUnknown}, now); err != nil {
			log.Warn("call history outcome not updated", "err", err)
		}
	}
}

func (b *Backfill) processOne(ctx context.Context, rec calls.Record, names map[string]string, now time.Time) error {
	conv, err := b.conversations.GetConversation(ctx, rec.ConversationID)
	if err != nil {
		return err
	}
	if !conv.IsFinished() {
		return errNotFinished
	}

	agentID := conv.AgentID
	if agentID == "" {
		agentID = rec.AgentID
	}
	d := Derive(conv)
	a := ConversationAnalytics{
		ID:             uuid.NewString(),
		UserID:         rec.UserID,
		ConversationID: rec.ConversationID,
		CallHistoryID:  rec.ID,
		AgentID:        agentID,
		AgentName:      b.agentName(ctx, agentID, names),
		PhoneNumber:    rec.PhoneNumber,
		DurationSecs:   conv.Metadata.CallDurationSecs,
		Cost:           conv.Metadata.Cost,
		Sentiment:      d.Sentiment,
		Keywords:       d.Keywords,
		Topics:         d.Topics,
		Metrics:        d.Metrics,
		ProcessedAt:    now,
	}
	if conv.Analysis != nil {
		a.CallSuccessful = conv.Analysis.CallSuccessful
		a.Summary = conv.Analysis.TranscriptSummary
	}
	if a.Transcript, err = json.Marshal(conv.Transcript); err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if a.Metadata, err = json.Marshal(conv.Metadata); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := b.repo.Upsert(ctx, a); err != nil {
		return fmt.Errorf("upsert analytics: %w", err)
	}

	log := logger.From(ctx).With("conversation_id", rec.ConversationID)
	if b.history != nil {
		if err := b.history.UpdateOutcome(ctx, rec.ID, calls.OutcomeFromConversation(conv), now); err != nil {
			log.Warn("call history outcome not updated", "err", err)
		}
	}
	if b.usage != nil {
		if amount := credits.UsageCredits(conv.Metadata.CallDurationSecs, b.perMinute); amount > 0 {
			_, _, err := b.usage.ChargeUsage(ctx, rec.UserID, credits.UsageRequest{
				Amount:         amount,
				IdempotencyKey: "call:" + rec.ConversationID,
				Metadata:       fmt.Sprintf(`{"duration_secs":%d}`, conv.Metadata.CallDurationSecs),
			})
			if err != nil {
				log.Warn("usage credits not charged", "err", err)
			}
		}
	}
	return nil
}

// agentName looks in the registry first, then asks the provider. Results,
// including misses, are cached for the run.
func (b *Backfill) agentName(ctx context.Context, providerAgentID string, cache map[string]string) string {
	if providerAgentID == "" {
		return ""
	}
	if name, ok := cache[providerAgentID]; ok {
		return name
	}
	name := ""
	if b.agents != nil {
		if a, err := b.agents.ByProviderID(ctx, providerAgentID); err == nil {
			name = a.Name
		}
	}
	if name == "" {
		if info, err := b.conversations.GetAgent(ctx, providerAgentID); err == nil {
			name = info.Name
		}
	}
	cache[providerAgentID] = name
	return name
}
