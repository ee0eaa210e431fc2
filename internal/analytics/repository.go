package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/pkg/utils"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("analytics not found")

// Repository abstracts the conversation_analytics cache and its eligibility query.
type Repository interface {
	// ListEligible returns history rows with a conversation id, status initiated or
	// success, placed before cutoff and not yet present in the cache. Rows with
	// maxAttempts attempts, or attempted at or after retryBefore, are skipped.
	ListEligible(ctx context.Context, q EligibleQuery) ([]calls.Record, error)
	// MarkAttempted bumps the history row's attempt count and stamps it with at.
	MarkAttempted(ctx context.Context, callHistoryID string, at time.Time) error
	Upsert(ctx context.Context, a ConversationAnalytics) error
	ListByUser(ctx context.Context, userID string, limit int) ([]ConversationAnalytics, error)
}

type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

// EligibleQuery bounds one ListEligible call.
type EligibleQuery struct {
	Cutoff      time.Time
	RetryBefore time.Time
	MaxAttempts int
	Limit       int
}

func (r *PostgresRepo) ListEligible(ctx context.Context, eq EligibleQuery) ([]calls.Record, error) {
	const q = `
SELECT ` + calls.RecordColumns + `
FROM call_history ch
WHERE ch.conversation_id IS NOT NULL AND ch.conversation_id <> ''
  AND ch.call_status IN ('initiated', 'success')
  AND ch.call_date < $1
  AND ch.analytics_attempts < $2
  AND (ch.analytics_attempted_at IS NULL OR ch.analytics_attempted_at < $3)
  AND NOT EXISTS (
    SELECT 1 FROM conversation_analytics ca
    WHERE ca.user_id = ch.user_id AND ca.conversation_id = ch.conversation_id
  )
ORDER BY ch.analytics_attempted_at ASC NULLS FIRST, ch.call_date ASC
LIMIT $4
`
	rows, err := r.db.QueryContext(ctx, q, eq.Cutoff, eq.MaxAttempts, eq.RetryBefore, eq.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return calls.ScanRecords(rows)
}

func (r *PostgresRepo) MarkAttempted(ctx context.Context, callHistoryID string, at time.Time) error {
	const q = `
UPDATE call_history
SET analytics_attempts = analytics_attempts + 1, analytics_attempted_at = $2
WHERE id = $1
`
	_, err := r.db.ExecContext(ctx, q, callHistoryID, at)
	return err
}

func (r *PostgresRepo) Upsert(ctx context.Context, a ConversationAnalytics) error {
	const q = `
INSERT INTO conversation_analytics (
  id, user_id, conversation_id, call_history_id, agent_id, agent_name, phone_number,
  duration_secs, cost, call_successful, summary, transcript, sentiment, keywords, topics,
  metrics, metadata, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15::jsonb,$16,$17,$18)
ON CONFLICT (user_id, conversation_id) DO UPDATE SET
  call_history_id = EXCLUDED.call_history_id,
  agent_id = EXCLUDED.agent_id,
  agent_name = EXCLUDED.agent_name,
  duration_secs = EXCLUDED.duration_secs,
  cost = EXCLUDED.cost,
  call_successful = EXCLUDED.call_successful,
  summary = EXCLUDED.summary,
  transcript = EXCLUDED.transcript,
  sentiment = EXCLUDED.sentiment,
  keywords = EXCLUDED.keywords,
  topics = EXCLUDED.topics,
  metrics = EXCLUDED.metrics,
  metadata = EXCLUDED.metadata,
  processed_at = EXCLUDED.processed_at
`
	keywords, err := json.Marshal(nonNil(a.Keywords))
	if err != nil {
		return err
	}
	topics, err := json.Marshal(nonNil(a.Topics))
	if err != nil {
		return err
	}
	m, err := json.Marshal(a.Metrics)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		a.ID,
		a.UserID,
		a.ConversationID,
		utils.NullString(a.CallHistoryID),
		utils.NullString(a.AgentID),
		utils.NullString(a.AgentName),
		a.PhoneNumber,
		a.DurationSecs,
		a.Cost,
		utils.NullString(a.CallSuccessful),
		utils.NullString(a.Summary),
		jsonOrNull(a.Transcript),
		string(a.Sentiment),
		string(keywords),
		string(topics),
		string(m),
		jsonOrNull(a.Metadata),
		a.ProcessedAt,
	)
	return err
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string, limit int) ([]ConversationAnalytics, error) {
	const q = `
SELECT id, user_id, conversation_id, coalesce(call_history_id::text,''), coalesce(agent_id,''),
       coalesce(agent_name,''), phone_number, duration_secs, cost, coalesce(call_successful,''),
       coalesce(summary,''), transcript, sentiment, keywords, topics, metrics, metadata, processed_at
FROM conversation_analytics
WHERE user_id = $1
ORDER BY processed_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationAnalytics
	for rows.Next() {
		var a ConversationAnalytics
		var sentiment string
		var cost decimal.NullDecimal
		var transcript, kw, topics, m, metadata []byte
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.ConversationID, &a.CallHistoryID, &a.AgentID,
			&a.AgentName, &a.PhoneNumber, &a.DurationSecs, &cost, &a.CallSuccessful,
			&a.Summary, &transcript, &sentiment, &kw, &topics, &m, &metadata, &a.ProcessedAt,
		); err != nil {
			return nil, err
		}
		a.Sentiment = Sentiment(sentiment)
		if cost.Valid {
			a.Cost = cost.Decimal
		}
		a.Transcript = json.RawMessage(transcript)
		a.Metadata = json.RawMessage(metadata)
		if err := decodeJSON(kw, &a.Keywords); err != nil {
			return nil, err
		}
		if err := decodeJSON(topics, &a.Topics); err != nil {
			return nil, err
		}
		if err := decodeJSON(m, &a.Metrics); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func jsonOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
