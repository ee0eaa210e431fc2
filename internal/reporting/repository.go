package reporting

import (
	"context"
	"time"

	"voice-agent-platform/internal/analytics"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/credits"
	"voice-agent-platform/pkg/utils"
)

const analyticsScanLimit = 5000

// SQLRepo reads reporting sources through the owning packages' queries.
type SQLRepo struct {
	db        utils.DBTX
	calls     *calls.PostgresRepo
	analytics *analytics.PostgresRepo
}

func NewSQLRepo(db utils.DBTX) *SQLRepo {
	return &SQLRepo{
		db:        db,
		calls:     calls.NewPostgresRepo(db),
		analytics: analytics.NewPostgresRepo(db),
	}
}

func (r *SQLRepo) ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Record, error) {
	return r.calls.ListByUser(ctx, userID, from, to)
}

func (r *SQLRepo) ListLedger(ctx context.Context, userID string, from, to time.Time) ([]credits.LedgerEntry, error) {
	return credits.ListLedger(ctx, r.db, userID, from, to)
}

func (r *SQLRepo) ListAnalytics(ctx context.Context, userID string, from, to time.Time) ([]analytics.ConversationAnalytics, error) {
	rows, err := r.analytics.ListByUser(ctx, userID, analyticsScanLimit)
	if err != nil {
		return nil, err
	}
	return inRange(rows, from, to), nil
}

func inRange(rows []analytics.ConversationAnalytics, from, to time.Time) []analytics.ConversationAnalytics {
	out := make([]analytics.ConversationAnalytics, 0, len(rows))
	for _, a := range rows {
		if a.ProcessedAt.Before(from) || !a.ProcessedAt.Before(to) {
			continue
		}
		out = append(out, a)
	}
	return out
}
