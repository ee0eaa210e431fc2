package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"voice-agent-platform/internal/analytics"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/credits"

	"github.com/shopspring/decimal"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

const maxTopTopics = 5

// Repository abstracts data access for reporting. Every read is scoped to one
// user and reads the immutable or append-mostly sources: call history, the
// credit ledger and the analytics cache.
type Repository interface {
	ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Record, error)
	ListLedger(ctx context.Context, userID string, from, to time.Time) ([]credits.LedgerEntry, error)
	ListAnalytics(ctx context.Context, userID string, from, to time.Time) ([]analytics.ConversationAnalytics, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" || !req.Range.valid() {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: req.UserID, AgentID: req.AgentID, TotalCost: decimal.Zero}
	for _, c := range rows {
		if req.AgentID != "" && c.AgentID != req.AgentID {
			continue
		}
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSecs
		out.TotalCost = out.TotalCost.Add(c.Cost)
		switch c.Status {
		case calls.StatusSuccess:
			out.SuccessfulCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusNoAnswer:
			out.NoAnswerCalls++
		case calls.StatusBusy:
			out.BusyCalls++
		case calls.StatusInitiated:
			out.PendingCalls++
		case calls.StatusUnknown:
			// not counted separately
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
		out.SuccessRate = float64(out.SuccessfulCalls) / float64(out.TotalCalls)
	}
	return out, nil
}

func (s *Service) CreditsSummary(ctx context.Context, userID string, r TimeRange) (CreditsSummary, error) {
	if userID == "" || !r.valid() {
		return CreditsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CreditsSummary{}, errors.New("reporting: repository not configured")
	}

	entries, err := s.repo.ListLedger(ctx, userID, r.From, r.To)
	if err != nil {
		return CreditsSummary{}, err
	}

	out := CreditsSummary{UserID: userID}
	for _, e := range entries {
		if e.Amount > 0 {
			out.Granted += e.Amount
		} else {
			out.Consumed += -e.Amount
		}
		switch e.Source {
		case credits.SourcePurchase:
			out.Purchased += e.Amount
		case credits.SourceFreeTier:
			out.FreeTier += e.Amount
		case credits.SourceAdminGrant:
			out.AdminGranted += e.Amount
		}
	}
	out.Net = out.Granted - out.Consumed
	return out, nil
}

func (s *Service) Insights(ctx context.Context, userID string, r TimeRange) (ConversationInsights, error) {
	if userID == "" || !r.valid() {
		return ConversationInsights{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return ConversationInsights{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListAnalytics(ctx, userID, r.From, r.To)
	if err != nil {
		return ConversationInsights{}, err
	}

	out := ConversationInsights{
		UserID:    userID,
		Sentiment: map[string]int{},
		TopTopics: make([]TopicCount, 0),
	}
	topics := map[string]int{}
	var talk float64
	for _, a := range rows {
		out.Conversations++
		out.Sentiment[string(a.Sentiment)]++
		talk += a.Metrics.TalkRatio
		for _, t := range a.Topics {
			topics[t]++
		}
	}
	if out.Conversations > 0 {
		out.AvgTalkRatio = talk / float64(out.Conversations)
	}
	for t, n := range topics {
		out.TopTopics = append(out.TopTopics, TopicCount{Topic: t, Count: n})
	}
	sort.Slice(out.TopTopics, func(i, j int) bool {
		if out.TopTopics[i].Count != out.TopTopics[j].Count {
			return out.TopTopics[i].Count > out.TopTopics[j].Count
		}
		return out.TopTopics[i].Topic < out.TopTopics[j].Topic
	})
	if len(out.TopTopics) > maxTopTopics {
		out.TopTopics = out.TopTopics[:maxTopTopics]
	}
	return out, nil
}

// Dashboard builds every summary for the same range.
func (s *Service) Dashboard(ctx context.Context, userID string, r TimeRange) (Report, error) {
	c, err := s.CallsSummary(ctx, CallsSummaryRequest{UserID: userID, Range: r})
	if err != nil {
		return Report{}, err
	}
	cr, err := s.CreditsSummary(ctx, userID, r)
	if err != nil {
		return Report{}, err
	}
	in, err := s.Insights(ctx, userID, r)
	if err != nil {
		return Report{}, err
	}
	return Report{Calls: c, Credits: cr, Insights: in}, nil
}
