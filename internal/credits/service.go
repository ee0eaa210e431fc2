package credits

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/pkg/utils"

	"github.com/google/uuid"
)

// Service posts credit movements.
//
// Invariants:
// - No balance update without a ledger entry, both in one transaction.
// - The ledger is append-only.
// - Idempotency keys make every posting safe to replay.
//
// Purchases and grants must be positive. Call usage is charged after the call
// has happened, so it may drive the balance negative; RequireCredits then
// blocks new calls until the user tops up.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

type GrantRequest struct {
	Amount         int64  `json:"amount"`
	Source         string `json:"source"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata,omitempty"`
}

type UsageRequest struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata,omitempty"`
}

type AdminGrantRequest struct {
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

func (s *Service) GetBalance(ctx context.Context, userID string) (Balance, error) {
	if userID == "" {
		return Balance{}, ErrInvalidArgument
	}
	return getBalance(ctx, s.db, userID)
}

// Grant adds credits from a purchase or the free tier.
func (s *Service) Grant(ctx context.Context, userID string, req GrantRequest) (LedgerEntry, Balance, error) {
	if err := validatePosting(userID, req.Amount, req.IdempotencyKey); err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	if req.Source == "" {
		req.Source = SourcePurchase
	}
	entry := LedgerEntry{
		UserID:         userID,
		Type:           EntryTypeGrant,
		Amount:         req.Amount,
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	}
	e, b, replayed, err := s.post(ctx, entry, nil)
	if err == nil && !replayed {
		metrics.CreditsGranted.WithLabelValues(req.Source).Add(float64(req.Amount))
	}
	return e, b, err
}

// ChargeUsage debits credits consumed by a finished call.
func (s *Service) ChargeUsage(ctx context.Context, userID string, req UsageRequest) (LedgerEntry, Balance, error) {
	if err := validatePosting(userID, req.Amount, req.IdempotencyKey); err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	entry := LedgerEntry{
		UserID:         userID,
		Type:           EntryTypeCharge,
		Amount:         -req.Amount,
		Source:         SourceCallUsage,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	}
	e, b, _, err := s.post(ctx, entry, nil)
	return e, b, err
}

// AdminGrant credits a user manually and records the admin action with the ledger entry.
func (s *Service) AdminGrant(ctx context.Context, userID, adminUserID, adminRole string, req AdminGrantRequest) (AdminAction, LedgerEntry, Balance, error) {
	if adminUserID == "" || adminRole == "" || req.Reason == "" {
		return AdminAction{}, LedgerEntry{}, Balance{}, ErrInvalidArgument
	}
	if err := validatePosting(userID, req.Amount, req.IdempotencyKey); err != nil {
		return AdminAction{}, LedgerEntry{}, Balance{}, err
	}

	var outAction AdminAction
	entry := LedgerEntry{
		UserID:         userID,
		Type:           EntryTypeGrant,
		Amount:         req.Amount,
		Source:         SourceAdminGrant,
		IdempotencyKey: req.IdempotencyKey,
	}
	e, b, replayed, err := s.post(ctx, entry, func(ctx context.Context, tx *sql.Tx, e LedgerEntry, replayed bool) error {
		if replayed {
			act, ok, err := findAdminActionByLedger(ctx, tx, e.ID)
			if err != nil {
				return err
			}
			if ok {
				outAction = act
			}
			return nil
		}
		outAction = AdminAction{
			ID:              uuid.NewString(),
			UserID:          userID,
			AdminUserID:     adminUserID,
			AdminRole:       adminRole,
			Reason:          req.Reason,
			Amount:          req.Amount,
			RelatedLedgerID: e.ID,
			CreatedAt:       e.CreatedAt,
		}
		return insertAdminAction(ctx, tx, outAction)
	})
	if err == nil && !replayed {
		metrics.CreditsGranted.WithLabelValues(SourceAdminGrant).Add(float64(req.Amount))
	}
	return outAction, e, b, err
}

type afterPost func(ctx context.Context, tx *sql.Tx, e LedgerEntry, replayed bool) error

// post writes entry and moves the balance in one transaction, or returns the
// existing entry when its idempotency key was already used.
func (s *Service) post(ctx context.Context, entry LedgerEntry, after afterPost) (LedgerEntry, Balance, bool, error) {
	now := s.clock().UTC()
	entry.ID = uuid.NewString()
	entry.CreatedAt = now

	var (
		outLedger LedgerEntry
		outBal    Balance
		replayed  bool
	)
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		b, err := lockBalance(ctx, tx, entry.UserID, now)
		if err != nil {
			return err
		}

		if existing, ok, err := findLedgerByIdempotency(ctx, tx, entry.UserID, entry.IdempotencyKey); err != nil {
			return err
		} else if ok {
			outLedger, outBal, replayed = existing, b, true
			if after != nil {
				return after(ctx, tx, existing, true)
			}
			return nil
		}

		if err := insertLedger(ctx, tx, entry); err != nil {
			return err
		}
		nb, err := applyBalanceDelta(ctx, tx, entry.UserID, entry.Amount, now)
		if err != nil {
			return err
		}
		outLedger, outBal = entry, nb
		if after != nil {
			return after(ctx, tx, entry, false)
		}
		return nil
	})
	return outLedger, outBal, replayed, err
}

func validatePosting(userID string, amount int64, idempotencyKey string) error {
	if userID == "" || idempotencyKey == "" {
		return ErrInvalidArgument
	}
	if amount <= 0 {
		return ErrInvalidArgument
	}
	return nil
}
