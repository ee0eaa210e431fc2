package credits

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voice-agent-platform/pkg/utils"
)

// Tables: credit_ledger (append-only, UNIQUE (user_id, idempotency_key)),
// credit_balances (projection, PK user_id), admin_credit_actions.

func lockBalance(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (Balance, error) {
	// Create the projection row on first use so FOR UPDATE always has a row to lock.
	const ensure = `
INSERT INTO credit_balances (user_id, credits, updated_at)
VALUES ($1, 0, $2)
ON CONFLICT (user_id) DO NOTHING
`
	if _, err := tx.ExecContext(ctx, ensure, userID, now); err != nil {
		return Balance{}, err
	}
	const q = `SELECT user_id, credits, updated_at FROM credit_balances WHERE user_id = $1 FOR UPDATE`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, userID).Scan(&b.UserID, &b.Credits, &b.UpdatedAt); err != nil {
		return Balance{}, err
	}
	return b, nil
}

func getBalance(ctx context.Context, db utils.DBTX, userID string) (Balance, error) {
	const q = `SELECT user_id, credits, updated_at FROM credit_balances WHERE user_id = $1`
	var b Balance
	if err := db.QueryRowContext(ctx, q, userID).Scan(&b.UserID, &b.Credits, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{UserID: userID}, nil
		}
		return Balance{}, err
	}
	return b, nil
}

func findLedgerByIdempotency(ctx context.Context, tx *sql.Tx, userID, key string) (LedgerEntry, bool, error) {
	const q = `
SELECT id, user_id, type, amount, source, idempotency_key, coalesce(metadata::text,''), created_at
FROM credit_ledger
WHERE user_id = $1 AND idempotency_key = $2
`
	var e LedgerEntry
	var typ string
	err := tx.QueryRowContext(ctx, q, userID, key).Scan(
		&e.ID,
		&e.UserID,
		&typ,
		&e.Amount,
		&e.Source,
		&e.IdempotencyKey,
		&e.Metadata,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LedgerEntry{}, false, nil
		}
		return LedgerEntry{}, false, err
	}
	e.Type = EntryType(typ)
	return e, true, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, e LedgerEntry) error {
	const q = `
INSERT INTO credit_ledger (id, user_id, type, amount, source, idempotency_key, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	var meta any
	if e.Metadata != "" {
		meta = e.Metadata
	}
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		string(e.Type),
		e.Amount,
		e.Source,
		e.IdempotencyKey,
		meta,
		e.CreatedAt,
	)
	return err
}

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, userID string, delta int64, now time.Time) (Balance, error) {
	const q = `
UPDATE credit_balances
SET credits = credits + $2, updated_at = $3
WHERE user_id = $1
RETURNING user_id, credits, updated_at
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, userID, delta, now).Scan(&b.UserID, &b.Credits, &b.UpdatedAt); err != nil {
		return Balance{}, err
	}
	return b, nil
}

func insertAdminAction(ctx context.Context, tx *sql.Tx, a AdminAction) error {
	const q = `
INSERT INTO admin_credit_actions (
  id, user_id, admin_user_id, admin_role, reason, amount, related_ledger_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := tx.ExecContext(ctx, q,
		a.ID,
		a.UserID,
		a.AdminUserID,
		a.AdminRole,
		a.Reason,
		a.Amount,
		a.RelatedLedgerID,
		a.CreatedAt,
	)
	return err
}

func findAdminActionByLedger(ctx context.Context, tx *sql.Tx, ledgerID string) (AdminAction, bool, error) {
	const q = `
SELECT id, user_id, admin_user_id, admin_role, reason, amount, related_ledger_id, created_at
FROM admin_credit_actions
WHERE related_ledger_id = $1
`
	var a AdminAction
	err := tx.QueryRowContext(ctx, q, ledgerID).Scan(
		&a.ID,
		&a.UserID,
		&a.AdminUserID,
		&a.AdminRole,
		&a.Reason,
		&a.Amount,
		&a.RelatedLedgerID,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AdminAction{}, false, nil
		}
		return AdminAction{}, false, err
	}
	return a, true, nil
}

// ListLedger returns a user's entries in [from, to), oldest first.
func ListLedger(ctx context.Context, db utils.DBTX, userID string, from, to time.Time) ([]LedgerEntry, error) {
	const q = `
SELECT id, user_id, type, amount, source, idempotency_key, coalesce(metadata::text,''), created_at
FROM credit_ledger
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`
	rows, err := db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var typ string
		if err := rows.Scan(&e.ID, &e.UserID, &typ, &e.Amount, &e.Source, &e.IdempotencyKey, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EntryType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
