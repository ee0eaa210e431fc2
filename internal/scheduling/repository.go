package scheduling

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voice-agent-platform/pkg/utils"
)

var ErrNotFound = errors.New("scheduled call not found")

// Repository abstracts scheduled_calls persistence. Status changes are
// conditional on the current status so concurrent runs cannot both win.
type Repository interface {
	Create(ctx context.Context, sc ScheduledCall) error
	Get(ctx context.Context, id string) (ScheduledCall, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]ScheduledCall, error)

	// ListDue returns scheduled rows with from <= scheduled_at <= to, high priority first.
	ListDue(ctx context.Context, from, to time.Time) ([]ScheduledCall, error)
	// MarkMissed moves scheduled rows older than before to missed.
	MarkMissed(ctx context.Context, before, at time.Time) (int64, error)
	// Claim moves one row scheduled -> executing; false means another run got it.
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
	Complete(ctx context.Context, id, conversationID string, at time.Time) error
	Fail(ctx context.Context, id, note string, at time.Time) error
	// Cancel moves a user's row scheduled -> cancelled; false when it is no longer scheduled.
	Cancel(ctx context.Context, userID, id string, at time.Time) (bool, error)
}

type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

const columns = `id, user_id, coalesce(agent_id::text,''), coalesce(client_name,''), phone_number, scheduled_at,
       priority, status, coalesce(notes,''), coalesce(conversation_id,''), executed_at, created_at, updated_at`

const priorityOrder = `CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`

func (r *PostgresRepo) Create(ctx context.Context, sc ScheduledCall) error {
	const q = `
INSERT INTO scheduled_calls (
  id, user_id, agent_id, client_name, phone_number, scheduled_at, priority, status, notes, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
`
	_, err := r.db.ExecContext(ctx, q,
		sc.ID,
		sc.UserID,
		utils.NullString(sc.AgentID),
		utils.NullString(sc.ClientName),
		sc.PhoneNumber,
		sc.ScheduledAt,
		string(sc.Priority),
		string(sc.Status),
		utils.NullString(sc.Notes),
		sc.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (ScheduledCall, error) {
	const q = `SELECT ` + columns + ` FROM scheduled_calls WHERE id = $1`
	sc, err := scan(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledCall{}, ErrNotFound
	}
	return sc, err
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string, limit int) ([]ScheduledCall, error) {
	const q = `SELECT ` + columns + ` FROM scheduled_calls WHERE user_id = $1 ORDER BY scheduled_at DESC LIMIT $2`
	return r.list(ctx, q, userID, limit)
}

func (r *PostgresRepo) ListDue(ctx context.Context, from, to time.Time) ([]ScheduledCall, error) {
	const q = `SELECT ` + columns + ` FROM scheduled_calls
WHERE status = 'scheduled' AND scheduled_at >= $1 AND scheduled_at <= $2
ORDER BY ` + priorityOrder + `, scheduled_at ASC`
	return r.list(ctx, q, from, to)
}

func (r *PostgresRepo) MarkMissed(ctx context.Context, before, at time.Time) (int64, error) {
	const q = `
UPDATE scheduled_calls
SET status = 'missed', updated_at = $2
WHERE status = 'scheduled' AND scheduled_at < $1
`
	res, err := r.db.ExecContext(ctx, q, before, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepo) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `
UPDATE scheduled_calls
SET status = 'executing', executed_at = $2, updated_at = $2
WHERE id = $1 AND status = 'scheduled'
`
	return r.transition(ctx, q, id, at)
}

func (r *PostgresRepo) Complete(ctx context.Context, id, conversationID string, at time.Time) error {
	const q = `
UPDATE scheduled_calls
SET status = 'completed', conversation_id = $2, updated_at = $3
WHERE id = $1 AND status = 'executing'
`
	ok, err := r.transition(ctx, q, id, conversationID, at)
	if err == nil && !ok {
		return ErrNotFound
	}
	return err
}

func (r *PostgresRepo) Fail(ctx context.Context, id, note string, at time.Time) error {
	const q = `
UPDATE scheduled_calls
SET status = 'failed',
    notes = CASE WHEN coalesce(notes,'') = '' THEN $2 ELSE notes || E'\n' || $2 END,
    updated_at = $3
WHERE id = $1 AND status = 'executing'
`
	ok, err := r.transition(ctx, q, id, note, at)
	if err == nil && !ok {
		return ErrNotFound
	}
	return err
}

func (r *PostgresRepo) Cancel(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	const q = `
UPDATE scheduled_calls
SET status = 'cancelled', updated_at = $3
WHERE id = $1 AND user_id = $2 AND status = 'scheduled'
`
	return r.transition(ctx, q, id, userID, at)
}

func (r *PostgresRepo) transition(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]ScheduledCall, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledCall
	for rows.Next() {
		sc, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (ScheduledCall, error) {
	var sc ScheduledCall
	var priority, status string
	var executedAt sql.NullTime
	if err := s.Scan(
		&sc.ID,
		&sc.UserID,
		&sc.AgentID,
		&sc.ClientName,
		&sc.PhoneNumber,
		&sc.ScheduledAt,
		&priority,
		&status,
		&sc.Notes,
		&sc.ConversationID,
		&executedAt,
		&sc.CreatedAt,
		&sc.UpdatedAt,
	); err != nil {
		return ScheduledCall{}, err
	}
	sc.Priority = Priority(priority)
	sc.Status = Status(status)
	if executedAt.Valid {
		t := executedAt.Time
		sc.ExecutedAt = &t
	}
	return sc, nil
}
