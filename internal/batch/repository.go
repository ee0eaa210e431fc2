package batch

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"

	"voice-agent-platform/pkg/utils"
)

var ErrNotFound = errors.New("batch not mirrored")

// Repository stores the batch_calls mirror.
type Repository interface {
	Upsert(ctx context.Context, b BatchCall) error
	Get(ctx context.Context, id string) (BatchCall, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]BatchCall, error)
}

type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Upsert(ctx context.Context, b BatchCall) error {
	const q = `
INSERT INTO batch_calls (
  id, user_id, name, status, agent_id, agent_phone_number_id, total_calls_scheduled, created_at, raw, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
ON CONFLICT (id) DO UPDATE SET
  name = COALESCE(NULLIF(EXCLUDED.name, ''), batch_calls.name),
  status = EXCLUDED.status,
  total_calls_scheduled = EXCLUDED.total_calls_scheduled,
  raw = EXCLUDED.raw,
  updated_at = now()
`
	_, err := r.db.ExecContext(ctx, q,
		b.ID, b.UserID, b.Name, b.Status, b.AgentID, b.AgentPhoneNumberID,
		b.TotalCallsScheduled, b.CreatedAt, string(b.Raw),
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (BatchCall, error) {
	const q = `
SELECT id, user_id, name, status, agent_id, agent_phone_number_id, total_calls_scheduled, created_at, raw
FROM batch_calls WHERE id = $1
`
	var b BatchCall
	var raw []byte
	err := r.db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.UserID, &b.Name, &b.Status, &b.AgentID,
		&b.AgentPhoneNumberID, &b.TotalCallsScheduled, &b.CreatedAt, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return BatchCall{}, ErrNotFound
	}
	if err != nil {
		return BatchCall{}, err
	}
	b.Raw = raw
	return b, nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string, limit int) ([]BatchCall, error) {
	const q = `
SELECT id, user_id, name, status, agent_id, agent_phone_number_id, total_calls_scheduled, created_at, raw
FROM batch_calls WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchCall
	for rows.Next() {
		var b BatchCall
		var raw []byte
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.Status, &b.AgentID, &b.AgentPhoneNumberID,
			&b.TotalCallsScheduled, &b.CreatedAt, &raw); err != nil {
			return nil, err
		}
		b.Raw = raw
		out = append(out, b)
	}
	return out, rows.Err()
}

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]BatchCall
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]BatchCall{}} }

func (r *MemoryRepo) Upsert(ctx context.Context, b BatchCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.rows[b.ID]; ok {
		b.UserID = prev.UserID
		if b.Name == "" {
			b.Name = prev.Name
		}
	}
	r.rows[b.ID] = b
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (BatchCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return BatchCall{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]BatchCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BatchCall, 0)
	for _, b := range r.rows {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
