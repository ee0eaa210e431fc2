package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"voice-agent-platform/pkg/utils"

	"github.com/shopspring/decimal"
)

// Repository abstracts call_history persistence.
type Repository interface {
	Insert(ctx context.Context, r Record) error
	FindByIdempotencyKey(ctx context.Context, userID, key string) (Record, error)
	FindByConversationID(ctx context.Context, userID, conversationID string) (Record, error)
	UpdateOutcome(ctx context.Context, id string, o Outcome, at time.Time) error
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]Record, error)
}

type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

const recordColumns = `id, user_id, phone_number, coalesce(contact_name,''), call_status, coalesce(conversation_id,''),
       coalesce(agent_id,''), cost, duration_secs, raw_payload, coalesce(idempotency_key,''), call_date, updated_at`

func (r *PostgresRepo) Insert(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO call_history (
  id, user_id, phone_number, contact_name, call_status, conversation_id, agent_id,
  cost, duration_secs, raw_payload, idempotency_key, call_date, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.UserID,
		rec.PhoneNumber,
		utils.NullString(rec.ContactName),
		string(rec.Status),
		utils.NullString(rec.ConversationID),
		utils.NullString(rec.AgentID),
		rec.Cost,
		rec.DurationSecs,
		nullJSON(rec.RawPayload),
		utils.NullString(rec.IdempotencyKey),
		rec.CallDate,
	)
	if utils.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresRepo) FindByIdempotencyKey(ctx context.Context, userID, key string) (Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM call_history WHERE user_id = $1 AND idempotency_key = $2`
	return oneRecord(r.db.QueryRowContext(ctx, q, userID, key))
}

func (r *PostgresRepo) FindByConversationID(ctx context.Context, userID, conversationID string) (Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM call_history WHERE user_id = $1 AND conversation_id = $2 ORDER BY call_date DESC LIMIT 1`
	return oneRecord(r.db.QueryRowContext(ctx, q, userID, conversationID))
}

func (r *PostgresRepo) UpdateOutcome(ctx context.Context, id string, o Outcome, at time.Time) error {
	const q = `
UPDATE call_history
SET call_status = $2, cost = $3, duration_secs = $4, updated_at = $5
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, string(o.Status), o.Cost, o.DurationSecs, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM call_history
WHERE user_id = $1 AND call_date >= $2 AND call_date < $3
ORDER BY call_date DESC`
	rows, err := r.db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRecords(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func oneRecord(s scanner) (Record, error) {
	rec, err := ScanRecord(s)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// RecordColumns is the select list matching ScanRecord, for queries owned by
// other packages.
const RecordColumns = recordColumns

// ScanRecord scans one row selected with RecordColumns.
func ScanRecord(s scanner) (Record, error) {
	var rec Record
	var status string
	var raw []byte
	var cost decimal.NullDecimal
	if err := s.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.PhoneNumber,
		&rec.ContactName,
		&status,
		&rec.ConversationID,
		&rec.AgentID,
		&cost,
		&rec.DurationSecs,
		&raw,
		&rec.IdempotencyKey,
		&rec.CallDate,
		&rec.UpdatedAt,
	); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	if cost.Valid {
		rec.Cost = cost.Decimal
	}
	if len(raw) > 0 {
		rec.RawPayload = json.RawMessage(raw)
	}
	return rec, nil
}

// ScanRecords drains rows selected with RecordColumns.
func ScanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := ScanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
