package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"voice-agent-platform/pkg/utils"
)

// PostgresRepo writes audit_events. The table has no UPDATE or DELETE path.
type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, user_id, type, actor_user_id, actor_role, ip_address, subject, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, '')::jsonb, $10)`,
		e.ID, e.UserID, string(e.Type),
		utils.NullString(e.ActorUserID), utils.NullString(e.ActorRole), utils.NullString(e.IPAddress),
		utils.NullString(e.Subject), utils.NullString(e.Message), e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, q Query) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, coalesce(actor_user_id,''), coalesce(actor_role,''), coalesce(ip_address,''),
		       coalesce(subject,''), coalesce(message,''), metadata, created_at
		FROM audit_events
		WHERE user_id = $1 AND ($2 = '' OR type = $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		q.UserID, string(q.Type), q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		var meta []byte
		if err := rows.Scan(&e.ID, &e.UserID, &typ, &e.ActorUserID, &e.ActorRole, &e.IPAddress,
			&e.Subject, &e.Message, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		if len(meta) > 0 && json.Valid(meta) {
			e.Metadata = string(meta)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
