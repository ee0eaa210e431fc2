package agents

import (
	"context"
	"database/sql"
	"errors"

	"voice-agent-platform/pkg/utils"
)

// Repository abstracts agent persistence.
type Repository interface {
	Get(ctx context.Context, id string) (Agent, error)
	GetByProviderID(ctx context.Context, providerAgentID string) (Agent, error)
	FirstActiveForUser(ctx context.Context, userID string) (Agent, error)
	ListByUser(ctx context.Context, userID string) ([]Agent, error)
}

// PostgresRepo reads the agents table.
type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

const agentColumns = `id, user_id, name, provider_agent_id, coalesce(voice_id,''), coalesce(system_prompt,''),
       coalesce(language,''), active, created_at, updated_at`

func (r *PostgresRepo) Get(ctx context.Context, id string) (Agent, error) {
	return r.one(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
}

func (r *PostgresRepo) GetByProviderID(ctx context.Context, providerAgentID string) (Agent, error) {
	return r.one(ctx, `SELECT `+agentColumns+` FROM agents WHERE provider_agent_id = $1 ORDER BY active DESC, created_at LIMIT 1`, providerAgentID)
}

func (r *PostgresRepo) FirstActiveForUser(ctx context.Context, userID string) (Agent, error) {
	return r.one(ctx, `SELECT `+agentColumns+` FROM agents WHERE user_id = $1 AND active ORDER BY created_at LIMIT 1`, userID)
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string) ([]Agent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) one(ctx context.Context, q string, arg string) (Agent, error) {
	a, err := scanAgent(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return a, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(s scanner) (Agent, error) {
	var a Agent
	err := s.Scan(
		&a.ID,
		&a.UserID,
		&a.Name,
		&a.ProviderAgentID,
		&a.VoiceID,
		&a.SystemPrompt,
		&a.Language,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}
