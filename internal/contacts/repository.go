package contacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"voice-agent-platform/pkg/utils"
)

// Repository is the contact store as seen from inside one unit of work.
type Repository interface {
	FindByPhone(ctx context.Context, userID, phone string) (Contact, error)
	// FindLatestByPhone searches every user's contacts, newest activity first.
	FindLatestByPhone(ctx context.Context, phone string) (Contact, error)
	ListContacts(ctx context.Context, userID string, limit int) ([]Contact, error)
	// UpsertContact inserts c or, on a (user_id, phone) conflict, merges the
	// non-empty fields and advances last_contact_at. created reports an insert.
	UpsertContact(ctx context.Context, c Contact) (out Contact, created bool, err error)
	InsertInteraction(ctx context.Context, i Interaction) error
	ListInteractions(ctx context.Context, contactID string, limit int) ([]Interaction, error)
}

// Store adds transactions on top of Repository.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// PostgresStore backs Store with the contacts and contact_interactions tables.
type PostgresStore struct {
	*PostgresRepo
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{PostgresRepo: &PostgresRepo{db: db}, db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &PostgresRepo{db: tx})
	})
}

type PostgresRepo struct {
	db utils.DBTX
}

const contactColumns = `id, user_id, name, phone, coalesce(email,''), coalesce(company,''), coalesce(location,''),
       coalesce(country,''), coalesce(info,''), status, to_jsonb(coalesce(tags, '{}'::text[])), last_contact_at, created_at, updated_at`

func (r *PostgresRepo) FindByPhone(ctx context.Context, userID, phone string) (Contact, error) {
	const q = `SELECT ` + contactColumns + ` FROM contacts WHERE user_id = $1 AND phone = $2`
	return oneContact(r.db.QueryRowContext(ctx, q, userID, phone))
}

func (r *PostgresRepo) FindLatestByPhone(ctx context.Context, phone string) (Contact, error) {
	const q = `SELECT ` + contactColumns + ` FROM contacts WHERE phone = $1
ORDER BY last_contact_at DESC NULLS LAST, updated_at DESC LIMIT 1`
	return oneContact(r.db.QueryRowContext(ctx, q, phone))
}

func (r *PostgresRepo) ListContacts(ctx context.Context, userID string, limit int) ([]Contact, error) {
	const q = `SELECT ` + contactColumns + ` FROM contacts WHERE user_id = $1
ORDER BY last_contact_at DESC NULLS LAST, created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertContact inserts or merges by (user, phone). An empty Status and nil
// Tags leave the stored values alone; on insert they default to active and {}.
func (r *PostgresRepo) UpsertContact(ctx context.Context, c Contact) (Contact, bool, error) {
	// xmax = 0 only for freshly inserted tuples.
	const q = `
INSERT INTO contacts (
  id, user_id, name, phone, email, company, location, country, info, status, tags, last_contact_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,COALESCE(NULLIF($10, ''), 'active'),COALESCE($11::text[], '{}'),$12,$13,$13)
ON CONFLICT (user_id, phone) DO UPDATE SET
  name            = COALESCE(NULLIF(EXCLUDED.name, ''), contacts.name),
  email           = COALESCE(EXCLUDED.email, contacts.email),
  company         = COALESCE(EXCLUDED.company, contacts.company),
  location        = COALESCE(EXCLUDED.location, contacts.location),
  country         = COALESCE(EXCLUDED.country, contacts.country),
  info            = COALESCE(EXCLUDED.info, contacts.info),
  status          = COALESCE(NULLIF($10, ''), contacts.status),
  tags            = COALESCE($11::text[], contacts.tags),
  last_contact_at = GREATEST(contacts.last_contact_at, EXCLUDED.last_contact_at),
  updated_at      = EXCLUDED.updated_at
RETURNING ` + contactColumns + `, (xmax = 0) AS inserted`

	var lastContact sql.NullTime
	if c.LastContactAt != nil {
		lastContact = utils.NullTime(*c.LastContactAt)
	}
	row := r.db.QueryRowContext(ctx, q,
		c.ID,
		c.UserID,
		c.Name,
		c.Phone,
		utils.NullString(c.Email),
		utils.NullString(c.Company),
		utils.NullString(c.Location),
		utils.NullString(c.Country),
		utils.NullString(c.Info),
		string(c.Status),
		c.Tags,
		lastContact,
		c.CreatedAt,
	)

	var out Contact
	var inserted bool
	if err := scanContactInto(row, &out, &inserted); err != nil {
		return Contact{}, false, err
	}
	return out, inserted, nil
}

func (r *PostgresRepo) InsertInteraction(ctx context.Context, i Interaction) error {
	const q = `
INSERT INTO contact_interactions (
  id, contact_id, user_id, type, occurred_at, duration_secs, summary, agent_id, conversation_id, outcome
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := r.db.ExecContext(ctx, q,
		i.ID,
		i.ContactID,
		i.UserID,
		string(i.Type),
		i.OccurredAt,
		i.DurationSecs,
		utils.NullString(i.Summary),
		utils.NullString(i.AgentID),
		utils.NullString(i.ConversationID),
		utils.NullString(i.Outcome),
	)
	return err
}

func (r *PostgresRepo) ListInteractions(ctx context.Context, contactID string, limit int) ([]Interaction, error) {
	const q = `
SELECT id, contact_id, user_id, type, occurred_at, duration_secs, coalesce(summary,''),
       coalesce(agent_id,''), coalesce(conversation_id,''), coalesce(outcome,'')
FROM contact_interactions
WHERE contact_id = $1
ORDER BY occurred_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, contactID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var i Interaction
		var typ string
		if err := rows.Scan(&i.ID, &i.ContactID, &i.UserID, &typ, &i.OccurredAt, &i.DurationSecs,
			&i.Summary, &i.AgentID, &i.ConversationID, &i.Outcome); err != nil {
			return nil, err
		}
		i.Type = InteractionType(typ)
		out = append(out, i)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func oneContact(s scanner) (Contact, error) {
	c, err := scanContact(s)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func scanContact(s scanner) (Contact, error) {
	var c Contact
	err := scanContactInto(s, &c, nil)
	return c, err
}

func scanContactInto(s scanner, c *Contact, inserted *bool) error {
	var status string
	var tags []byte
	var last sql.NullTime
	dest := []any{
		&c.ID, &c.UserID, &c.Name, &c.Phone, &c.Email, &c.Company, &c.Location,
		&c.Country, &c.Info, &status, &tags, &last, &c.CreatedAt, &c.UpdatedAt,
	}
	if inserted != nil {
		dest = append(dest, inserted)
	}
	if err := s.Scan(dest...); err != nil {
		return err
	}
	c.Status = Status(status)
	c.Tags = nil
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &c.Tags); err != nil {
			return err
		}
	}
	if last.Valid {
		t := last.Time.UTC()
		c.LastContactAt = &t
	} else {
		c.LastContactAt = nil
	}
	return nil
}

