package relaylog

import (
	"context"
	"database/sql"
)

// PostgresRepo appends relay log entries to the relay_events table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO relay_events (id, call_id, event_kind, contact_id, tier, note_created, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.CallID,
		e.EventKind,
		e.ContactID,
		e.Tier,
		e.NoteCreated,
		e.Error,
		e.CreatedAt,
	)
	return err
}
