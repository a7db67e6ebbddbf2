package history

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends call events to the call_events table.
//
// Expected schema:
//
//	CREATE TABLE call_events (
//	    id             UUID PRIMARY KEY,
//	    kind           TEXT NOT NULL,
//	    session_id     TEXT,
//	    channel_id     TEXT,
//	    caller_name    TEXT,
//	    participant_id INT,
//	    detail         TEXT,
//	    created_at     TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
		INSERT INTO call_events
			(id, kind, session_id, channel_id, caller_name, participant_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, q,
		e.ID, string(e.Kind), e.SessionID, e.ChannelID, e.CallerName, e.ParticipantID, e.Detail, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}
