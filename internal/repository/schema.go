package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	id         BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	source     VARCHAR(50) NOT NULL DEFAULT 'web',
	raw_text   TEXT NOT NULL,
	status     VARCHAR(20) NOT NULL DEFAULT 'new'
);

CREATE TABLE IF NOT EXISTS results (
	id             BIGSERIAL PRIMARY KEY,
	ticket_id      BIGINT NOT NULL UNIQUE REFERENCES tickets(id) ON DELETE CASCADE,
	summary        TEXT NOT NULL,
	category       VARCHAR(50) NOT NULL,
	reply_draft    TEXT NOT NULL,
	model          VARCHAR(100) NOT NULL,
	prompt_version VARCHAR(50) NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the tickets and results tables if they do not exist.
// The unique constraint on results.ticket_id enforces the one-result-per-ticket
// invariant at the database level; the FK cascade removes a result when its
// ticket is deleted.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
