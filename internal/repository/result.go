package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/triage/internal/domain"
)

// ResultRepository handles triage result data access operations.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// FindByTicketID retrieves the result belonging to a ticket.
func (r *ResultRepository) FindByTicketID(ctx context.Context, ticketID int64) (*domain.Result, error) {
	var result domain.Result
	err := r.db.GetContext(ctx, &result,
		`SELECT id, ticket_id, summary, category, reply_draft, model, prompt_version, created_at
		 FROM results WHERE ticket_id = $1`, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find result for ticket %d: %w", ticketID, err)
	}
	return &result, nil
}

// Complete persists a successful triage outcome as a single transaction:
// the result row is upserted and the ticket status is set to "done". An
// existing result keeps its id and has its content fields updated in place.
//
// The upsert also makes the write path tolerant of a lost race between two
// concurrent processing calls on the same ticket: the loser merges into the
// winner's row instead of tripping the unique constraint.
func (r *ResultRepository) Complete(ctx context.Context, ticketID int64, triage domain.Triage, model, promptVersion string) (*domain.Result, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback()

	var result domain.Result
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO results (ticket_id, summary, category, reply_draft, model, prompt_version)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (ticket_id)
		 DO UPDATE SET summary = EXCLUDED.summary,
		               category = EXCLUDED.category,
		               reply_draft = EXCLUDED.reply_draft,
		               model = EXCLUDED.model,
		               prompt_version = EXCLUDED.prompt_version
		 RETURNING id, ticket_id, summary, category, reply_draft, model, prompt_version, created_at`,
		ticketID, triage.Summary, triage.Category, triage.ReplyDraft, model, promptVersion,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("upsert result for ticket %d: %w", ticketID, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tickets SET status = $1 WHERE id = $2`, domain.TicketStatusDone, ticketID)
	if err != nil {
		return nil, fmt.Errorf("mark ticket %d done: %w", ticketID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mark ticket %d done: %w", ticketID, err)
	}
	if affected == 0 {
		return nil, domain.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit complete tx: %w", err)
	}
	return &result, nil
}
