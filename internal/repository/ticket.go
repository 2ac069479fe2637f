package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/triage/internal/domain"
)

// TicketRepository handles ticket data access operations.
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository creates a new TicketRepository.
func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Create inserts a new ticket with status "new" and returns the persisted row
// including its server-assigned id and creation timestamp.
func (r *TicketRepository) Create(ctx context.Context, rawText, source string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO tickets (source, raw_text, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, source, raw_text, status`,
		source, rawText, domain.TicketStatusNew,
	).StructScan(&ticket)
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return &ticket, nil
}

// FindByID retrieves a ticket by its ID.
func (r *TicketRepository) FindByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := r.db.GetContext(ctx, &ticket,
		`SELECT id, created_at, source, raw_text, status
		 FROM tickets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find ticket by id %d: %w", id, err)
	}
	return &ticket, nil
}

// UpdateStatus sets the lifecycle status of a ticket and commits it
// immediately, making the transition visible to concurrent readers.
func (r *TicketRepository) UpdateStatus(ctx context.Context, id int64, status domain.TicketStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update ticket %d status: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ticket %d status: %w", id, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a ticket. The FK cascade deletes its result as well.
func (r *TicketRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticket %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete ticket %d: %w", id, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
