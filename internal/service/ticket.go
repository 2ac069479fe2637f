package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sumire/triage/internal/domain"
)

// TicketStore defines the ticket data access interface consumed by TicketService.
type TicketStore interface {
	Create(ctx context.Context, rawText, source string) (*domain.Ticket, error)
	FindByID(ctx context.Context, id int64) (*domain.Ticket, error)
	UpdateStatus(ctx context.Context, id int64, status domain.TicketStatus) error
}

// ResultStore defines the result data access interface consumed by TicketService.
type ResultStore interface {
	FindByTicketID(ctx context.Context, ticketID int64) (*domain.Result, error)
	Complete(ctx context.Context, ticketID int64, triage domain.Triage, model, promptVersion string) (*domain.Result, error)
}

// Analyzer derives a structured triage payload from raw ticket text.
type Analyzer interface {
	Analyze(ctx context.Context, rawText string) (domain.Triage, error)
	Model() string
	PromptVersion() string
}

// TicketService owns ticket lifecycle logic: submission and the processing
// state machine that drives a ticket from new through processing to done or
// failed.
type TicketService struct {
	tickets  TicketStore
	results  ResultStore
	analyzer Analyzer
}

// NewTicketService creates a new TicketService.
func NewTicketService(tickets TicketStore, results ResultStore, analyzer Analyzer) *TicketService {
	return &TicketService{tickets: tickets, results: results, analyzer: analyzer}
}

// Create validates and persists a new ticket with status "new".
func (s *TicketService) Create(ctx context.Context, rawText, source string) (*domain.Ticket, error) {
	if rawText == "" {
		return nil, &domain.ValidationError{Field: "raw_text", Message: "must not be empty"}
	}
	if len(rawText) > domain.MaxRawTextLength {
		return nil, &domain.ValidationError{Field: "raw_text", Message: fmt.Sprintf("exceeds %d characters", domain.MaxRawTextLength)}
	}
	if source == "" {
		source = domain.DefaultSource
	}
	if len(source) > domain.MaxSourceLength {
		return nil, &domain.ValidationError{Field: "source", Message: fmt.Sprintf("exceeds %d characters", domain.MaxSourceLength)}
	}

	ticket, err := s.tickets.Create(ctx, rawText, source)
	if err != nil {
		return nil, err
	}
	slog.Info("ticket created", "ticket_id", ticket.ID, "source", ticket.Source)
	return ticket, nil
}

// Get retrieves a ticket by id.
func (s *TicketService) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	return s.tickets.FindByID(ctx, id)
}

// GetResult retrieves the triage result for a ticket, if one exists.
func (s *TicketService) GetResult(ctx context.Context, ticketID int64) (*domain.Result, error) {
	return s.results.FindByTicketID(ctx, ticketID)
}

// Process runs the triage state machine for one ticket.
//
// If a result already exists and force is false the existing result is
// returned untouched: no analyzer call, no status change, so repeated
// non-forced calls are side-effect-free. Otherwise the ticket is committed as
// "processing" before the slow external call, then on success the result is
// upserted and the ticket marked "done" in one transaction; on failure the
// ticket is marked "failed" and the error surfaced as ErrProcessingFailed.
//
// A ticket left in "processing" with no result by a crashed run is not
// recovered automatically; the next Process call re-enters here and overwrites
// the stale marker (at-most-once-effective-result, not exactly-once).
func (s *TicketService) Process(ctx context.Context, id int64, force bool) (*domain.Result, error) {
	ticket, err := s.tickets.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing, err := s.results.FindByTicketID(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && !force {
		return existing, nil
	}

	// Committed before the external call so concurrent readers see the
	// ticket as in flight.
	if err := s.tickets.UpdateStatus(ctx, id, domain.TicketStatusProcessing); err != nil {
		return nil, err
	}
	slog.Info("ticket processing started", "ticket_id", id, "force", force)

	triage, err := s.analyzer.Analyze(ctx, ticket.RawText)
	if err != nil {
		return nil, s.fail(ctx, id, err)
	}

	result, err := s.results.Complete(ctx, id, triage, s.analyzer.Model(), s.analyzer.PromptVersion())
	if err != nil {
		return nil, s.fail(ctx, id, err)
	}

	slog.Info("ticket processed", "ticket_id", id, "category", result.Category)
	return result, nil
}

// fail marks the ticket failed and wraps the cause in ErrProcessingFailed.
// The failed-status commit stands alone; if even that write fails there is
// nothing left to do but log it.
func (s *TicketService) fail(ctx context.Context, id int64, cause error) error {
	slog.Error("ticket processing failed", "ticket_id", id, "error", cause)
	if err := s.tickets.UpdateStatus(ctx, id, domain.TicketStatusFailed); err != nil {
		slog.Error("marking ticket failed did not stick", "ticket_id", id, "error", err)
	}
	return fmt.Errorf("%w: %v", domain.ErrProcessingFailed, cause)
}
