package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sumire/triage/internal/domain"
)

// TicketService defines the ticket operations consumed by TicketHandler.
type TicketService interface {
	Create(ctx context.Context, rawText, source string) (*domain.Ticket, error)
	Get(ctx context.Context, id int64) (*domain.Ticket, error)
	GetResult(ctx context.Context, ticketID int64) (*domain.Result, error)
	Process(ctx context.Context, id int64, force bool) (*domain.Result, error)
}

// TicketHandler handles ticket endpoints.
type TicketHandler struct {
	tickets TicketService
}

// NewTicketHandler creates a new TicketHandler.
func NewTicketHandler(tickets TicketService) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

// Register mounts the ticket routes on the given group.
func (h *TicketHandler) Register(g *echo.Group) {
	g.POST("/tickets", h.Create)
	g.GET("/tickets/:id", h.Get)
	g.GET("/tickets/:id/result", h.GetResult)
	g.POST("/tickets/:id/process", h.Process)
}

// CreateTicketRequest is the ticket submission payload.
type CreateTicketRequest struct {
	RawText string `json:"raw_text" validate:"required,max=20000"`
	Source  string `json:"source" validate:"omitempty,max=50"`
}

// Create handles POST /tickets.
func (h *TicketHandler) Create(c echo.Context) error {
	var req CreateTicketRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ticket, err := h.tickets.Create(c.Request().Context(), req.RawText, req.Source)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, ticket)
}

// Get handles GET /tickets/:id.
func (h *TicketHandler) Get(c echo.Context) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}

	ticket, err := h.tickets.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, ticket)
}

// GetResult handles GET /tickets/:id/result.
func (h *TicketHandler) GetResult(c echo.Context) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}

	result, err := h.tickets.GetResult(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, result)
}

// Process handles POST /tickets/:id/process. The optional force query
// parameter re-runs the analyzer even when a result already exists.
func (h *TicketHandler) Process(c echo.Context) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}

	force := false
	if raw := c.QueryParam("force"); raw != "" {
		force, err = strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: force must be a boolean", domain.ErrInvalidInput)
		}
	}

	result, err := h.tickets.Process(c.Request().Context(), id, force)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, result)
}

func ticketID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: ticket id must be a positive integer", domain.ErrInvalidInput)
	}
	return id, nil
}
