package domain

import "time"

// TicketStatus represents the processing lifecycle state of a ticket.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusProcessing TicketStatus = "processing"
	TicketStatusDone       TicketStatus = "done"
	TicketStatusFailed     TicketStatus = "failed"
)

const (
	// MaxRawTextLength bounds the submitted ticket body.
	MaxRawTextLength = 20000
	// MaxSourceLength bounds the free-form origin tag.
	MaxSourceLength = 50
	// DefaultSource is used when no origin tag is submitted.
	DefaultSource = "web"
)

// Ticket represents a submitted support request.
type Ticket struct {
	ID        int64        `json:"id" db:"id"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	Source    string       `json:"source" db:"source"`
	RawText   string       `json:"raw_text" db:"raw_text"`
	Status    TicketStatus `json:"status" db:"status"`
}
