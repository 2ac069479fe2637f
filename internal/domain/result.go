package domain

import (
	"fmt"
	"time"
)

// Category is the closed set of triage categories the analyzer may assign.
type Category string

const (
	CategoryAuthLogin      Category = "auth/login"
	CategoryBilling        Category = "billing"
	CategoryBug            Category = "bug"
	CategoryFeatureRequest Category = "feature_request"
	CategoryAccount        Category = "account"
	CategoryOther          Category = "other"
)

// Categories lists every valid triage category.
var Categories = []Category{
	CategoryAuthLogin,
	CategoryBilling,
	CategoryBug,
	CategoryFeatureRequest,
	CategoryAccount,
	CategoryOther,
}

// Valid reports whether c is one of the closed category values.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

const (
	maxSummaryLength    = 600
	maxReplyDraftLength = 2000
)

// Triage is the structured payload produced by the analyzer for one ticket.
type Triage struct {
	Summary    string   `json:"summary"`
	Category   Category `json:"category"`
	ReplyDraft string   `json:"reply_draft"`
}

// Validate checks the triage payload against the structured-output contract.
// It is applied to every analyzer response before the payload is persisted.
func (t Triage) Validate() error {
	if t.Summary == "" {
		return &ValidationError{Field: "summary", Message: "must not be empty"}
	}
	if len(t.Summary) > maxSummaryLength {
		return &ValidationError{Field: "summary", Message: fmt.Sprintf("exceeds %d characters", maxSummaryLength)}
	}
	if !t.Category.Valid() {
		return &ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", t.Category)}
	}
	if t.ReplyDraft == "" {
		return &ValidationError{Field: "reply_draft", Message: "must not be empty"}
	}
	if len(t.ReplyDraft) > maxReplyDraftLength {
		return &ValidationError{Field: "reply_draft", Message: fmt.Sprintf("exceeds %d characters", maxReplyDraftLength)}
	}
	return nil
}

// Result is the persisted triage output derived from a ticket. A ticket owns
// at most one result; forced reprocessing updates the row in place.
type Result struct {
	ID            int64     `json:"id" db:"id"`
	TicketID      int64     `json:"ticket_id" db:"ticket_id"`
	Summary       string    `json:"summary" db:"summary"`
	Category      Category  `json:"category" db:"category"`
	ReplyDraft    string    `json:"reply_draft" db:"reply_draft"`
	Model         string    `json:"model" db:"model"`
	PromptVersion string    `json:"prompt_version" db:"prompt_version"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
