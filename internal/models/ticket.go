package models

import "time"

var (
	TicketStatuses   = []string{"open", "in_progress", "resolved", "closed"}
	TicketPriorities = []string{"low", "medium", "high"}
)

// Ticket is a maintenance ticket, optionally against an asset.
type Ticket struct {
	ID          int64     `json:"id"`
	OrgID       int64     `json:"org_id"`
	AssetID     *int64    `json:"asset_id"`
	ModelName   *string   `json:"model_name"`
	AssetTag    *string   `json:"asset_tag"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	CreatedBy   *int64    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Completed reports whether the ticket is in a terminal status.
func (t Ticket) Completed() bool {
	return t.Status == "resolved" || t.Status == "closed"
}

type CreateTicketRequest struct {
	AssetID     *int64  `json:"asset_id,omitempty" validate:"omitempty,gt=0"`
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status" validate:"omitempty,ticket_status"`
	Priority    string  `json:"priority" validate:"omitempty,ticket_priority"`
}

type UpdateTicketRequest struct {
	AssetID     *int64  `json:"asset_id,omitempty" validate:"omitempty,gt=0"`
	Title       *string `json:"title,omitempty" validate:"omitempty,max=255"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" validate:"omitempty,ticket_status"`
	Priority    *string `json:"priority,omitempty" validate:"omitempty,ticket_priority"`
}

type TicketUpdate struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id"`
	Note      string    `json:"note"`
	AuthorID  *int64    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type TicketUpdateRequest struct {
	Note string `json:"note" validate:"required,max=5000"`
}
