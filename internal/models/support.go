package models

var SupportPriorities = []string{"Low", "Medium", "High"}

// SupportTicketRequest is a help-desk request forwarded to the task tracker.
type SupportTicketRequest struct {
	Subject     string `json:"subject" validate:"required,max=500"`
	Description string `json:"description" validate:"required"`
	Priority    string `json:"priority" validate:"omitempty,support_priority"`
	Asset       string `json:"asset,omitempty" validate:"max=255"`
}

type SupportTicketResponse struct {
	TaskID string `json:"task_id"`
	URL    string `json:"url,omitempty"`
}
