package models

import "time"

// Harvest session states.
const (
	StatusQueued      = "queued"
	StatusDownloading = "downloading"
	StatusRegistering = "registering"
	StatusDone        = "done"
	StatusFailed      = "failed"
)

// HarvestStatus tracks the progress of a harvest session.
type HarvestStatus struct {
	SessionID    string    `json:"session_id"`
	SeedURL      string    `json:"seed_url"`
	Status       string    `json:"status"`
	TotalPages   int       `json:"total_pages,omitempty"`
	PagesWritten int       `json:"pages_written,omitempty"`
	PagesFailed  int       `json:"pages_failed,omitempty"`
	Registered   int       `json:"registered,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}
