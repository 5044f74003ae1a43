package models

import "time"

// HarvestFailure captures a failed harvest session for the DLQ.
type HarvestFailure struct {
	SessionID    string         `json:"session_id"`
	SeedURL      string         `json:"seed_url"`
	Criteria     SearchCriteria `json:"criteria"`
	PagesWritten int            `json:"pages_written"`
	Error        string         `json:"error"`
	FailedAt     time.Time      `json:"failed_at"`
}
