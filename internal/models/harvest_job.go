package models

import "time"

// HarvestJob asks a worker to download and register one search.
type HarvestJob struct {
	SessionID string         `json:"session_id"`
	Criteria  SearchCriteria `json:"criteria"`
	SeedURL   string         `json:"seed_url"`
	CreatedAt time.Time      `json:"created_at"`
}
