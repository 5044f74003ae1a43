package store

import (
	"context"

	"catalog-harvester/internal/models"
)

// StatusStore persists harvest session status.
type StatusStore interface {
	SetStatus(ctx context.Context, status models.HarvestStatus) error
	GetStatus(ctx context.Context, sessionID string) (models.HarvestStatus, bool, error)
}
