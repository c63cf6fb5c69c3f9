package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/rankwatch/internal/models"
)

// SnapshotStorage persists ranking snapshots per (pipeline, target).
type SnapshotStorage interface {
	// Save persists the snapshot and returns where it was written.
	Save(ctx context.Context, snapshot *models.Snapshot) (string, error)

	// Latest returns the most recently captured snapshot, or nil when none exists.
	Latest(ctx context.Context, pipeline, target string) (*models.Snapshot, error)

	// ListSince returns snapshots captured at or after since, oldest first.
	ListSince(ctx context.Context, pipeline, target string, since time.Time) ([]*models.Snapshot, error)

	Close() error
}
