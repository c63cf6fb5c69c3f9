package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/rankwatch/internal/models"
)

// SnapshotStorage implements interfaces.SnapshotStorage on badgerhold.
// Snapshots are keyed by ID and queried by Pipeline and Target.
type SnapshotStorage struct {
	db     *BadgerDB
	now    func() time.Time
	logger arbor.ILogger
}

// NewSnapshotStorage creates a SnapshotStorage over an open database.
func NewSnapshotStorage(db *BadgerDB, logger arbor.ILogger) *SnapshotStorage {
	return &SnapshotStorage{
		db:     db,
		now:    time.Now,
		logger: logger,
	}
}

// Save inserts the snapshot. Existing keys are never overwritten.
func (s *SnapshotStorage) Save(ctx context.Context, snapshot *models.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if snapshot.Target == "" {
		return "", errors.New("snapshot target is required")
	}
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	if snapshot.DateTime == "" {
		snapshot.DateTime = snapshot.CapturedAt.Format(models.DateTimeLayout)
	}
	snapshot.StoredAt = s.now()

	if err := s.db.Store().Insert(snapshot.ID, snapshot); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return "", fmt.Errorf("snapshot %s already exists: %w", snapshot.ID, err)
		}
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.logger.Info().
		Str("id", snapshot.ID).
		Str("pipeline", snapshot.Pipeline).
		Str("target", snapshot.Target).
		Int("records", len(snapshot.Rankings)).
		Msg("Snapshot saved")

	return "badger:" + snapshot.ID, nil
}

// Latest returns the most recently captured snapshot or nil.
func (s *SnapshotStorage) Latest(ctx context.Context, pipeline, target string) (*models.Snapshot, error) {
	all, err := s.find(ctx, pipeline, target)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[len(all)-1], nil
}

// ListSince returns snapshots captured at or after since, oldest first.
func (s *SnapshotStorage) ListSince(ctx context.Context, pipeline, target string, since time.Time) ([]*models.Snapshot, error) {
	all, err := s.find(ctx, pipeline, target)
	if err != nil {
		return nil, err
	}
	var out []*models.Snapshot
	for _, snap := range all {
		if !snap.CapturedAt.Before(since) {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Close closes the database.
func (s *SnapshotStorage) Close() error {
	return s.db.Close()
}

func (s *SnapshotStorage) find(ctx context.Context, pipeline, target string) ([]*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []models.Snapshot
	query := badgerhold.Where("Pipeline").Eq(pipeline).Index("Pipeline").And("Target").Eq(target)
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}

	out := make([]*models.Snapshot, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].CapturedAt.Before(out[j].CapturedAt)
		}
		return out[i].StoredAt.Before(out[j].StoredAt)
	})
	return out, nil
}
