// Package file stores ranking snapshots as pretty-printed JSON files under
// <root>/<pipeline>/<target>/ranking_YYYYMMDD_HHMM.json.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/models"
)

var fileNamePattern = regexp.MustCompile(`^ranking_(\d{8}_\d{4})(?:_(\d+))?\.json$`)

// SnapshotStorage implements interfaces.SnapshotStorage on the filesystem.
type SnapshotStorage struct {
	root   string
	loc    *time.Location
	logger arbor.ILogger
}

// NewSnapshotStorage creates the store rooted at root. loc is used to read
// the capture time from file names when a file lacks scraped_at.
func NewSnapshotStorage(root string, loc *time.Location, logger arbor.ILogger) (*SnapshotStorage, error) {
	if root == "" {
		return nil, errors.New("snapshot root directory is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot root %s: %w", root, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SnapshotStorage{root: root, loc: loc, logger: logger}, nil
}

func (s *SnapshotStorage) dir(pipeline, target string) string {
	return filepath.Join(s.root, pipeline, target)
}

// Save writes the snapshot to a new file. A second snapshot in the same
// minute gets a _2, _3, ... suffix; existing files are never overwritten.
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
		snapshot.DateTime = snapshot.CapturedAt.In(s.loc).Format(models.DateTimeLayout)
	}

	dir := s.dir(snapshot.Pipeline, snapshot.Target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}

	data, err := encode(snapshot)
	if err != nil {
		return "", err
	}

	for seq := 1; ; seq++ {
		name := fmt.Sprintf("ranking_%s.json", snapshot.DateTime)
		if seq > 1 {
			name = fmt.Sprintf("ranking_%s_%d.json", snapshot.DateTime, seq)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create snapshot file %s: %w", path, err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write snapshot file %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("failed to close snapshot file %s: %w", path, err)
		}

		if info, err := os.Stat(path); err == nil {
			snapshot.StoredAt = info.ModTime()
		}

		s.logger.Info().
			Str("path", path).
			Int("records", len(snapshot.Rankings)).
			Msg("Snapshot saved")
		return path, nil
	}
}

// Latest returns the most recently captured snapshot or nil.
func (s *SnapshotStorage) Latest(ctx context.Context, pipeline, target string) (*models.Snapshot, error) {
	all, err := s.list(ctx, pipeline, target)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[len(all)-1], nil
}

// ListSince returns snapshots captured at or after since, oldest first.
func (s *SnapshotStorage) ListSince(ctx context.Context, pipeline, target string, since time.Time) ([]*models.Snapshot, error) {
	all, err := s.list(ctx, pipeline, target)
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

// Close is a no-op.
func (s *SnapshotStorage) Close() error {
	return nil
}

type entry struct {
	snapshot *models.Snapshot
	seq      int
}

// list loads every snapshot of (pipeline, target) ordered by capture time,
// then by collision suffix. Unreadable files are logged and skipped.
func (s *SnapshotStorage) list(ctx context.Context, pipeline, target string) ([]*models.Snapshot, error) {
	dir := s.dir(pipeline, target)
	files, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory %s: %w", dir, err)
	}

	var entries []entry
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.IsDir() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(f.Name())
		if m == nil {
			continue
		}

		path := filepath.Join(dir, f.Name())
		snap, err := s.read(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable snapshot")
			continue
		}
		if snap.CapturedAt.IsZero() {
			if t, err := time.ParseInLocation(models.DateTimeLayout, m[1], s.loc); err == nil {
				snap.CapturedAt = t
			}
		}

		seq := 1
		if m[2] != "" {
			seq, _ = strconv.Atoi(m[2])
		}
		entries = append(entries, entry{snapshot: snap, seq: seq})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.snapshot.CapturedAt.Equal(b.snapshot.CapturedAt) {
			return a.snapshot.CapturedAt.Before(b.snapshot.CapturedAt)
		}
		return a.seq < b.seq
	})

	out := make([]*models.Snapshot, len(entries))
	for i, e := range entries {
		out[i] = e.snapshot
	}
	return out, nil
}

func (s *SnapshotStorage) read(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if info, err := os.Stat(path); err == nil {
		snap.StoredAt = info.ModTime()
	}
	return &snap, nil
}

// encode renders UTF-8 JSON with two-space indent and no HTML escaping.
func encode(snapshot *models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
