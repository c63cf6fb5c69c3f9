package badger

import (
	"errors"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/models"
)

// BadgerDB owns the badgerhold store holding ranking snapshots.
type BadgerDB struct {
	store  *badgerhold.Store
	path   string
	logger arbor.ILogger
}

// NewBadgerDB opens the snapshot database at config.Path, creating it when
// missing. ResetOnStartup discards all stored snapshot history first.
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.Path == "" {
		return nil, errors.New("badger storage path is not configured")
	}

	if config.ResetOnStartup {
		if err := os.RemoveAll(config.Path); err != nil {
			return nil, fmt.Errorf("failed to reset snapshot database %s: %w", config.Path, err)
		}
		logger.Info().Str("path", config.Path).Msg("Snapshot database reset")
	}

	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database %s: %w", config.Path, err)
	}

	db := &BadgerDB{store: store, path: config.Path, logger: logger}

	count, err := db.SnapshotCount()
	if err != nil {
		store.Close()
		return nil, err
	}
	logger.Debug().
		Str("path", config.Path).
		Int("snapshots", count).
		Msg("Snapshot database opened")

	return db, nil
}

// Store returns the underlying badgerhold store.
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// SnapshotCount returns the number of stored snapshots across all pipelines.
func (b *BadgerDB) SnapshotCount() (int, error) {
	n, err := b.store.Count(&models.Snapshot{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return int(n), nil
}

func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	b.logger.Debug().Str("path", b.path).Msg("Closing snapshot database")
	return b.store.Close()
}
