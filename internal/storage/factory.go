package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/interfaces"
	"github.com/ternarybob/rankwatch/internal/storage/badger"
	"github.com/ternarybob/rankwatch/internal/storage/file"
)

// NewSnapshotStorage creates the snapshot store selected by storage.type.
func NewSnapshotStorage(logger arbor.ILogger, config *common.Config) (interfaces.SnapshotStorage, error) {
	switch config.Storage.Type {
	case "", "file":
		store, err := file.NewSnapshotStorage(config.Storage.File.Root, config.Location(), logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "badger":
		db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
		if err != nil {
			return nil, err
		}
		return badger.NewSnapshotStorage(db, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Storage.Type)
	}
}
