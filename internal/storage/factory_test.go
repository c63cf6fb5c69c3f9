package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/storage/badger"
	"github.com/ternarybob/rankwatch/internal/storage/file"
)

func TestNewSnapshotStorage(t *testing.T) {
	dir := t.TempDir()
	config := common.NewDefaultConfig()
	config.Storage.File.Root = filepath.Join(dir, "data")
	config.Storage.Badger.Path = filepath.Join(dir, "db")

	s, err := NewSnapshotStorage(arbor.NewLogger(), config)
	require.NoError(t, err)
	assert.IsType(t, &file.SnapshotStorage{}, s)
	require.NoError(t, s.Close())

	config.Storage.Type = "badger"
	s, err = NewSnapshotStorage(arbor.NewLogger(), config)
	require.NoError(t, err)
	assert.IsType(t, &badger.SnapshotStorage{}, s)
	require.NoError(t, s.Close())

	config.Storage.Type = "sqlite"
	_, err = NewSnapshotStorage(arbor.NewLogger(), config)
	assert.Error(t, err)
}
