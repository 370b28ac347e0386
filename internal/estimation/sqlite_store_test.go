package estimation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStoreCreatesNestedDirectories(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "calibration.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
}

func TestSQLiteStoreRoundTripsAndUpserts(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Load("files:3-5/tests")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save("files:3-5/tests", 1.2))
	mean, ok, err := store.Load("files:3-5/tests")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.2, mean)

	require.NoError(t, store.Save("files:3-5/tests", 0.8))
	mean, ok, err = store.Load("files:3-5/tests")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.8, mean)
}
