package trackclient

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoltStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playtrack.db")
	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.Load("favorites/user-1")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Save("favorites/user-1", []byte(`["a","b"]`)))

	value, found, err := store.Load("favorites/user-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `["a","b"]`, string(value))

	// Overwrite replaces, never appends.
	require.NoError(t, store.Save("favorites/user-1", []byte(`["c"]`)))
	value, _, err = store.Load("favorites/user-1")
	require.NoError(t, err)
	require.Equal(t, `["c"]`, string(value))
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playtrack.db")
	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save("favorites/anonymous", []byte(`["x"]`)))
	require.NoError(t, store.Close())

	store, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	value, found, err := store.Load("favorites/anonymous")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `["x"]`, string(value))
}
