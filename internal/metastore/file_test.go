package metastore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTripsThroughYAML(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	rows := rowRange("a", "m")
	require.NoError(t, s.SetTabletConfig("users", TabletConfig{
		Rows:         rows,
		FragmentURIs: []string{"disk:/data/f1.dat", "disk:/data/f2.dat"},
		Server:       "tablet-1",
	}))

	configs, err := s.LoadTabletConfigs("users")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, []string{"disk:/data/f1.dat", "disk:/data/f2.dat"}, configs[0].FragmentURIs)
	require.Equal(t, rows, configs[0].Rows)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.SetTabletConfig("users", TabletConfig{
		Rows:   rowRange("a", "m"),
		Server: "tablet-1",
	}))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	configs, err := s2.LoadTabletConfigs("users")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, "tablet-1", configs[0].Server)
}

func TestFileStoreLoadMissingTableReturnsEmpty(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	configs, err := s.LoadTabletConfigs("nonexistent")
	require.NoError(t, err)
	require.Empty(t, configs)
}

func TestFileStoreRemoveTabletConfig(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	rows := rowRange("a", "m")
	require.NoError(t, s.SetTabletConfig("users", TabletConfig{Rows: rows, Server: "tablet-1"}))
	require.NoError(t, s.RemoveTabletConfig("users", rows))

	configs, err := s.LoadTabletConfigs("users")
	require.NoError(t, err)
	require.Empty(t, configs)
}

func TestFileStoreGetDataFileIsUnique(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	a, err := s.GetDataFile("users")
	require.NoError(t, err)
	b, err := s.GetDataFile("users")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
