package metastore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdi-go/kdi/pkg/cell"
)

func rowRange(lo, hi string) cell.RowInterval {
	return cell.RowInterval{Lo: []byte(lo), Hi: []byte(hi), LoInclusive: true, HiInclusive: false}
}

func TestInMemoryStoreSetAndLoad(t *testing.T) {
	s := NewInMemoryStore(t.TempDir())

	err := s.SetTabletConfig("users", TabletConfig{
		Rows:         rowRange("a", "m"),
		FragmentURIs: []string{"disk:/data/f1.dat"},
		Server:       "tablet-1",
	})
	require.NoError(t, err)

	configs, err := s.LoadTabletConfigs("users")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, "tablet-1", configs[0].Server)
}

func TestInMemoryStoreSetReplacesSameRange(t *testing.T) {
	s := NewInMemoryStore(t.TempDir())
	rows := rowRange("a", "m")

	require.NoError(t, s.SetTabletConfig("users", TabletConfig{Rows: rows, Server: "tablet-1"}))
	require.NoError(t, s.SetTabletConfig("users", TabletConfig{Rows: rows, Server: "tablet-2"}))

	configs, err := s.LoadTabletConfigs("users")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, "tablet-2", configs[0].Server)
}

func TestInMemoryStoreSplitAddsRangeAndRemoveDrops(t *testing.T) {
	s := NewInMemoryStore(t.TempDir())
	whole := rowRange("a", "z")
	require.NoError(t, s.SetTabletConfig("users", TabletConfig{Rows: whole, Server: "tablet-1"}))

	require.NoError(t, s.RemoveTabletConfig("users", whole))
	require.NoError(t, s.SetTabletConfig("users", TabletConfig{Rows: rowRange("a", "m"), Server: "tablet-1"}))
	require.NoError(t, s.SetTabletConfig("users", TabletConfig{Rows: rowRange("m", "z"), Server: "tablet-2"}))

	configs, err := s.LoadTabletConfigs("users")
	require.NoError(t, err)
	require.Len(t, configs, 2)
}

func TestInMemoryStoreGetDataFileIsUnique(t *testing.T) {
	s := NewInMemoryStore(t.TempDir())
	a, err := s.GetDataFile("users")
	require.NoError(t, err)
	b, err := s.GetDataFile("users")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
