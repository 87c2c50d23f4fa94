package filetracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefReleaseLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frag.dat")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	tr := New()
	tr.Ref(path) // tablet stack
	tr.Ref(path) // open scanner snapshot
	require.Equal(t, 2, tr.Count(path))

	require.NoError(t, tr.Release(path))
	_, err := os.Stat(path)
	require.NoError(t, err, "file must survive while a reference remains")

	require.NoError(t, tr.Release(path))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "file must be unlinked once refcount hits zero")
}

func TestReleaseUntrackedIsNoop(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Release("/no/such/path"))
}
