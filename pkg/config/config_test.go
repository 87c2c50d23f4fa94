package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
serverId: srv-1
dataDir: /var/lib/kdi
metaStore:
  dir: /var/lib/kdi/meta
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "srv-1", cfg.ServerID)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, 1, cfg.Compactor.Workers)
	require.EqualValues(t, 1<<30, cfg.Compactor.OutputSplitSize)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	path := writeConfig(t, `
dataDir: /var/lib/kdi
metaStore:
  dir: /var/lib/kdi/meta
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
serverId: srv-1
dataDir: /var/lib/kdi
metaStore:
  dir: /var/lib/kdi/meta
log:
  level: verbose
`)
	_, err := Load(path)
	require.Error(t, err)
}
