// Package metastore defines the metadata/config store collaborator
// spec.md §1 places out of scope and §6 specifies by interface: it
// persists tablet locations and fragment URIs and hands out unique
// data-file paths. Generalized from the teacher's pkg/master (an
// in-memory TabletLocation registry with a TODO where heartbeats should
// update and a hand-rolled split-report remove/add) into the Store
// contract the tablet engine actually needs.
package metastore

import (
	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/fragment"
)

// TabletConfig is the persisted state of one tablet: its row extent,
// the URIs of its on-disk fragment stack (oldest first), and the server
// currently serving it.
type TabletConfig struct {
	Rows         cell.RowInterval
	FragmentURIs []string
	Server       string
}

// Store is the metadata store collaborator.
type Store interface {
	// LoadTabletConfigs returns every tablet config for table.
	LoadTabletConfigs(table string) ([]TabletConfig, error)
	// SetTabletConfig atomically persists cfg as table's config for the
	// row range cfg.Rows identifies (replacing any prior config with
	// the same range, or adding a new one on split).
	SetTabletConfig(table string, cfg TabletConfig) error
	// RemoveTabletConfig drops the config for the given row range,
	// e.g. when a split replaces one tablet with two.
	RemoveTabletConfig(table string, rows cell.RowInterval) error
	// GetDataFile returns a path for a new fragment belonging to table.
	GetDataFile(table string) (string, error)
	// OpenTable resolves uri to a Fragment, possibly redirecting to a
	// canonical URI (e.g. after a storage-tier migration).
	OpenTable(uri string) (fragment.Fragment, string, error)
}
