package metastore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/fragment"
)

// InMemoryStore is a non-durable Store used by tests and single-process
// demos — it keeps the teacher's pkg/master bookkeeping shape (a flat
// slice of locations per table, replaced wholesale on change) but
// behind the Store contract.
type InMemoryStore struct {
	mu       sync.Mutex
	configs  map[string][]TabletConfig
	dataDir  string
	fileSeq  atomic.Int64
	registry *fragment.Registry
}

// NewInMemoryStore returns an InMemoryStore that names new fragment
// files under dataDir.
func NewInMemoryStore(dataDir string) *InMemoryStore {
	return &InMemoryStore{
		configs:  make(map[string][]TabletConfig),
		dataDir:  dataDir,
		registry: fragment.NewRegistry(),
	}
}

func (s *InMemoryStore) LoadTabletConfigs(table string) ([]TabletConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TabletConfig, len(s.configs[table]))
	copy(out, s.configs[table])
	return out, nil
}

func (s *InMemoryStore) SetTabletConfig(table string, cfg TabletConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.configs[table]
	for i, c := range list {
		if rowsEqual(c.Rows, cfg.Rows) {
			list[i] = cfg
			return nil
		}
	}
	s.configs[table] = append(list, cfg)
	return nil
}

func (s *InMemoryStore) RemoveTabletConfig(table string, rows cell.RowInterval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.configs[table]
	out := make([]TabletConfig, 0, len(list))
	for _, c := range list {
		if !rowsEqual(c.Rows, rows) {
			out = append(out, c)
		}
	}
	s.configs[table] = out
	return nil
}

func (s *InMemoryStore) GetDataFile(table string) (string, error) {
	n := s.fileSeq.Add(1)
	return fmt.Sprintf("%s/%s-%08d.frag", s.dataDir, table, n), nil
}

func (s *InMemoryStore) OpenTable(uri string) (fragment.Fragment, string, error) {
	f, err := s.registry.Open(uri)
	if err != nil {
		return nil, "", errors.Wrapf(err, "open table %s", uri)
	}
	return f, uri, nil
}

func rowsEqual(a, b cell.RowInterval) bool {
	return string(a.Lo) == string(b.Lo) && string(a.Hi) == string(b.Hi) &&
		a.LoInclusive == b.LoInclusive && a.HiInclusive == b.HiInclusive
}
