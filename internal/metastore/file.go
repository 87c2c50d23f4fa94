package metastore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/fragment"
)

// FileStore persists TabletConfigs as YAML under Dir/<table>.yaml —
// grounded on dd0wney-graphdb/cmd/graphdb-upgrade's yaml.v3 config
// persistence. Every mutating call rewrites the table's file whole;
// tablet config churn is low-frequency enough that this is simpler and
// safer than an incremental format.
type FileStore struct {
	mu       sync.Mutex
	dir      string
	fileSeq  int64
	registry *fragment.Registry
}

// NewFileStore returns a FileStore rooted at dir, creating it if
// necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create metastore dir %s", dir)
	}
	return &FileStore{dir: dir, registry: fragment.NewRegistry()}, nil
}

func (s *FileStore) tablePath(table string) string {
	return filepath.Join(s.dir, table+".yaml")
}

func (s *FileStore) LoadTabletConfigs(table string) ([]TabletConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.tablePath(table))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read metastore file for %s", table)
	}
	var configs []TabletConfig
	if err := yaml.Unmarshal(data, &configs); err != nil {
		return nil, errors.Wrapf(err, "parse metastore file for %s", table)
	}
	return configs, nil
}

func (s *FileStore) writeLocked(table string, configs []TabletConfig) error {
	data, err := yaml.Marshal(configs)
	if err != nil {
		return errors.Wrapf(err, "marshal metastore file for %s", table)
	}
	tmp := s.tablePath(table) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write metastore file for %s", table)
	}
	return os.Rename(tmp, s.tablePath(table))
}

func (s *FileStore) SetTabletConfig(table string, cfg TabletConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.tablePath(table))
	var configs []TabletConfig
	if err == nil {
		if err := yaml.Unmarshal(data, &configs); err != nil {
			return errors.Wrapf(err, "parse metastore file for %s", table)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "read metastore file for %s", table)
	}

	replaced := false
	for i, c := range configs {
		if rowsEqual(c.Rows, cfg.Rows) {
			configs[i] = cfg
			replaced = true
			break
		}
	}
	if !replaced {
		configs = append(configs, cfg)
	}
	return s.writeLocked(table, configs)
}

func (s *FileStore) RemoveTabletConfig(table string, rows cell.RowInterval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.tablePath(table))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read metastore file for %s", table)
	}
	var configs []TabletConfig
	if err := yaml.Unmarshal(data, &configs); err != nil {
		return errors.Wrapf(err, "parse metastore file for %s", table)
	}
	out := make([]TabletConfig, 0, len(configs))
	for _, c := range configs {
		if !rowsEqual(c.Rows, rows) {
			out = append(out, c)
		}
	}
	return s.writeLocked(table, out)
}

func (s *FileStore) GetDataFile(table string) (string, error) {
	s.mu.Lock()
	s.fileSeq++
	n := s.fileSeq
	s.mu.Unlock()
	return filepath.Join(s.dir, "data", table, fragmentFileName(n)), nil
}

func fragmentFileName(n int64) string {
	return "frag-" + itoa(n) + ".dat"
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (s *FileStore) OpenTable(uri string) (fragment.Fragment, string, error) {
	f, err := s.registry.Open(uri)
	if err != nil {
		return nil, "", errors.Wrapf(err, "open table %s", uri)
	}
	return f, uri, nil
}
