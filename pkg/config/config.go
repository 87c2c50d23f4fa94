// Package config loads and validates the tablet server's on-disk
// configuration. Generalized from
// dd0wney-graphdb/pkg/validation/validator.go's struct-tag validation
// pattern (a package-level *validator.Validate singleton, struct tags,
// a friendlier error formatter over validator.ValidationErrors) applied
// to a YAML-loaded server config instead of a JSON request body.
package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// TabletServerConfig is the top-level on-disk configuration for one
// tablet server process.
type TabletServerConfig struct {
	ServerID string `yaml:"serverId" validate:"required"`
	DataDir  string `yaml:"dataDir" validate:"required"`
	Addr     string `yaml:"addr"`

	MetaStore MetaStoreConfig `yaml:"metaStore" validate:"required"`
	Log       LogConfig       `yaml:"log"`
	Compactor CompactorConfig `yaml:"compactor"`
	BlockCache BlockCacheConfig `yaml:"blockCache"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	WAL       WALConfig       `yaml:"wal"`
}

// WALConfig configures pkg/walog's SharedLogger.
type WALConfig struct {
	MaxSegmentBytes int64 `yaml:"maxSegmentBytes" validate:"omitempty,min=1"`
	Compress        bool  `yaml:"compress"`
}

// MetaStoreConfig configures internal/metastore's file-backed Store.
type MetaStoreConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// LogConfig configures pkg/kdilog.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dev   bool   `yaml:"dev"`
}

// CompactorConfig configures pkg/compactor's worker pool.
type CompactorConfig struct {
	Workers         int   `yaml:"workers" validate:"omitempty,min=1"`
	OutputSplitSize int64 `yaml:"outputSplitSize" validate:"omitempty,min=1"`
}

// BlockCacheConfig configures internal/blockcache's LRU size.
type BlockCacheConfig struct {
	CapacityBytes int64 `yaml:"capacityBytes" validate:"omitempty,min=0"`
}

// MetricsConfig configures pkg/metrics's Prometheus listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a TabletServerConfig with the same conservative
// defaults the teacher's corpus siblings use for optional knobs,
// leaving the required fields (ServerID, DataDir, MetaStore.Dir) for
// the caller to fill in.
func Default() TabletServerConfig {
	return TabletServerConfig{
		Addr:      ":8070",
		Log:       LogConfig{Level: "info"},
		Compactor: CompactorConfig{Workers: 1, OutputSplitSize: 1 << 30},
		Metrics:   MetricsConfig{Addr: ":9090"},
		WAL:       WALConfig{MaxSegmentBytes: 64 << 20},
	}
}

// Load reads and validates a TabletServerConfig from a YAML file at
// path, applying Default's values to any field the file left zero.
func Load(path string) (TabletServerConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return TabletServerConfig{}, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TabletServerConfig{}, errors.Wrapf(err, "parse config %s", path)
	}
	if cfg.Compactor.Workers == 0 {
		cfg.Compactor.Workers = 1
	}
	if cfg.Compactor.OutputSplitSize == 0 {
		cfg.Compactor.OutputSplitSize = 1 << 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8070"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.WAL.MaxSegmentBytes == 0 {
		cfg.WAL.MaxSegmentBytes = 64 << 20
	}

	if err := Validate(&cfg); err != nil {
		return TabletServerConfig{}, err
	}
	return cfg, nil
}

// Validate runs struct-tag validation over cfg, translating the first
// failure into a friendly message the way
// dd0wney-graphdb/pkg/validation/validator.go's formatValidationError
// does.
func Validate(cfg *TabletServerConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	for _, e := range validationErrs {
		switch e.Tag() {
		case "required":
			return errors.Errorf("%s: field is required", e.Namespace())
		case "min":
			return errors.Errorf("%s: must be at least %s", e.Namespace(), e.Param())
		case "oneof":
			return errors.Errorf("%s: must be one of %s", e.Namespace(), e.Param())
		default:
			return errors.Errorf("%s: validation failed (%s)", e.Namespace(), e.Tag())
		}
	}
	return err
}
