package ops

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"collator/internal/chaos"
	"collator/internal/recorder"
	"collator/internal/schema"
	"collator/internal/source"
	"collator/pkg/conn"
	"collator/pkg/exception"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "COLLATOR"

	defaultEpochSeconds = 60
	defaultMetricsPath  = "/metrics"
)

// FileConfig mirrors the JSON or YAML config layout.
type FileConfig struct {
	Registry RegistryConfig        `json:"registry" yaml:"registry"`
	Collator CollatorConfig        `json:"collator" yaml:"collator"`
	Sources  []source.Config       `json:"sources" yaml:"sources" validate:"dive"`
	Record   recorder.WriterConfig `json:"record" yaml:"record"`
	Metrics  MetricsConfig         `json:"metrics" yaml:"metrics"`
	Pacing   PacingConfig          `json:"pacing" yaml:"pacing"`
	Postgres conn.Option           `json:"postgres" yaml:"postgres"`
	Chaos    []ChaosConfig         `json:"chaos" yaml:"chaos" validate:"dive"`
}

// RegistryConfig defines venue and symbol mappings.
type RegistryConfig struct {
	Venues  []VenueConfig  `json:"venues" yaml:"venues" validate:"dive"`
	Symbols []SymbolConfig `json:"symbols" yaml:"symbols" validate:"dive"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `json:"name" yaml:"name" validate:"required"`
}

// SymbolConfig describes a symbol entry.
type SymbolConfig struct {
	Name  string           `json:"name" yaml:"name" validate:"required"`
	Venue string           `json:"venue" yaml:"venue" validate:"required"`
	Scale schema.ScaleSpec `json:"scale" yaml:"scale"`
}

// CollatorConfig holds the merge settings.
type CollatorConfig struct {
	EpochSeconds int `json:"epochSeconds" yaml:"epochSeconds" validate:"gte=1"`
	// Limit stops the run after that many datums, zero means no limit.
	Limit int `json:"limit" yaml:"limit" validate:"gte=0"`
	// FeedCapacity sizes the in-process queue behind queue sources.
	FeedCapacity int `json:"feedCapacity" yaml:"feedCapacity" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
	Path string `json:"path" yaml:"path"`
}

// PacingConfig replays the merged stream at Speed times real time. Zero
// disables pacing.
type PacingConfig struct {
	Speed  float64       `json:"speed" yaml:"speed" validate:"gte=0"`
	MaxGap time.Duration `json:"maxGap" yaml:"maxGap" validate:"gte=0"`
}

// ChaosConfig injects faults into the source whose label matches Source.
type ChaosConfig struct {
	Source       string `json:"source" yaml:"source" validate:"required"`
	chaos.Config `yaml:",inline"`
}

// EnvOverrides are read from COLLATOR_* variables and win over the file.
type EnvOverrides struct {
	EpochSeconds int     `envconfig:"EPOCH_SECONDS"`
	Limit        int     `envconfig:"LIMIT"`
	RecordDir    string  `envconfig:"RECORD_DIR"`
	MetricsAddr  string  `envconfig:"METRICS_ADDR"`
	PacingSpeed  float64 `envconfig:"PACING_SPEED"`
	PostgresDSN  string  `envconfig:"POSTGRES_DSN"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	FileConfig
	Symbols *schema.Registry
}

// Load reads a config file, applies environment overrides, fills defaults
// and validates the result.
func Load(path string) (Loaded, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var env EnvOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Loaded{}, errors.Wrap(err, "read env overrides")
	}
	return Resolve(cfg.merge(env))
}

// ReadFile decodes path as YAML when its extension is .yaml or .yml and as
// JSON otherwise.
func ReadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, errors.Wrapf(err, "read config %s", path)
	}
	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return FileConfig{}, errors.Wrapf(err, "decode config %s", path)
	}
	return cfg, nil
}

// Resolve fills defaults, validates cfg and builds the symbol registry.
func Resolve(cfg FileConfig) (Loaded, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Loaded{}, err
	}
	symbols, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{FileConfig: cfg, Symbols: symbols}, nil
}

func (c FileConfig) merge(env EnvOverrides) FileConfig {
	if env.EpochSeconds != 0 {
		c.Collator.EpochSeconds = env.EpochSeconds
	}
	if env.Limit != 0 {
		c.Collator.Limit = env.Limit
	}
	if env.RecordDir != "" {
		c.Record.Dir = env.RecordDir
	}
	if env.MetricsAddr != "" {
		c.Metrics.Addr = env.MetricsAddr
	}
	if env.PacingSpeed != 0 {
		c.Pacing.Speed = env.PacingSpeed
	}
	if env.PostgresDSN != "" {
		c.Postgres.ConnString = env.PostgresDSN
	}
	return c
}

func (c FileConfig) withDefaults() FileConfig {
	if c.Collator.EpochSeconds == 0 {
		c.Collator.EpochSeconds = defaultEpochSeconds
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	return c
}

// Validate checks the struct tags.
func (c FileConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrapf(exception.ErrInvalidArgument, "config: %v", err)
	}
	return nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		if _, err := reg.AddVenue(venue.Name); err != nil {
			return nil, err
		}
	}
	for _, sym := range cfg.Symbols {
		venueID, ok := reg.VenueIDByName(sym.Venue)
		if !ok {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "venue not found: %s", sym.Venue)
		}
		if sym.Scale.PriceScale < 0 || sym.Scale.QuantityScale < 0 {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "negative scale for %s", sym.Name)
		}
		if _, err := reg.AddSymbol(sym.Name, venueID, sym.Scale); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
