package ngc

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

// Config configures an Interp. The zero Config runs in millimeters with no
// tool table and no parameter persistence.
type Config struct {
	Units         string `toml:"units" yaml:"units"` // "mm" or "inch"
	ParameterFile string `toml:"parameter_file" yaml:"parameter_file"`
	ParameterDB   string `toml:"parameter_db" yaml:"parameter_db"` // opened by the caller as Store
	BlockDelete   bool   `toml:"block_delete" yaml:"block_delete"`
	OnError       string `toml:"on_error" yaml:"on_error"` // "abort" or "skip"
	Tools         []Tool `toml:"tool" yaml:"tools"`

	// Store overrides ParameterFile.
	Store  ParameterStore `toml:"-" yaml:"-"`
	Logger *log.Logger    `toml:"-" yaml:"-"`
}

// LoadConfig reads a TOML or YAML configuration file, chosen by extension.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("ngc: config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("ngc: config %s: %w", path, err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && err != io.EOF {
			return Config{}, fmt.Errorf("ngc: config %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("ngc: config %s: expected .toml, .yaml or .yml", path)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("ngc: config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) units() (Units, error) {
	switch strings.ToLower(cfg.Units) {
	case "", "mm", "metric", "millimeters":
		return Metric, nil
	case "in", "inch", "inches", "imperial":
		return Imperial, nil
	}
	return Metric, fmt.Errorf("unknown units: %s", cfg.Units)
}

func (cfg Config) validate() error {
	if _, err := cfg.units(); err != nil {
		return err
	}
	switch cfg.OnError {
	case "", OnErrorAbort, OnErrorSkip:
	default:
		return fmt.Errorf("on_error must be %s or %s: %s", OnErrorAbort, OnErrorSkip,
			cfg.OnError)
	}

	seen := map[int]bool{}
	for _, t := range cfg.Tools {
		if t.Number < 1 {
			return fmt.Errorf("tool number must be positive: %d", t.Number)
		} else if seen[t.Number] {
			return fmt.Errorf("tool %d listed more than once", t.Number)
		} else if t.Diameter < 0 {
			return fmt.Errorf("tool %d: negative diameter", t.Number)
		}
		seen[t.Number] = true
	}
	return nil
}

func (cfg Config) store() ParameterStore {
	if cfg.Store != nil {
		return cfg.Store
	} else if cfg.ParameterFile != "" {
		return FileStore{Path: cfg.ParameterFile}
	}
	return nil
}

func (cfg Config) logger() *log.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return log.New(io.Discard, "", 0)
}
