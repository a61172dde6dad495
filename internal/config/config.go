// Package config loads export and reorganization settings from HCL or YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"gopkg.in/yaml.v3"
)

// Config controls one figport process.
type Config struct {
	// OutputDir is the root of the artifact tree.
	OutputDir string
	// ListenAddr is where the relay websocket server listens.
	ListenAddr string
	// Channel restricts joins to a single channel name (empty = any).
	Channel string

	// BatchSize is the number of node ids per get_nodes_info request.
	BatchSize int
	// StructureTimeout bounds the wait for the structure response. Expiry is fatal.
	StructureTimeout time.Duration
	// CommandTimeout bounds every other command. Expiry counts as zero items.
	CommandTimeout time.Duration
	// MaxRescanRounds caps the recursive re-scan stage.
	MaxRescanRounds int
	// MaxImages caps export_node_as_image requests per session.
	MaxImages   int
	ImageFormat string
	ImageScale  float64

	// Reorganize runs the reconciliation + reorganization tail step on finalize.
	Reorganize bool

	LogLevel  string
	LogFormat string
}

// fileConfig is the on-disk shape. Durations are strings ("30s").
type fileConfig struct {
	OutputDir        string  `hcl:"output_dir,optional" yaml:"output_dir"`
	ListenAddr       string  `hcl:"listen_addr,optional" yaml:"listen_addr"`
	Channel          string  `hcl:"channel,optional" yaml:"channel"`
	BatchSize        int     `hcl:"batch_size,optional" yaml:"batch_size"`
	StructureTimeout string  `hcl:"structure_timeout,optional" yaml:"structure_timeout"`
	CommandTimeout   string  `hcl:"command_timeout,optional" yaml:"command_timeout"`
	MaxRescanRounds  int     `hcl:"max_rescan_rounds,optional" yaml:"max_rescan_rounds"`
	MaxImages        int     `hcl:"max_images,optional" yaml:"max_images"`
	ImageFormat      string  `hcl:"image_format,optional" yaml:"image_format"`
	ImageScale       float64 `hcl:"image_scale,optional" yaml:"image_scale"`
	Reorganize       bool    `hcl:"reorganize,optional" yaml:"reorganize"`
	LogLevel         string  `hcl:"log_level,optional" yaml:"log_level"`
	LogFormat        string  `hcl:"log_format,optional" yaml:"log_format"`
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		OutputDir:        "figma-export",
		ListenAddr:       "127.0.0.1:3055",
		BatchSize:        10,
		StructureTimeout: 30 * time.Second,
		CommandTimeout:   60 * time.Second,
		MaxRescanRounds:  3,
		MaxImages:        10,
		ImageFormat:      "PNG",
		ImageScale:       1,
		Reorganize:       true,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load reads path on top of Default(). The decoder is chosen by extension:
// .hcl uses HCL, .yaml/.yml uses YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	fc := toFile(cfg)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".hcl":
		if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format %q (want .hcl, .yaml or .yml)", ext)
	}

	out, err := fromFile(fc)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return out, out.Validate()
}

// Validate rejects settings the export cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must be set"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.StructureTimeout <= 0 {
		errs = append(errs, fmt.Errorf("structure_timeout must be positive, got %s", c.StructureTimeout))
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("command_timeout must be positive, got %s", c.CommandTimeout))
	}
	if c.MaxRescanRounds < 0 {
		errs = append(errs, fmt.Errorf("max_rescan_rounds must not be negative, got %d", c.MaxRescanRounds))
	}
	if c.MaxImages < 0 {
		errs = append(errs, fmt.Errorf("max_images must not be negative, got %d", c.MaxImages))
	}
	return errors.Join(errs...)
}

func toFile(c Config) fileConfig {
	return fileConfig{
		OutputDir:        c.OutputDir,
		ListenAddr:       c.ListenAddr,
		Channel:          c.Channel,
		BatchSize:        c.BatchSize,
		StructureTimeout: c.StructureTimeout.String(),
		CommandTimeout:   c.CommandTimeout.String(),
		MaxRescanRounds:  c.MaxRescanRounds,
		MaxImages:        c.MaxImages,
		ImageFormat:      c.ImageFormat,
		ImageScale:       c.ImageScale,
		Reorganize:       c.Reorganize,
		LogLevel:         c.LogLevel,
		LogFormat:        c.LogFormat,
	}
}

func fromFile(fc fileConfig) (Config, error) {
	structureTimeout, err := time.ParseDuration(fc.StructureTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("structure_timeout: %w", err)
	}
	commandTimeout, err := time.ParseDuration(fc.CommandTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("command_timeout: %w", err)
	}
	return Config{
		OutputDir:        fc.OutputDir,
		ListenAddr:       fc.ListenAddr,
		Channel:          fc.Channel,
		BatchSize:        fc.BatchSize,
		StructureTimeout: structureTimeout,
		CommandTimeout:   commandTimeout,
		MaxRescanRounds:  fc.MaxRescanRounds,
		MaxImages:        fc.MaxImages,
		ImageFormat:      fc.ImageFormat,
		ImageScale:       fc.ImageScale,
		Reorganize:       fc.Reorganize,
		LogLevel:         fc.LogLevel,
		LogFormat:        fc.LogFormat,
	}, nil
}
