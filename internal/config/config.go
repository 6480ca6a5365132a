// Package config manages qpixsim run configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete qpixsim run configuration.
type Config struct {
	Mesh    MeshConfig    `koanf:"mesh"`
	Run     RunConfig     `koanf:"run"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Asics   []AsicConfig  `koanf:"asics"`
}

// MeshConfig describes the grid dimensions and the DAQ node's position.
type MeshConfig struct {
	// Rows and Cols are the mesh grid dimensions.
	Rows int `koanf:"rows"`
	Cols int `koanf:"cols"`

	// DaqRow and DaqCol locate the single distinguished sink cell.
	DaqRow int `koanf:"daq_row"`
	DaqCol int `koanf:"daq_col"`
}

// RunConfig holds the parameters governing a single simulation run.
type RunConfig struct {
	// Duration is the simulated wall-clock run length, in seconds.
	Duration float64 `koanf:"duration_seconds"`

	// Seed seeds every cell's reproducible RNG stream. Zero is a valid,
	// meaningful seed — it is not treated as "unset".
	Seed uint64 `koanf:"seed"`

	// RandomRate is the Poisson background hit rate, in hits/s/channel.
	RandomRate float64 `koanf:"random_rate"`

	// PushMode enables every Asic's EnablePush default.
	PushMode bool `koanf:"push_mode"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// AsicConfig describes a per-cell Config override, applied on top of the
// mesh-wide default after NewMesh builds the grid.
type AsicConfig struct {
	// Row and Col address the cell this override applies to.
	Row int `koanf:"row"`
	Col int `koanf:"col"`

	// Timeout is the TransmitRemote dwell timer, in oscillator ticks.
	Timeout uint64 `koanf:"timeout"`

	// PTimeout is the push-mode local-flush interval, in oscillator ticks.
	PTimeout uint64 `koanf:"ptimeout"`

	// ManRoute disables dynamic learning of DirMask from ingress direction.
	ManRoute bool `koanf:"man_route"`

	// SendRemote forces the remote FIFO to drain from any state.
	SendRemote bool `koanf:"send_remote"`
}

// CellKey returns a unique identifier for the override based on (row, col).
// Used for detecting duplicate overrides in the same run configuration.
func (ac AsicConfig) CellKey() string {
	return fmt.Sprintf("%d,%d", ac.Row, ac.Col)
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults: a small
// 4x4 mesh with the DAQ node in the corner, a one-second run, and the
// reference 20Hz/channel background rate.
func DefaultConfig() *Config {
	return &Config{
		Mesh: MeshConfig{
			Rows:   4,
			Cols:   4,
			DaqRow: 0,
			DaqCol: 0,
		},
		Run: RunConfig{
			Duration:   1.0,
			Seed:       1,
			RandomRate: 20.0,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for qpixsim configuration.
// Variables are named QPIXSIM_<section>_<key>, e.g., QPIXSIM_MESH_ROWS.
const envPrefix = "QPIXSIM_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (QPIXSIM_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	QPIXSIM_MESH_ROWS      -> mesh.rows
//	QPIXSIM_MESH_COLS      -> mesh.cols
//	QPIXSIM_RUN_SEED       -> run.seed
//	QPIXSIM_RUN_DURATION_SECONDS -> run.duration_seconds
//	QPIXSIM_METRICS_ADDR   -> metrics.addr
//	QPIXSIM_LOG_LEVEL      -> log.level
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// QPIXSIM_MESH_ROWS -> mesh.rows (strip prefix, lowercase, first _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms QPIXSIM_MESH_ROWS -> mesh.rows.
// Strips the QPIXSIM_ prefix, lowercases, and replaces the first _ (the
// section separator) with . so keys like run.duration_seconds keep theirs.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"mesh.rows":          defaults.Mesh.Rows,
		"mesh.cols":          defaults.Mesh.Cols,
		"mesh.daq_row":       defaults.Mesh.DaqRow,
		"mesh.daq_col":       defaults.Mesh.DaqCol,
		"run.duration_seconds": defaults.Run.Duration,
		"run.seed":           defaults.Run.Seed,
		"run.random_rate":    defaults.Run.RandomRate,
		"run.push_mode":      defaults.Run.PushMode,
		"metrics.addr":       defaults.Metrics.Addr,
		"metrics.path":       defaults.Metrics.Path,
		"log.level":          defaults.Log.Level,
		"log.format":         defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidMeshDims indicates the mesh rows or cols is non-positive.
	ErrInvalidMeshDims = errors.New("mesh.rows and mesh.cols must be positive")

	// ErrDaqOutOfBounds indicates the configured DAQ cell falls outside
	// the mesh grid.
	ErrDaqOutOfBounds = errors.New("mesh.daq_row/daq_col must be within the mesh grid")

	// ErrInvalidDuration indicates the run duration is non-positive.
	ErrInvalidDuration = errors.New("run.duration_seconds must be > 0")

	// ErrInvalidRandomRate indicates the background hit rate is negative.
	ErrInvalidRandomRate = errors.New("run.random_rate must be >= 0")

	// ErrAsicOutOfBounds indicates an asic override addresses a cell
	// outside the mesh grid.
	ErrAsicOutOfBounds = errors.New("asics[].row/col must be within the mesh grid")

	// ErrDuplicateAsicKey indicates two asic overrides address the same cell.
	ErrDuplicateAsicKey = errors.New("duplicate asic override cell")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Mesh.Rows <= 0 || cfg.Mesh.Cols <= 0 {
		return ErrInvalidMeshDims
	}

	if cfg.Mesh.DaqRow < 0 || cfg.Mesh.DaqRow >= cfg.Mesh.Rows ||
		cfg.Mesh.DaqCol < 0 || cfg.Mesh.DaqCol >= cfg.Mesh.Cols {
		return ErrDaqOutOfBounds
	}

	if cfg.Run.Duration <= 0 {
		return ErrInvalidDuration
	}

	if cfg.Run.RandomRate < 0 {
		return ErrInvalidRandomRate
	}

	if err := validateAsics(cfg.Asics, cfg.Mesh); err != nil {
		return err
	}

	return nil
}

// validateAsics checks each per-cell override for correctness.
func validateAsics(asics []AsicConfig, mesh MeshConfig) error {
	seen := make(map[string]struct{}, len(asics))

	for i, ac := range asics {
		if ac.Row < 0 || ac.Row >= mesh.Rows || ac.Col < 0 || ac.Col >= mesh.Cols {
			return fmt.Errorf("asics[%d]: %w", i, ErrAsicOutOfBounds)
		}

		key := ac.CellKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("asics[%d] cell %q: %w", i, key, ErrDuplicateAsicKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
