package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fieldsense/lux.report/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and runtime inspection.
type TuningConfig struct {
	// Feed params
	FeedSource    *string `json:"feed_source,omitempty"` // "serial", "udp", or "none"
	SerialDevice  *string `json:"serial_device,omitempty"`
	SerialBaud    *int    `json:"serial_baud,omitempty"`
	UDPListenAddr *string `json:"udp_listen_addr,omitempty"`

	// Engine params
	EstimateInterval *string `json:"estimate_interval,omitempty"` // duration string like "1s"
	FlushDisable     *bool   `json:"flush_disable,omitempty"`

	// Storage params
	DBPath         *string `json:"db_path,omitempty"`
	RollupInterval *string `json:"rollup_interval,omitempty"` // duration string like "60s"

	// Display params
	Units         *string `json:"units,omitempty"`
	PlotOutputDir *string `json:"plot_output_dir,omitempty"`
}

// Helper functions to create pointers
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// default value. The defaults here must stay in sync with the Get* methods
// and with config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		FeedSource:       ptrString("serial"),
		SerialDevice:     ptrString("/dev/ttyUSB0"),
		SerialBaud:       ptrInt(9600),
		UDPListenAddr:    ptrString(":8089"),
		EstimateInterval: ptrString("1s"),
		FlushDisable:     ptrBool(false),
		DBPath:           ptrString("lux.db"),
		RollupInterval:   ptrString("60s"),
		Units:            ptrString(units.LUX),
		PlotOutputDir:    ptrString("plots"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/tools/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	// Validate FeedSource if set
	if c.FeedSource != nil {
		switch *c.FeedSource {
		case "serial", "udp", "none":
		default:
			return fmt.Errorf("feed_source must be serial, udp, or none, got %q", *c.FeedSource)
		}
	}

	// Validate SerialBaud if set
	if c.SerialBaud != nil {
		if *c.SerialBaud <= 0 {
			return fmt.Errorf("serial_baud must be positive, got %d", *c.SerialBaud)
		}
	}

	// Validate EstimateInterval can be parsed if set
	if c.EstimateInterval != nil && *c.EstimateInterval != "" {
		if _, err := time.ParseDuration(*c.EstimateInterval); err != nil {
			return fmt.Errorf("invalid estimate_interval '%s': %w", *c.EstimateInterval, err)
		}
	}

	// Validate RollupInterval can be parsed if set
	if c.RollupInterval != nil && *c.RollupInterval != "" {
		if _, err := time.ParseDuration(*c.RollupInterval); err != nil {
			return fmt.Errorf("invalid rollup_interval '%s': %w", *c.RollupInterval, err)
		}
	}

	// Validate Units if set
	if c.Units != nil && *c.Units != "" {
		if !units.IsValid(*c.Units) {
			return fmt.Errorf("units must be one of %s, got %q", units.GetValidUnitsString(), *c.Units)
		}
	}

	return nil
}

// GetFeedSource returns the feed_source value or the default.
func (c *TuningConfig) GetFeedSource() string {
	if c.FeedSource == nil || *c.FeedSource == "" {
		return "serial" // default
	}
	return *c.FeedSource
}

// GetSerialDevice returns the serial_device value or the default.
func (c *TuningConfig) GetSerialDevice() string {
	if c.SerialDevice == nil || *c.SerialDevice == "" {
		return "/dev/ttyUSB0" // default
	}
	return *c.SerialDevice
}

// GetSerialBaud returns the serial_baud value or the default.
func (c *TuningConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 9600 // default
	}
	return *c.SerialBaud
}

// GetUDPListenAddr returns the udp_listen_addr value or the default.
func (c *TuningConfig) GetUDPListenAddr() string {
	if c.UDPListenAddr == nil || *c.UDPListenAddr == "" {
		return ":8089" // default
	}
	return *c.UDPListenAddr
}

// GetEstimateInterval parses and returns the EstimateInterval as a time.Duration.
func (c *TuningConfig) GetEstimateInterval() time.Duration {
	if c.EstimateInterval == nil || *c.EstimateInterval == "" {
		return 1 * time.Second // default
	}
	d, err := time.ParseDuration(*c.EstimateInterval)
	if err != nil {
		return 1 * time.Second // default on parse error
	}
	return d
}

// GetFlushDisable returns the flush_disable value or the default.
func (c *TuningConfig) GetFlushDisable() bool {
	if c.FlushDisable == nil {
		return false // default: periodic estimate flushing enabled
	}
	return *c.FlushDisable
}

// GetDBPath returns the db_path value or the default.
func (c *TuningConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "lux.db" // default
	}
	return *c.DBPath
}

// GetRollupInterval parses and returns the RollupInterval as a time.Duration.
func (c *TuningConfig) GetRollupInterval() time.Duration {
	if c.RollupInterval == nil || *c.RollupInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.RollupInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetUnits returns the units value or the default.
func (c *TuningConfig) GetUnits() string {
	if c.Units == nil || *c.Units == "" {
		return units.LUX // default
	}
	return *c.Units
}

// GetPlotOutputDir returns the plot_output_dir value or the default.
func (c *TuningConfig) GetPlotOutputDir() string {
	if c.PlotOutputDir == nil || *c.PlotOutputDir == "" {
		return "plots" // default
	}
	return *c.PlotOutputDir
}
