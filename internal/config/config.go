package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/xychain/xy-e2e/internal/report"
	"github.com/xychain/xy-e2e/internal/scheduler"
	"github.com/xychain/xy-e2e/internal/ss58"
	"github.com/xychain/xy-e2e/internal/xychain"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "xy-e2e.toml"

// EnvPrefix starts every environment override.
const EnvPrefix = "XY_E2E_"

// Config holds all xy-e2e configuration
type Config struct {
	// Node connection
	Node xychain.Config `toml:"node"`

	// Scenario run options
	Run RunConfig `toml:"run"`

	// SQLite run history
	History HistoryConfig `toml:"history"`

	// Soak schedule
	Soak SoakConfig `toml:"soak"`

	// Run summaries are published here when Broker is set
	MQTT report.MQTTConfig `toml:"mqtt"`

	Log LogConfig `toml:"log"`
}

type RunConfig struct {
	Scenarios []string `toml:"scenarios"` // empty runs all
	Parallel  bool     `toml:"parallel"`
	OutputDir string   `toml:"output_dir"` // where downloads land, default os.TempDir()
	ImagePath string   `toml:"image"`      // uploaded by nft-download, default the bundled PNG
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type SoakConfig struct {
	scheduler.Schedule
	MaxRuns   int64 `toml:"max_runs"`
	Immediate bool  `toml:"immediate"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// DefaultConfig returns a configuration for a local dev node.
func DefaultConfig() *Config {
	return &Config{
		Node: xychain.DefaultConfig(),
		History: HistoryConfig{
			Enabled: true,
			Path:    "./data/xy-e2e.db",
		},
		Soak: SoakConfig{
			Schedule:  scheduler.Schedule{Kind: "interval", Interval: 30 * time.Minute},
			Immediate: true,
		},
		MQTT: report.MQTTConfig{
			Port:  1883,
			Topic: report.DefaultTopic,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config from a TOML file over the defaults, then applies
// environment overrides. An empty path uses DefaultFile if it exists.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse config: unknown keys %v", undecoded)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from XY_E2E_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
		return nil
	}

	str("ENDPOINT", &c.Node.Endpoint)
	str("IMAGE", &c.Run.ImagePath)
	str("OUTPUT_DIR", &c.Run.OutputDir)
	str("HISTORY", &c.History.Path)
	str("MQTT_BROKER", &c.MQTT.Broker)
	str("MQTT_USERNAME", &c.MQTT.Username)
	str("MQTT_PASSWORD", &c.MQTT.Password)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "SS58_PREFIX"); ok {
		p, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("%sSS58_PREFIX: %w", EnvPrefix, err)
		}
		c.Node.SS58Prefix = uint16(p)
	}
	if v, ok := lookup(EnvPrefix + "PARALLEL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sPARALLEL: %w", EnvPrefix, err)
		}
		c.Run.Parallel = b
	}
	if err := dur("CALL_TIMEOUT", &c.Node.CallTimeout); err != nil {
		return err
	}
	return dur("INCLUSION_TIMEOUT", &c.Node.InclusionTimeout)
}

// Validate rejects values the harness cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Node.Endpoint)
	if err != nil {
		return fmt.Errorf("node.endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("node.endpoint: scheme must be ws or wss, got %q", c.Node.Endpoint)
	}
	if c.Node.SS58Prefix > ss58.MaxPrefix {
		return fmt.Errorf("node.ss58_prefix: %d exceeds %d", c.Node.SS58Prefix, ss58.MaxPrefix)
	}
	if c.Node.DialTimeout <= 0 || c.Node.CallTimeout <= 0 || c.Node.InclusionTimeout <= 0 {
		return fmt.Errorf("node timeouts must be positive")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path required when history is enabled")
	}
	if err := c.Soak.Validate(); err != nil {
		return fmt.Errorf("soak: %w", err)
	}
	if c.Soak.MaxRuns < 0 {
		return fmt.Errorf("soak.max_runs must not be negative")
	}
	if c.MQTT.Broker != "" && (c.MQTT.Port <= 0 || c.MQTT.Port > 65535) {
		return fmt.Errorf("mqtt.port out of range: %d", c.MQTT.Port)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: use text or json, got %q", c.Log.Format)
	}
	return nil
}

// Save writes config to a TOML file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}
