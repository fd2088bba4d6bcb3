// Package config resolves lockrun settings from defaults, a JSON config
// file, LOCKRUN_* environment variables and command-line flags, in that
// order of increasing priority.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/leonletto/lockrun/internal/guard"
	"github.com/leonletto/lockrun/internal/logging"
	"github.com/leonletto/lockrun/internal/paths"
	"github.com/leonletto/lockrun/internal/procs"
)

// DefaultHistoryKeep is the number of runs kept per identity when pruning.
const DefaultHistoryKeep = 100

// Config is the resolved lockrun configuration.
type Config struct {
	LockDir         string `json:"lock_dir"`
	Strategy        string `json:"strategy"`
	Liveness        string `json:"liveness"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`
	History         bool   `json:"history"`
	HistoryDB       string `json:"history_db"`
	HistoryKeep     int    `json:"history_keep"`
	MetricsTextfile string `json:"metrics_textfile,omitempty"`

	// Path is the config file that was read, empty if none.
	Path string `json:"-"`
}

// Overrides carries command-line flag values. Empty strings and false
// leave the lower-priority value in place.
type Overrides struct {
	LockDir   string
	Strategy  string
	Liveness  string
	LogLevel  string
	LogFormat string
	NoHistory bool
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{
		LockDir:     paths.LockDir(),
		Strategy:    string(guard.StrategyExclusive),
		Liveness:    procs.KindTable,
		LogLevel:    zerolog.WarnLevel.String(),
		LogFormat:   logging.FormatAuto,
		History:     true,
		HistoryKeep: DefaultHistoryKeep,
	}
	if dbPath, err := paths.HistoryPath(); err == nil {
		cfg.HistoryDB = dbPath
	}
	return cfg
}

// Load resolves the configuration. When configPath is empty the default
// location is used and a missing file is not an error; an explicit path
// must exist.
func Load(configPath string, flags Overrides) (*Config, error) {
	cfg := Defaults()

	explicit := configPath != ""
	if !explicit {
		if p, err := paths.ConfigPath(); err == nil {
			configPath = p
		}
	}
	if configPath != "" {
		if err := cfg.mergeFile(configPath, explicit); err != nil {
			return nil, err
		}
	}

	if err := cfg.mergeEnv(); err != nil {
		return nil, err
	}
	cfg.mergeFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile decodes the JSON file over cfg, so absent keys keep their
// current values.
func (c *Config) mergeFile(path string, mustExist bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304 - user-selected config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !mustExist {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.Path = path
	return nil
}

func (c *Config) mergeEnv() error {
	setString(&c.LockDir, "LOCKRUN_DIR")
	setString(&c.Strategy, "LOCKRUN_STRATEGY")
	setString(&c.Liveness, "LOCKRUN_LIVENESS")
	setString(&c.LogLevel, "LOCKRUN_LOG_LEVEL")
	setString(&c.LogFormat, "LOCKRUN_LOG_FORMAT")
	setString(&c.HistoryDB, "LOCKRUN_HISTORY_DB")
	setString(&c.MetricsTextfile, "LOCKRUN_METRICS_TEXTFILE")

	if v := os.Getenv("LOCKRUN_HISTORY"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOCKRUN_HISTORY %q: %w", v, err)
		}
		c.History = enabled
	}
	if v := os.Getenv("LOCKRUN_HISTORY_KEEP"); v != "" {
		keep, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LOCKRUN_HISTORY_KEEP %q: %w", v, err)
		}
		c.HistoryKeep = keep
	}
	return nil
}

func (c *Config) mergeFlags(f Overrides) {
	if f.LockDir != "" {
		c.LockDir = f.LockDir
	}
	if f.Strategy != "" {
		c.Strategy = f.Strategy
	}
	if f.Liveness != "" {
		c.Liveness = f.Liveness
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.LogFormat != "" {
		c.LogFormat = f.LogFormat
	}
	if f.NoHistory {
		c.History = false
	}
}

// Validate checks enumerated fields and required values.
func (c *Config) Validate() error {
	if c.LockDir == "" {
		return errors.New("lock_dir must not be empty")
	}
	switch guard.Strategy(c.Strategy) {
	case guard.StrategyExclusive, guard.StrategyFlock:
	default:
		return fmt.Errorf("invalid strategy %q (want %q or %q)", c.Strategy, guard.StrategyExclusive, guard.StrategyFlock)
	}
	switch c.Liveness {
	case procs.KindTable, procs.KindSignal:
	default:
		return fmt.Errorf("invalid liveness %q (want %q or %q)", c.Liveness, procs.KindTable, procs.KindSignal)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case logging.FormatAuto, logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	if c.History && c.HistoryDB == "" {
		return errors.New("history is enabled but history_db is empty")
	}
	if c.HistoryKeep < 0 {
		return fmt.Errorf("history_keep must not be negative, got %d", c.HistoryKeep)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
