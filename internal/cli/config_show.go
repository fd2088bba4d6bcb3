package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/leonletto/lockrun/internal/config"
)

// Value sources reported by config show.
const (
	SourceDefault = "default"
	SourceFile    = "config file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// ConfigValue pairs a value with its source.
type ConfigValue struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

// ConfigShowResult contains the resolved effective configuration.
type ConfigShowResult struct {
	ConfigFile string `json:"config_file,omitempty"`

	LockDir         ConfigValue `json:"lock_dir"`
	Strategy        ConfigValue `json:"strategy"`
	Liveness        ConfigValue `json:"liveness"`
	LogLevel        ConfigValue `json:"log_level"`
	LogFormat       ConfigValue `json:"log_format"`
	History         ConfigValue `json:"history"`
	HistoryDB       ConfigValue `json:"history_db"`
	HistoryKeep     ConfigValue `json:"history_keep"`
	MetricsTextfile ConfigValue `json:"metrics_textfile"`

	// Overrides lists active environment variable overrides.
	Overrides []ConfigOverride `json:"overrides,omitempty"`
}

// ConfigOverride describes an active environment variable override.
type ConfigOverride struct {
	EnvVar string `json:"env_var"`
	Value  string `json:"value"`
}

var configEnvVars = []string{
	"LOCKRUN_DIR",
	"LOCKRUN_STRATEGY",
	"LOCKRUN_LIVENESS",
	"LOCKRUN_LOG_LEVEL",
	"LOCKRUN_LOG_FORMAT",
	"LOCKRUN_HISTORY",
	"LOCKRUN_HISTORY_DB",
	"LOCKRUN_HISTORY_KEEP",
	"LOCKRUN_METRICS_TEXTFILE",
}

// ConfigShow reports cfg with the source of each value. A value that
// differs from the default and was not set by flag or env came from the
// config file.
func ConfigShow(cfg *config.Config, flags config.Overrides) *ConfigShowResult {
	def := config.Defaults()
	src := func(flagSet bool, env, value, defValue string) ConfigValue {
		switch {
		case flagSet:
			return ConfigValue{Value: value, Source: SourceFlag}
		case env != "" && os.Getenv(env) != "":
			return ConfigValue{Value: value, Source: SourceEnv}
		case cfg.Path != "" && value != defValue:
			return ConfigValue{Value: value, Source: SourceFile}
		}
		return ConfigValue{Value: value, Source: SourceDefault}
	}

	result := &ConfigShowResult{
		ConfigFile:      cfg.Path,
		LockDir:         src(flags.LockDir != "", "LOCKRUN_DIR", cfg.LockDir, def.LockDir),
		Strategy:        src(flags.Strategy != "", "LOCKRUN_STRATEGY", cfg.Strategy, def.Strategy),
		Liveness:        src(flags.Liveness != "", "LOCKRUN_LIVENESS", cfg.Liveness, def.Liveness),
		LogLevel:        src(flags.LogLevel != "", "LOCKRUN_LOG_LEVEL", cfg.LogLevel, def.LogLevel),
		LogFormat:       src(flags.LogFormat != "", "LOCKRUN_LOG_FORMAT", cfg.LogFormat, def.LogFormat),
		History:         src(flags.NoHistory, "LOCKRUN_HISTORY", strconv.FormatBool(cfg.History), strconv.FormatBool(def.History)),
		HistoryDB:       src(false, "LOCKRUN_HISTORY_DB", cfg.HistoryDB, def.HistoryDB),
		HistoryKeep:     src(false, "LOCKRUN_HISTORY_KEEP", strconv.Itoa(cfg.HistoryKeep), strconv.Itoa(def.HistoryKeep)),
		MetricsTextfile: src(false, "LOCKRUN_METRICS_TEXTFILE", cfg.MetricsTextfile, def.MetricsTextfile),
	}

	for _, env := range configEnvVars {
		if v := os.Getenv(env); v != "" {
			result.Overrides = append(result.Overrides, ConfigOverride{EnvVar: env, Value: v})
		}
	}
	return result
}

// FormatConfigShow formats the config show result for human-readable display.
func FormatConfigShow(result *ConfigShowResult) string {
	var b strings.Builder

	b.WriteString("lockrun configuration\n")
	if result.ConfigFile != "" {
		fmt.Fprintf(&b, "  Config file: %s\n", result.ConfigFile)
	} else {
		b.WriteString("  Config file: (none)\n")
	}

	line := func(name string, v ConfigValue) {
		value := v.Value
		if value == "" {
			value = "(unset)"
		}
		fmt.Fprintf(&b, "  %-17s%s (%s)\n", name+":", value, v.Source)
	}

	b.WriteString("\nLocks\n")
	line("Directory", result.LockDir)
	line("Strategy", result.Strategy)
	line("Liveness", result.Liveness)

	b.WriteString("\nLogging\n")
	line("Level", result.LogLevel)
	line("Format", result.LogFormat)

	b.WriteString("\nHistory\n")
	line("Enabled", result.History)
	line("Database", result.HistoryDB)
	line("Keep", result.HistoryKeep)

	b.WriteString("\nMetrics\n")
	line("Textfile", result.MetricsTextfile)

	if len(result.Overrides) > 0 {
		b.WriteString("\nOverrides (environment)\n")
		for _, o := range result.Overrides {
			fmt.Fprintf(&b, "  %s=%s\n", o.EnvVar, o.Value)
		}
	}

	return b.String()
}
