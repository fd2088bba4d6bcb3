package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"

	"github.com/leonletto/lockrun/internal/cli"
	"github.com/leonletto/lockrun/internal/config"
	"github.com/leonletto/lockrun/internal/logging"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagConfig    string
	flagLockDir   string
	flagStrategy  string
	flagLiveness  string
	flagLogLevel  string
	flagLogFormat string
	flagNoHistory bool
	flagJSON      bool
	flagQuiet     bool
	flagVerbose   bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lockrun",
		Short: "Run commands with at most one live instance per lock",
		Long: `lockrun guards commands with PID lock files.

Each lock is a file "<identity>.lock" in the lock directory holding the PID
of the process that owns it. A second invocation of the same command and
action is skipped while the owner is alive; a lock left behind by a dead
process is detected and replaced.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default $XDG_CONFIG_HOME/lockrun/config.json)")
	pf.StringVar(&flagLockDir, "lock-dir", "", "Lock directory (or LOCKRUN_DIR env var)")
	pf.StringVar(&flagStrategy, "strategy", "", "Lock strategy: exclusive or flock")
	pf.StringVar(&flagLiveness, "liveness", "", "Process liveness check: table or signal")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: auto, json or console")
	pf.BoolVar(&flagNoHistory, "no-history", false, "Do not record runs in the history database")
	pf.BoolVar(&flagJSON, "json", false, "JSON output for scripting")
	pf.BoolVar(&flagQuiet, "quiet", false, "Suppress non-essential output")
	pf.BoolVar(&flagVerbose, "verbose", false, "Debug output (same as --log-level debug)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("lockrun v{{.Version}} (build: " + Build + ", " + goruntime.Version() + ")\n")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(unlockCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(configGroupCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// overrides collects the global flags that take part in config resolution.
func overrides() config.Overrides {
	level := flagLogLevel
	if level == "" && flagVerbose {
		level = "debug"
	}
	return config.Overrides{
		LockDir:   flagLockDir,
		Strategy:  flagStrategy,
		Liveness:  flagLiveness,
		LogLevel:  level,
		LogFormat: flagLogFormat,
		NoHistory: flagNoHistory,
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig, overrides())
}

func openSession() (*cli.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, err
	}
	return cli.NewSession(cfg, log)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show lockrun version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagJSON {
				return printJSON(os.Stdout, map[string]string{
					"version":    Version,
					"build":      Build,
					"go_version": goruntime.Version(),
				})
			}
			fmt.Printf("lockrun v%s (build: %s, %s)\n", Version, Build, goruntime.Version())
			return nil
		},
	}
}
