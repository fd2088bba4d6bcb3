package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leonletto/lockrun/internal/cli"
	"github.com/leonletto/lockrun/internal/guard"
	"github.com/leonletto/lockrun/internal/runner"
)

// lockIdentity resolves "<command> <action>" or --id into an identity.
func lockIdentity(names []string, id string) (string, error) {
	switch {
	case id != "" && len(names) > 0:
		return "", errors.New("use either <command> <action> or --id, not both")
	case id != "":
		return id, nil
	case len(names) == 2:
		return guard.Identity(names[0], names[1]), nil
	}
	return "", errors.New("expected <command> <action> or --id <identity>")
}

func runCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "run <command> <action> -- <argv...>",
		Short: "Run a command unless another instance holds its lock",
		Long: `Run argv while holding the lock for <command> <action>.

If a live process already holds the lock the command is skipped and lockrun
exits with status 75. Otherwise the child's exit status is returned. The
child sees its lock identity in LOCKRUN_IDENTITY. Interrupting lockrun
interrupts the child and still releases the lock.

Status messages and --json output go to stderr; stdout belongs to the child.`,
		Example: `  lockrun run backup nightly -- rsync -a /src /dst
  lockrun run --id reindex -- ./reindex.sh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			if dash < 0 {
				return errors.New("missing -- before the command to run")
			}
			names, argv := args[:dash], args[dash:]
			if len(argv) == 0 {
				return errors.New("no command given after --")
			}

			identity, err := lockIdentity(names, id)
			if err != nil {
				return err
			}
			opts := cli.RunOptions{
				Identity: identity,
				Argv:     argv,
				Stdio:    runner.Stdio{In: os.Stdin, Out: os.Stdout, Err: os.Stderr},
			}

			s, err := openSession()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			result := cli.Run(ctx, s, opts)
			stop()

			if flagJSON {
				if err := printJSON(os.Stderr, result); err != nil {
					return err
				}
			} else if msg := cli.FormatRun(result); msg != "" && !flagQuiet {
				fmt.Fprint(os.Stderr, "lockrun: "+msg)
			}
			if result.ExitCode != 0 {
				os.Exit(result.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Lock identity to use instead of <command>-<action>")
	return cmd
}

func statusCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "status [<command> <action>]",
		Short: "Show whether a lock is held",
		Long:  `Show the state of one lock. Exits with status 1 when no live process holds it.`,
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := lockIdentity(args, id)
			if err != nil {
				return err
			}
			s, err := openSession()
			if err != nil {
				return err
			}

			result, err := cli.LockStatus(s.Guard, identity)
			if err != nil {
				return err
			}

			if flagJSON {
				if err := printJSON(os.Stdout, result); err != nil {
					return err
				}
			} else if !flagQuiet {
				fmt.Print(cli.FormatLockStatus(result))
			}
			if !result.Locked() {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Lock identity")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List locks in the lock directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			result, err := cli.ListLocks(s.Guard)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(os.Stdout, result)
			}
			fmt.Print(cli.FormatList(result))
			return nil
		},
	}
}

func unlockCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock <identity>",
		Short: "Remove a stale lock",
		Long: `Remove the lock file for <identity>. A lock whose holder is still running
is only removed with --force, which does not stop the holder.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			result, err := cli.Unlock(s.Guard, args[0], force)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(os.Stdout, result)
			}
			if !flagQuiet {
				fmt.Print(cli.FormatUnlock(result))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Remove the lock even if its holder is running")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		id    string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			result, err := cli.History(cmd.Context(), s, id, limit)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(os.Stdout, result)
			}
			fmt.Print(cli.FormatHistory(result))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Only show runs for this lock identity")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs (default 20)")
	cmd.AddCommand(historyPruneCmd())
	return cmd
}

func historyPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs, keeping the newest per lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = s.Config.HistoryKeep
			}
			result, err := cli.PruneHistory(cmd.Context(), s, keep)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(os.Stdout, result)
			}
			if !flagQuiet {
				fmt.Print(cli.FormatPrune(result))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "Runs to keep per lock (default history_keep)")
	return cmd
}

func configGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect lockrun configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration and where each value comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			result := cli.ConfigShow(cfg, overrides())
			if flagJSON {
				return printJSON(os.Stdout, result)
			}
			fmt.Print(cli.FormatConfigShow(result))
			return nil
		},
	})
	return cmd
}
