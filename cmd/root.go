package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.olrik.dev/sutagent/internal/core"
	"go.olrik.dev/sutagent/internal/db"
	"go.olrik.dev/sutagent/internal/logging"
	"go.olrik.dev/sutagent/internal/supervisor"
)

// globalFlags are shared by every command
type globalFlags struct {
	configPath string
	debug      bool
}

func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	var opts supervisor.Options

	rootCmd := &cobra.Command{
		Use:   "sutagent",
		Short: "Start one testflinger agent per SUT configuration unit",
		Long: `Start one testflinger agent per SUT configuration unit.

Every file in the config dir is a unit. Each agent runs detached in its own
session as the configured unprivileged user; its combined output is written to
<log_dir>/<unit name> and checked in on by a periodic health probe.

With --restart, running agents are killed before launching. With --stop, they
are killed and nothing is launched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logging.LevelFromVerbosity(flags.debug))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd.Context(), flags, opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", core.DefaultConfigFile, "config file")
	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "debug/verbose output")
	rootCmd.Flags().BoolVarP(&opts.Restart, "restart", "r", false, "restart all agents")
	rootCmd.Flags().BoolVarP(&opts.Stop, "stop", "s", false, "stop all agents")
	rootCmd.Flags().BoolVar(&opts.Watch, "watch", false, "launch units added to the config dir later")

	rootCmd.AddCommand(
		NewStopCommand(flags),
		NewRestartCommand(flags),
		NewStatusCommand(flags),
		NewHistoryCommand(flags),
		NewVersionCommand(),
	)

	return rootCmd
}

// runSupervisor performs one supervisor invocation until every agent's
// output has ended
func runSupervisor(ctx context.Context, flags *globalFlags, opts supervisor.Options) error {
	cfg, err := core.LoadConfigOrDefault(flags.configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	// The first signal stops heartbeats; a second one gets the default action
	context.AfterFunc(ctx, stop)

	var ledger supervisor.Ledger
	database, err := db.Open(cfg.LedgerPath)
	if err != nil {
		slog.Warn("Launch ledger unavailable, continuing without it", "path", cfg.LedgerPath, "error", err)
	} else {
		defer database.Close()
		ledger = database
	}

	s := supervisor.New(cfg, ledger, os.Stdout, logging.LevelFromVerbosity(flags.debug))
	return s.Run(ctx, opts)
}

// openLedger opens the ledger named by the loaded configuration
func openLedger(flags *globalFlags) (*db.DB, error) {
	cfg, err := core.LoadConfigOrDefault(flags.configPath)
	if err != nil {
		return nil, err
	}
	return db.Open(cfg.LedgerPath)
}
