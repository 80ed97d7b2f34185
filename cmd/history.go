package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/sutagent/internal/db"
	"go.olrik.dev/sutagent/internal/logging"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorGray  = "\033[90m"
)

func NewHistoryCommand(flags *globalFlags) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"log", "events"},
		Short:   "Show recent launch and exit events",
		Long: `Show recent supervisor runs and agent launch, launch failure and exit
events from the launch ledger, newest first.

Examples:
  sutagent history         # Last 20 events of each kind
  sutagent history -n 100  # Last 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openLedger(flags)
			if err != nil {
				return fmt.Errorf("failed to open launch ledger: %w", err)
			}
			defer database.Close()

			runs, err := database.GetRecentSupervisorEvents(limit)
			if err != nil {
				return fmt.Errorf("failed to query launch ledger: %w", err)
			}
			events, err := database.GetRecentAgentEvents(limit)
			if err != nil {
				return fmt.Errorf("failed to query launch ledger: %w", err)
			}

			color := logging.IsTerminal(os.Stdout) && cmd.OutOrStdout() == os.Stdout
			printHistory(cmd.OutOrStdout(), runs, events, color)
			return nil
		},
	}

	historyCmd.Flags().IntVarP(&limit, "number", "n", 20, "Number of events of each kind to show")

	return historyCmd
}

func printHistory(w io.Writer, runs []db.SupervisorEvent, events []db.AgentEvent, color bool) {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + colorReset
	}

	fmt.Fprintln(w, paint(colorBold, "Supervisor runs:"))
	if len(runs) == 0 {
		fmt.Fprintln(w, paint(colorGray, "  none"))
	}
	for _, e := range runs {
		fmt.Fprintf(w, "  %s  %-20s %s\n", paint(colorGray, e.Timestamp.Local().Format(time.DateTime)), e.EventType, e.Details)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, paint(colorBold, "Agent events:"))
	if len(events) == 0 {
		fmt.Fprintln(w, paint(colorGray, "  none"))
	}
	for _, e := range events {
		event := fmt.Sprintf("%-20s", e.EventType)
		switch e.EventType {
		case db.EventAgentLaunched:
			event = paint(colorGreen, event)
		case db.EventAgentLaunchFailed:
			event = paint(colorRed, event)
		}
		fmt.Fprintf(w, "  %s  %-16s %s %s\n", paint(colorGray, e.Timestamp.Local().Format(time.DateTime)), e.Identity, event, e.Details)
	}
}
