package cmd

import (
	"github.com/spf13/cobra"
	"go.olrik.dev/sutagent/internal/supervisor"
)

func NewStopCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop all agents",
		Long: `Stop all agents by killing every process whose name matches the
configured process pattern (agent_main|testflinger-age by default), then exit.

Same as "sutagent --stop".`,
		Aliases: []string{"shutdown", "quit"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd.Context(), flags, supervisor.Options{Stop: true})
		},
	}
}
