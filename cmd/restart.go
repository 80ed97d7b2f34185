package cmd

import (
	"github.com/spf13/cobra"
	"go.olrik.dev/sutagent/internal/supervisor"
)

func NewRestartCommand(flags *globalFlags) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart all agents",
		Long: `Restart all agents (cold restart).

Every process whose name matches the configured process pattern is killed,
including a previous supervisor, and one agent is launched per unit in the
config dir.

Same as "sutagent --restart".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd.Context(), flags, supervisor.Options{Restart: true, Watch: watch})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "launch units added to the config dir later")

	return cmd
}
