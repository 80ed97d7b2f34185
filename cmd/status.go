package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"
	"go.olrik.dev/sutagent/internal/db"
)

// AgentStatus is one agent as last recorded in the ledger
type AgentStatus struct {
	Identity string    `json:"identity"`
	State    string    `json:"state"`
	Pid      int       `json:"pid,omitempty"`
	Details  string    `json:"details,omitempty"`
	Since    time.Time `json:"since"`
}

func NewStatusCommand(flags *globalFlags) *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Shows the last recorded state of every agent",
		Long: `Shows the last recorded state of every agent from the launch ledger.

An agent whose last event is a launch is reported as running only while its
pid still exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openLedger(flags)
			if err != nil {
				return fmt.Errorf("failed to open launch ledger: %w", err)
			}
			defer database.Close()

			events, err := database.GetLastAgentEventPerIdentity()
			if err != nil {
				return fmt.Errorf("failed to query launch ledger: %w", err)
			}

			statuses := make([]AgentStatus, 0, len(events))
			for _, e := range events {
				statuses = append(statuses, agentStatus(e, process.PidExists))
			}

			format, _ := cmd.Flags().GetString("format")
			return writeStatuses(cmd.OutOrStdout(), statuses, format)
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}

func agentStatus(e db.AgentEvent, alive func(int32) (bool, error)) AgentStatus {
	status := AgentStatus{
		Identity: e.Identity,
		Details:  e.Details,
		Since:    e.Timestamp,
	}
	status.Pid, _ = detailInt(e.Details, "pid")

	switch e.EventType {
	case db.EventAgentLaunched:
		status.State = "running"
		if ok, err := alive(int32(status.Pid)); status.Pid == 0 || err != nil || !ok {
			status.State = "gone"
		}
	case db.EventAgentLaunchFailed:
		status.State = "failed"
	case db.EventAgentExited:
		status.State = "exited"
	default:
		status.State = e.EventType
	}
	return status
}

// detailInt reads key=<int> from a space separated details string
func detailInt(details, key string) (int, bool) {
	for _, field := range strings.Fields(details) {
		k, v, ok := strings.Cut(field, "=")
		if !ok || k != key {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func writeStatuses(w io.Writer, statuses []AgentStatus, format string) error {
	switch format {
	case "text":
		if len(statuses) == 0 {
			fmt.Fprintln(w, "No agents recorded.")
			return nil
		}
		fmt.Fprintln(w, "Agents:")
		for _, s := range statuses {
			line := fmt.Sprintf("  - %s: %s", s.Identity, s.State)
			if s.Pid != 0 {
				line += fmt.Sprintf(" (PID: %d", s.Pid)
				if s.State == "running" {
					line += fmt.Sprintf(", Age: %s", time.Since(s.Since).Round(time.Second))
				}
				line += ")"
			}
			if s.State == "failed" {
				line += " " + s.Details
			}
			fmt.Fprintln(w, line)
		}
		return nil
	case "json":
		jsonBytes, err := json.Marshal(statuses)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(jsonBytes))
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
