package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/shirou/gopsutil/v3/process"
)

// KillMatching sends SIGKILL to every process whose name matches re and
// returns how many were killed. The calling process is never killed, even
// when its own title matches. Processes that exit while the table is being
// walked are ignored.
func KillMatching(ctx context.Context, re *regexp.Regexp) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list processes: %w", err)
	}

	self := int32(os.Getpid())
	killed := 0
	var errs []error
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || !re.MatchString(name) {
			continue
		}

		if err := p.KillWithContext(ctx); err != nil {
			if errors.Is(err, os.ErrProcessDone) {
				continue
			}
			errs = append(errs, fmt.Errorf("failed to kill %s (pid %d): %w", name, p.Pid, err))
			continue
		}
		slog.Debug("Killed process", "name", name, "pid", p.Pid)
		killed++
	}
	return killed, errors.Join(errs...)
}
