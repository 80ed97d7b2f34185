package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// DefaultExecutable is the agent binary started for every configuration unit
const DefaultExecutable = "testflinger-agent"

// LaunchError reports that the OS refused to start an agent
type LaunchError struct {
	Identity Identity
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("unable to start agent for %s: %v", e.Identity, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExitFunc is told when an agent's stream has ended and its process has
// been reaped. exitCode is -1 when the process did not exit normally.
type ExitFunc func(id Identity, pid int, exitCode int, err error)

// LauncherConfig holds everything that is the same for every agent
type LauncherConfig struct {
	WorkDir    string
	ConfigDir  string
	Executable string
	UID        int
	GID        int
	Reader     ReaderOptions
	OnExit     ExitFunc
}

// Launcher starts agents as detached, demoted processes and hands each one's
// combined output to its own PipeReader goroutine. It does not keep process
// handles; Wait only blocks until every reader has finished.
type Launcher struct {
	cfg LauncherConfig
	wg  sync.WaitGroup
}

// NewLauncher creates a launcher
func NewLauncher(cfg LauncherConfig) *Launcher {
	if cfg.Executable == "" {
		cfg.Executable = DefaultExecutable
	}
	return &Launcher{cfg: cfg}
}

// Command builds the agent command line for a configuration unit
func (l *Launcher) Command(unit string) *exec.Cmd {
	confPath := filepath.Join(l.cfg.ConfigDir, unit)
	cmd := exec.Command(l.cfg.Executable, "-c", confPath)
	cmd.Dir = l.cfg.WorkDir
	cmd.SysProcAttr = detachedAs(l.cfg.UID, l.cfg.GID)
	return cmd
}

// Launch starts the agent for unit and returns its identity and pid.
// On failure the error is a *LaunchError and no reader is started.
func (l *Launcher) Launch(ctx context.Context, unit string) (Identity, int, error) {
	id := IdentityFromUnit(unit)
	cmd := l.Command(unit)

	pr, pw, err := os.Pipe()
	if err != nil {
		return id, 0, &LaunchError{Identity: id, Err: err}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return id, 0, &LaunchError{Identity: id, Err: err}
	}
	// The child holds its own copy; ours must go so EOF arrives when it exits.
	pw.Close()

	pid := cmd.Process.Pid
	reader := NewPipeReader(id, pr, l.cfg.Reader)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		if err := reader.Run(ctx); err != nil {
			slog.Warn("Agent reader stopped", "agent", id, "error", err)
		}
		pr.Close()

		waitErr := cmd.Wait()
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			waitErr = nil
		}
		if l.cfg.OnExit != nil {
			l.cfg.OnExit(id, pid, code, waitErr)
		}
	}()

	return id, pid, nil
}

// Wait blocks until every launched agent's stream has ended
func (l *Launcher) Wait() {
	l.wg.Wait()
}
