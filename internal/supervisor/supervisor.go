package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"go.olrik.dev/sutagent/internal/agent"
	"go.olrik.dev/sutagent/internal/core"
	"go.olrik.dev/sutagent/internal/db"
)

const (
	bannerOpen  = "\n========================="
	bannerClose = "=====================\n"
)

// ErrAlreadyRunning is returned when a unit's identity is still running in
// this supervisor
var ErrAlreadyRunning = errors.New("agent already running")

// Ledger records lifecycle events. *db.DB satisfies it.
type Ledger interface {
	LogAgentEvent(identity, eventType, details string) error
	LogSupervisorEvent(eventType, details string) error
}

type nopLedger struct{}

func (nopLedger) LogAgentEvent(string, string, string) error { return nil }
func (nopLedger) LogSupervisorEvent(string, string) error    { return nil }

// Options selects what a Run does besides launching
type Options struct {
	Restart bool // kill matching processes, then launch
	Stop    bool // kill matching processes and launch nothing
	Watch   bool // keep launching units that appear later
}

// Supervisor launches one agent per configuration unit
type Supervisor struct {
	cfg      *core.Configuration
	ledger   Ledger
	console  io.Writer
	launcher *agent.Launcher

	mu     sync.Mutex
	active map[agent.Identity]int

	// replaced in tests
	kill   func(context.Context, *regexp.Regexp) (int, error)
	settle time.Duration
}

// New creates a supervisor. ledger may be nil. level is the console
// threshold for agent output.
func New(cfg *core.Configuration, ledger Ledger, console io.Writer, level slog.Leveler) *Supervisor {
	if ledger == nil {
		ledger = nopLedger{}
	}
	s := &Supervisor{
		cfg:     cfg,
		ledger:  ledger,
		console: console,
		active:  make(map[agent.Identity]int),
		kill:    KillMatching,
		settle:  500 * time.Millisecond,
	}
	s.launcher = agent.NewLauncher(agent.LauncherConfig{
		WorkDir:    cfg.WorkDir,
		ConfigDir:  cfg.ConfigDir,
		Executable: cfg.Executable,
		UID:        cfg.User.UID,
		GID:        cfg.User.GID,
		Reader: agent.ReaderOptions{
			Logger: agent.LoggerOptions{
				LogDir:       cfg.LogDir,
				ConsoleLevel: level,
				Console:      console,
				MaxBytes:     cfg.LogRotation.MaxBytes,
				Backups:      cfg.LogRotation.Backups,
			},
			Probe:             agent.NewHealthProbe(cfg.Heartbeat.URL, cfg.Heartbeat.Timeout),
			HeartbeatInterval: cfg.Heartbeat.Interval,
			GracePeriod:       cfg.Heartbeat.GracePeriod,
		},
		OnExit: s.agentExited,
	})
	return s
}

// Run performs one supervisor invocation. With Stop or Restart set, matching
// processes are killed first and Stop returns right after. Otherwise every
// unit is launched and Run blocks until every agent's stream has ended.
// Cancelling ctx stops the heartbeats and the watcher, but output is still
// drained so agents never write into a closed pipe.
func (s *Supervisor) Run(ctx context.Context, opts Options) error {
	if opts.Restart || opts.Stop {
		if err := s.killAgents(ctx); err != nil {
			slog.Warn("Some agents could not be killed", "error", err)
		}
		if opts.Stop {
			s.logSupervisor(db.EventSupervisorStop, "")
			return nil
		}
	}

	units, err := Discover(s.cfg.ConfigDir)
	if err != nil {
		return err
	}

	event := db.EventSupervisorStart
	if opts.Restart {
		event = db.EventSupervisorRestart
	}
	s.logSupervisor(event, fmt.Sprintf("units=%d", len(units)))

	if err := s.LaunchAll(ctx, units); err != nil {
		return err
	}

	if opts.Watch {
		if err := s.Watch(ctx); err != nil {
			return err
		}
	}

	s.wait(ctx)
	return nil
}

func (s *Supervisor) killAgents(ctx context.Context) error {
	re, err := s.cfg.ProcessMatcher()
	if err != nil {
		return err
	}
	n, err := s.kill(ctx, re)
	slog.Info("Killed running agents", "count", n, "pattern", s.cfg.ProcessPattern)
	s.logSupervisor(db.EventSupervisorKill, fmt.Sprintf("killed=%d", n))
	return err
}

// LaunchAll launches units in order inside one root log scope. A failed
// launch is recorded and the remaining units are still launched.
func (s *Supervisor) LaunchAll(ctx context.Context, units []string) error {
	root, err := OpenRootLog(s.cfg.RootLogPath(), s.console)
	if err != nil {
		return err
	}
	defer root.Close()

	root.Banner(bannerOpen)
	root.Banner("Loading SUT Agent(s):")
	for _, unit := range units {
		s.launchOne(ctx, unit, root.Logger())
	}
	root.Banner(bannerClose)
	return nil
}

func (s *Supervisor) launchOne(ctx context.Context, unit string, log *slog.Logger) (agent.Identity, error) {
	id := agent.IdentityFromUnit(unit)
	if !s.claim(id) {
		log.Warn("  - Agent already running: " + string(id))
		return id, ErrAlreadyRunning
	}

	_, pid, err := s.launcher.Launch(ctx, unit)
	if err != nil {
		s.release(id)
		log.Error("  - Unable to start agent for: "+string(id), "error", err)
		s.logAgent(id, db.EventAgentLaunchFailed, err.Error())
		return id, err
	}

	s.mu.Lock()
	if _, ok := s.active[id]; ok {
		s.active[id] = pid
	}
	s.mu.Unlock()

	log.Debug("  * " + string(id))
	s.logAgent(id, db.EventAgentLaunched, fmt.Sprintf("pid=%d", pid))
	return id, nil
}

func (s *Supervisor) agentExited(id agent.Identity, pid, exitCode int, err error) {
	s.release(id)

	details := fmt.Sprintf("pid=%d exit_code=%d", pid, exitCode)
	if err != nil {
		details += " error=" + err.Error()
	}
	slog.Info("Agent exited", "agent", id, "pid", pid, "exit_code", exitCode)
	s.logAgent(id, db.EventAgentExited, details)
}

func (s *Supervisor) claim(id agent.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; ok {
		return false
	}
	s.active[id] = 0
	return true
}

func (s *Supervisor) release(id agent.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// Active returns the identities currently running, with their pids
func (s *Supervisor) Active() map[agent.Identity]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[agent.Identity]int, len(s.active))
	for id, pid := range s.active {
		out[id] = pid
	}
	return out
}

// Wait blocks until every launched agent's stream has ended
func (s *Supervisor) Wait() {
	s.launcher.Wait()
}

func (s *Supervisor) wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.launcher.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-ctx.Done():
	}
	if len(s.Active()) > 0 {
		slog.Info("Heartbeats stopped, draining agent output until the agents exit")
	}
	<-done
}

func (s *Supervisor) logAgent(id agent.Identity, event, details string) {
	if err := s.ledger.LogAgentEvent(string(id), event, details); err != nil {
		slog.Debug("Failed to record agent event", "agent", id, "event", event, "error", err)
	}
}

func (s *Supervisor) logSupervisor(event, details string) {
	if err := s.ledger.LogSupervisorEvent(event, details); err != nil {
		slog.Debug("Failed to record supervisor event", "event", event, "error", err)
	}
}
