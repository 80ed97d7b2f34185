package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch launches units that are created in the config dir after the initial
// launch phase. A new file is launched once it has been quiet for the settle
// delay, so an editor still writing it is not raced. Removing a file does not
// stop its agent. Watch returns when ctx is cancelled.
func (s *Supervisor) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.cfg.ConfigDir); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	slog.Info("Watching for new configuration units", "dir", s.cfg.ConfigDir)

	pending := newSettleQueue(s.settle)
	defer pending.stopAll()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config dir watch error", "error", err)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if !isUnitName(name) {
				continue
			}
			slog.Debug("Filesystem event in config dir", "event", event.Op.String(), "file", name)

			switch {
			case event.Has(fsnotify.Create):
				pending.schedule(ctx, name)
			case event.Has(fsnotify.Write):
				// Writes to a file we are waiting on push the launch back
				if pending.has(name) {
					pending.schedule(ctx, name)
				}
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				pending.cancel(name)
			}

		case u := <-pending.ready:
			if !pending.take(u) {
				continue
			}
			info, err := os.Stat(filepath.Join(s.cfg.ConfigDir, u.name))
			if err != nil || info.IsDir() {
				continue
			}
			id, err := s.launchOne(ctx, u.name, slog.Default())
			if err == nil {
				slog.Info("Launched new agent", "agent", id)
			}
		}
	}
}

// settledUnit is sent once a unit has been quiet for the settle delay
type settledUnit struct {
	name string
	gen  uint64
}

// settleQueue debounces unit files. Every (re)schedule bumps a generation,
// so a timer that fired before being superseded is ignored by take.
type settleQueue struct {
	delay   time.Duration
	ready   chan settledUnit
	next    uint64
	pending map[string]settledTimer
}

type settledTimer struct {
	timer *time.Timer
	gen   uint64
}

func newSettleQueue(delay time.Duration) *settleQueue {
	return &settleQueue{
		delay:   delay,
		ready:   make(chan settledUnit),
		pending: make(map[string]settledTimer),
	}
}

func (q *settleQueue) schedule(ctx context.Context, name string) {
	q.cancel(name)
	q.next++
	u := settledUnit{name: name, gen: q.next}
	t := time.AfterFunc(q.delay, func() {
		select {
		case q.ready <- u:
		case <-ctx.Done():
		}
	})
	q.pending[name] = settledTimer{timer: t, gen: u.gen}
}

func (q *settleQueue) has(name string) bool {
	_, ok := q.pending[name]
	return ok
}

func (q *settleQueue) cancel(name string) {
	if p, ok := q.pending[name]; ok {
		p.timer.Stop()
		delete(q.pending, name)
	}
}

// take reports whether u is the current schedule for its unit and, if so,
// forgets it
func (q *settleQueue) take(u settledUnit) bool {
	p, ok := q.pending[u.name]
	if !ok || p.gen != u.gen {
		return false
	}
	delete(q.pending, u.name)
	return true
}

func (q *settleQueue) stopAll() {
	for name := range q.pending {
		q.cancel(name)
	}
}
