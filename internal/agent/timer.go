package agent

import (
	"sync"
	"sync/atomic"
	"time"
)

// RepeatingTimer calls fn once per interval, starting one interval after
// Start, until Stop is called. Callbacks run on the timer's own goroutine;
// a slow callback delays the next firing, it never overlaps it.
type RepeatingTimer struct {
	interval time.Duration
	fn       func()

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

// NewRepeatingTimer creates a stopped timer
func NewRepeatingTimer(interval time.Duration, fn func()) *RepeatingTimer {
	return &RepeatingTimer{
		interval: interval,
		fn:       fn,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins firing. Calling Start more than once has no effect, and a
// timer with a non-positive interval never fires.
func (t *RepeatingTimer) Start() {
	if t.interval <= 0 {
		return
	}
	t.startOnce.Do(func() {
		t.started.Store(true)
		go t.run()
	})
}

func (t *RepeatingTimer) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			// A stop that raced the tick wins.
			select {
			case <-t.stop:
				return
			default:
			}
			t.fn()
		}
	}
}

// Stop cancels the timer and waits for an in-flight callback to return.
// It is safe to call from multiple goroutines and more than once.
func (t *RepeatingTimer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	if t.started.Load() {
		<-t.done
	}
}
