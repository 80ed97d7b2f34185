package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"go.olrik.dev/sutagent/internal/logging"
)

// RootLog records the launch phase to the console and to the init_agents
// file. It is opened before the first launch and closed after the last one;
// once closed its logger drops every record.
type RootLog struct {
	logger  *slog.Logger
	console io.Writer
	file    *os.File
	closed  *atomic.Bool
}

// OpenRootLog truncates path and returns a root log writing to it and to console
func OpenRootLog(path string, console io.Writer) (*RootLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open root log: %w", err)
	}

	fileHandler := tint.NewHandler(file, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.DateTime,
		NoColor:    true,
	})
	closed := &atomic.Bool{}
	handler := &scopedHandler{
		next:   logging.NewFanOut(logging.NewConsoleHandler(console, slog.LevelDebug), fileHandler),
		closed: closed,
	}

	return &RootLog{
		logger:  slog.New(handler),
		console: console,
		file:    file,
		closed:  closed,
	}, nil
}

// Logger returns the launch-phase logger
func (r *RootLog) Logger() *slog.Logger {
	return r.logger
}

// Banner prints a plain separator line to the console only
func (r *RootLog) Banner(text string) {
	if r.closed.Load() {
		return
	}
	fmt.Fprintln(r.console, text)
}

// Close detaches the handlers and closes the file. It is safe to call twice.
func (r *RootLog) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.file.Close()
}

// scopedHandler forwards records until the scope it belongs to is closed
type scopedHandler struct {
	next   slog.Handler
	closed *atomic.Bool
}

func (h *scopedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return !h.closed.Load() && h.next.Enabled(ctx, level)
}

func (h *scopedHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.closed.Load() {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *scopedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &scopedHandler{next: h.next.WithAttrs(attrs), closed: h.closed}
}

func (h *scopedHandler) WithGroup(name string) slog.Handler {
	return &scopedHandler{next: h.next.WithGroup(name), closed: h.closed}
}
