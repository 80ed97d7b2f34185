// Package logging holds the slog handlers shared by the supervisor's root log
// and the per-agent loggers.
//
// Console output is rendered with tint. Transcript output is the bare message
// with no decoration, one record per line, so agent log files read exactly
// like the agent's own output.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// NewConsoleHandler returns a tint handler writing to w at the given level.
// Colour is only used when w is a terminal.
func NewConsoleHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !IsTerminal(w),
	})
}

// IsTerminal reports whether w is a file attached to a terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Setup installs a tint console handler on stderr as the default slog logger.
func Setup(level slog.Level) {
	slog.SetDefault(slog.New(NewConsoleHandler(os.Stderr, level)))
}

// LevelFromVerbosity maps the debug flag to a console threshold:
// warnings and above by default, info and above when debugging.
func LevelFromVerbosity(debug bool) slog.Level {
	if debug {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

// TranscriptHandler writes only the record message followed by a newline.
// It accepts every level; attributes and groups are dropped.
type TranscriptHandler struct {
	mu *sync.Mutex
	w  io.Writer
}

// NewTranscriptHandler creates a transcript handler writing to w
func NewTranscriptHandler(w io.Writer) *TranscriptHandler {
	return &TranscriptHandler{mu: &sync.Mutex{}, w: w}
}

func (h *TranscriptHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *TranscriptHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, len(r.Message)+1)
	buf = append(buf, r.Message...)
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *TranscriptHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *TranscriptHandler) WithGroup(string) slog.Handler { return h }

// PrefixHandler prepends a fixed prefix to every record message
type PrefixHandler struct {
	prefix string
	next   slog.Handler
}

// NewPrefixHandler wraps next so every message starts with prefix
func NewPrefixHandler(prefix string, next slog.Handler) *PrefixHandler {
	return &PrefixHandler{prefix: prefix, next: next}
}

func (h *PrefixHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *PrefixHandler) Handle(ctx context.Context, r slog.Record) error {
	r.Message = h.prefix + r.Message
	return h.next.Handle(ctx, r)
}

func (h *PrefixHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &PrefixHandler{prefix: h.prefix, next: h.next.WithAttrs(attrs)}
}

func (h *PrefixHandler) WithGroup(name string) slog.Handler {
	return &PrefixHandler{prefix: h.prefix, next: h.next.WithGroup(name)}
}

// FanOut dispatches each record to every handler that is enabled for its
// level, so each sink applies its own threshold.
type FanOut struct {
	handlers []slog.Handler
}

// NewFanOut creates a handler that forwards to all of handlers
func NewFanOut(handlers ...slog.Handler) *FanOut {
	return &FanOut{handlers: handlers}
}

func (f *FanOut) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *FanOut) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanOut) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &FanOut{handlers: handlers}
}

func (f *FanOut) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &FanOut{handlers: handlers}
}
