package agent

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.olrik.dev/sutagent/internal/logfile"
	"go.olrik.dev/sutagent/internal/logging"
)

// Identity names one agent. It keys the agent's process, log file and logger.
type Identity string

// IdentityFromUnit derives the identity from a configuration unit file name
// by dropping any directory and the extension.
func IdentityFromUnit(unit string) Identity {
	base := filepath.Base(unit)
	return Identity(strings.TrimSuffix(base, filepath.Ext(base)))
}

// LoggerOptions configures the two sinks of a per-agent logger
type LoggerOptions struct {
	LogDir       string
	ConsoleLevel slog.Leveler
	Console      io.Writer
	MaxBytes     int64
	Backups      int
}

func (o LoggerOptions) withDefaults() LoggerOptions {
	if o.ConsoleLevel == nil {
		o.ConsoleLevel = slog.LevelWarn
	}
	if o.Console == nil {
		o.Console = os.Stdout
	}
	// An unset rotation policy gets the standard size cap and backups
	if o.MaxBytes <= 0 {
		o.MaxBytes = logfile.DefaultMaxBytes
		if o.Backups == 0 {
			o.Backups = logfile.DefaultBackups
		}
	}
	return o
}

// NewLogger builds the logger for one agent: a console sink at the
// configured threshold that puts the identity on its own line above the
// indented message, and a rotating file sink
// at <LogDir>/<identity> that records every level as the bare message.
// The returned closer releases the file sink.
func NewLogger(id Identity, opts LoggerOptions) (*slog.Logger, io.Closer, error) {
	if id == "" {
		return nil, nil, fmt.Errorf("agent identity cannot be empty")
	}
	opts = opts.withDefaults()

	file, err := logfile.Open(filepath.Join(opts.LogDir, string(id)), opts.MaxBytes, opts.Backups)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log for %s: %w", id, err)
	}

	console := logging.NewPrefixHandler(
		fmt.Sprintf(">> %s << \n   ", id),
		logging.NewConsoleHandler(opts.Console, opts.ConsoleLevel),
	)
	handler := logging.NewFanOut(console, logging.NewTranscriptHandler(file))

	return slog.New(handler), file, nil
}
