package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultHeartbeatInterval = 360 * time.Second
	DefaultGracePeriod       = 3 * time.Second
)

// PipeReader forwards an agent's output stream, line by line, to the agent's
// logger and runs the agent's heartbeat while the stream is open.
type PipeReader struct {
	identity Identity
	stream   io.Reader
	logOpts  LoggerOptions
	probe    Prober
	interval time.Duration
	grace    time.Duration
}

// ReaderOptions configures a PipeReader
type ReaderOptions struct {
	Logger            LoggerOptions
	Probe             Prober
	HeartbeatInterval time.Duration
	GracePeriod       time.Duration
}

// NewPipeReader creates a reader that owns stream. Nothing else may read
// from stream once it has been handed over.
func NewPipeReader(id Identity, stream io.Reader, opts ReaderOptions) *PipeReader {
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.GracePeriod < 0 {
		opts.GracePeriod = 0
	}
	return &PipeReader{
		identity: id,
		stream:   stream,
		logOpts:  opts.Logger,
		probe:    opts.Probe,
		interval: opts.HeartbeatInterval,
		grace:    opts.GracePeriod,
	}
}

// Run builds the agent logger, waits out the grace period, starts the
// heartbeat and then consumes the stream until end of input. The heartbeat
// is stopped before Run returns. Cancelling ctx stops the heartbeat early
// but does not interrupt reading.
func (r *PipeReader) Run(ctx context.Context) error {
	logger, closer, err := NewLogger(r.identity, r.logOpts)
	if err != nil {
		// Keep the pipe drained so the agent never blocks on a full buffer.
		io.Copy(io.Discard, r.stream)
		return fmt.Errorf("agent %s output discarded: %w", r.identity, err)
	}
	defer closer.Close()

	// Give the root log time to settle before this agent starts emitting.
	if r.grace > 0 {
		select {
		case <-time.After(r.grace):
		case <-ctx.Done():
		}
	}

	hbCtx, cancel := context.WithCancel(ctx)
	timer := NewRepeatingTimer(r.interval, func() {
		r.heartbeat(hbCtx, logger)
	})
	if r.probe != nil && ctx.Err() == nil {
		timer.Start()
		context.AfterFunc(hbCtx, timer.Stop)
	}
	defer func() {
		cancel()
		timer.Stop()
	}()

	return r.consume(logger)
}

func (r *PipeReader) heartbeat(ctx context.Context, logger *slog.Logger) {
	status := r.probe.Check(ctx)
	if ctx.Err() != nil {
		// The stream ended while the request was in flight.
		return
	}
	logger.Debug(fmt.Sprintf(" [c3 %s]", status))
}

// consume reads until end of input. io.EOF is the normal way out.
func (r *PipeReader) consume(logger *slog.Logger) error {
	br := bufio.NewReader(r.stream)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			logger.Info(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading output of %s: %w", r.identity, err)
		}
	}
}
