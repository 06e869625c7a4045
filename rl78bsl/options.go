package rl78bsl

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// LevelTrace enables raw frame dumps.
const LevelTrace = slog.Level(-8)

// DefaultResponseTimeout bounds the wait for a complete response.
const DefaultResponseTimeout = time.Second

// Operation names reported through Progress.
const (
	OpErase   = "erase"
	OpProgram = "program"
	OpVerify  = "verify"
)

// Progress - state of a block operation, reported after every block
type Progress struct {
	Op      string
	Address uint32
	Block   int
	Blocks  int
	Skipped bool
}

// ProgressFunc receives block progress.
type ProgressFunc func(Progress)

type config struct {
	logger          *slog.Logger
	progress        ProgressFunc
	echo            bool
	timing          Timing
	sleep           func(time.Duration)
	responseTimeout time.Duration
	operatorReady   func(ctx context.Context) error
	protocol        ProtocolVersion
}

func defaultConfig() config {
	return config{
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		echo:            true,
		timing:          DefaultTiming(),
		sleep:           time.Sleep,
		responseTimeout: DefaultResponseTimeout,
	}
}

// Option configures an Instance.
type Option func(*config)

// WithLogger sets the logger. Commands are logged at debug level, frames at
// LevelTrace.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProgress sets a callback invoked after every processed block.
func WithProgress(fn ProgressFunc) Option {
	return func(c *config) {
		c.progress = fn
	}
}

// WithEcho tells whether the adapter reads back every transmitted byte
// (single-wire interface).
func WithEcho(echo bool) Option {
	return func(c *config) {
		c.echo = echo
	}
}

// WithTiming overrides the sequence delays.
func WithTiming(t Timing) Option {
	return func(c *config) {
		c.timing = t
	}
}

// WithSleep replaces time.Sleep for all protocol delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *config) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithResponseTimeout bounds every response read.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.responseTimeout = d
		}
	}
}

// WithOperatorReady sets a hook called while the target is held in reset,
// e.g. to wait until the operator powers the board.
func WithOperatorReady(fn func(ctx context.Context) error) Option {
	return func(c *config) {
		c.operatorReady = fn
	}
}

// WithProtocol forces the protocol version instead of deriving it from the
// device name.
func WithProtocol(p ProtocolVersion) Option {
	return func(c *config) {
		c.protocol = p
	}
}
