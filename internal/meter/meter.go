// Package meter wraps an optical power meter driver into a streaming
// session the sweep engine can sample from.
package meter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"
)

const (
	DefaultChannel = 0
	DefaultWarmup  = 300 * time.Millisecond
)

var (
	// ErrNoDevice is returned when discovery finds no power meter
	ErrNoDevice = errors.New("no power meter detected")

	// ErrNotStreaming is returned when reading from a channel that is not streaming
	ErrNotStreaming = errors.New("channel is not streaming")
)

// Driver finds and opens power meters.
type Driver interface {
	// Discover returns the identifiers of all connected meters.
	Discover(ctx context.Context) ([]string, error)

	// Open opens the meter with the given identifier.
	Open(ctx context.Context, id string) (Handle, error)
}

// Handle is an open power meter.
type Handle interface {
	// StartStream starts continuous acquisition on a channel.
	StartStream(channel int) error

	// StopStream stops continuous acquisition on a channel.
	StopStream(channel int) error

	// Latest returns the most recent buffered reading in W, or NaN when
	// nothing is buffered. Timestamps and status flags are not reported.
	Latest(channel int) (float64, error)

	// Close releases the meter.
	Close() error
}

// WithLogger sets the logger for the session
func WithLogger(logger *slog.Logger) func(s *Session) {
	return func(s *Session) {
		s.logger = logger.With(slog.String("device", "meter"), slog.String("meterID", s.id))
	}
}

// WithChannel sets the acquisition channel
func WithChannel(channel int) func(s *Session) {
	return func(s *Session) {
		s.channel = channel
	}
}

// WithWarmup sets how long to wait after starting the stream before the
// first buffered reading is flushed
func WithWarmup(d time.Duration) func(s *Session) {
	return func(s *Session) {
		s.warmup = d
	}
}

// Session is a streaming acquisition on one channel of an open meter.
type Session struct {
	id      string
	handle  Handle
	channel int
	warmup  time.Duration

	streaming bool
	logger    *slog.Logger
}

// Connect discovers meters, opens the first one found and returns an idle
// session. ErrNoDevice is returned when nothing is connected.
func Connect(ctx context.Context, driver Driver, options ...func(s *Session)) (*Session, error) {
	ids, err := driver.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering power meters: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoDevice
	}

	handle, err := driver.Open(ctx, ids[0])
	if err != nil {
		return nil, fmt.Errorf("opening power meter %s: %w", ids[0], err)
	}

	s := Session{
		id:      ids[0],
		handle:  handle,
		channel: DefaultChannel,
		warmup:  DefaultWarmup,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

// ID returns the identifier of the connected meter.
func (s *Session) ID() string {
	return s.id
}

// Start starts streaming, waits for the warm-up period and discards the
// first buffered reading, which may predate the stream.
func (s *Session) Start(ctx context.Context) error {
	if err := s.handle.StartStream(s.channel); err != nil {
		return fmt.Errorf("starting stream on channel %d: %w", s.channel, err)
	}
	s.streaming = true

	timer := time.NewTimer(s.warmup)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if _, err := s.handle.Latest(s.channel); err != nil {
		s.logger.Debug("flushing first reading", slog.String("error", err.Error()))
	}

	s.logger.Info("power meter streaming", slog.Int("channel", s.channel))
	return nil
}

// Read returns the latest reading on the session channel.
func (s *Session) Read(context.Context) (float64, error) {
	if !s.streaming {
		return math.NaN(), ErrNotStreaming
	}
	return s.handle.Latest(s.channel)
}

// Close stops the stream and closes the meter. The handle is closed even
// if stopping the stream failed; both errors are returned.
func (s *Session) Close() error {
	var stopErr error
	if s.streaming {
		if err := s.handle.StopStream(s.channel); err != nil {
			stopErr = fmt.Errorf("stopping stream on channel %d: %w", s.channel, err)
		}
		s.streaming = false
	}

	var closeErr error
	if err := s.handle.Close(); err != nil {
		closeErr = fmt.Errorf("closing power meter: %w", err)
	}

	return errors.Join(stopErr, closeErr)
}
