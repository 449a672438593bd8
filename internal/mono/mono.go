// Package mono drives a motorized monochromator over its line protocol.
//
// The device offers no completion event, only a synchronous status query,
// so every motion is followed by polling IDLE? until the device reports
// idle or the caller's timeout elapses.
package mono

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roman-kulish/dip-sweep/internal/clock"
	"github.com/roman-kulish/dip-sweep/internal/serialport"
)

const (
	DefaultPollInterval   = 50 * time.Millisecond
	DefaultSettle         = 100 * time.Millisecond
	DefaultMoveTimeout    = 5 * time.Second
	DefaultGratingTimeout = 60 * time.Second

	cmdUnits   = "UNITS nm"
	cmdShutter = "SHUTTER 1"
	cmdGrating = "GRAT %d"
	cmdGoWave  = "GOWAVE %.3f"
	cmdIdle    = "IDLE?"
)

var (
	// ErrInvalidGrating is returned when a grating other than 1 or 2 is selected
	ErrInvalidGrating = errors.New("invalid grating")
)

// Outcome is the result of waiting for the device to become idle.
type Outcome int

const (
	Confirmed Outcome = iota // Device reported idle before the deadline
	TimedOut                 // Deadline passed without an idle report
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// WithLogger sets the logger for the monochromator
func WithLogger(logger *slog.Logger) func(m *Monochromator) {
	return func(m *Monochromator) {
		m.logger = logger.With(slog.String("device", "monochromator"))
	}
}

// WithPollInterval sets the delay between the status query and reading its
// response, and again between polls
func WithPollInterval(d time.Duration) func(m *Monochromator) {
	return func(m *Monochromator) {
		m.pollInterval = d
	}
}

// WithSettle sets the pause after fire-and-forget configuration commands
func WithSettle(d time.Duration) func(m *Monochromator) {
	return func(m *Monochromator) {
		m.settle = d
	}
}

// Monochromator owns the command channel to the device.
type Monochromator struct {
	conn *serialport.LineConn

	pollInterval time.Duration
	settle       time.Duration
	logger       *slog.Logger
}

// New creates a Monochromator on an open port. The Monochromator takes
// ownership of the port and closes it on Close.
func New(port io.ReadWriteCloser, options ...func(m *Monochromator)) *Monochromator {
	m := Monochromator{
		conn:         serialport.NewLineConn(port),
		pollInterval: DefaultPollInterval,
		settle:       DefaultSettle,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Configure selects nanometer units and opens the shutter. The commands
// are not confirmed.
func (m *Monochromator) Configure(ctx context.Context) error {
	for _, cmd := range []string{cmdUnits, cmdShutter} {
		if err := m.conn.Send(cmd); err != nil {
			return err
		}
	}
	return clock.Sleep(ctx, m.settle)
}

// OpenShutter forces the shutter open.
func (m *Monochromator) OpenShutter(ctx context.Context) error {
	if err := m.conn.Send(cmdShutter); err != nil {
		return err
	}
	return clock.Sleep(ctx, m.settle)
}

// MoveTo commands a move to the wavelength in nm and waits until the device
// is idle or timeout elapses. TimedOut is not an error: the position may
// still be settling.
func (m *Monochromator) MoveTo(ctx context.Context, wavelength float64, timeout time.Duration) (Outcome, error) {
	if err := m.conn.Send(fmt.Sprintf(cmdGoWave, wavelength)); err != nil {
		return TimedOut, err
	}
	return m.WaitIdle(ctx, timeout)
}

// SelectGrating switches the grating turret. The turret is slow, callers
// should pass a generous timeout.
func (m *Monochromator) SelectGrating(ctx context.Context, grating int, timeout time.Duration) (Outcome, error) {
	if grating != 1 && grating != 2 {
		return TimedOut, fmt.Errorf("%w: %d", ErrInvalidGrating, grating)
	}
	if err := m.conn.Send(fmt.Sprintf(cmdGrating, grating)); err != nil {
		return TimedOut, err
	}
	return m.WaitIdle(ctx, timeout)
}

// WaitIdle polls the status query until the response ends in "1" or the
// timeout elapses. Unanswered or unreadable polls count as busy. Only a
// failed write or a cancelled context return an error.
func (m *Monochromator) WaitIdle(ctx context.Context, timeout time.Duration) (Outcome, error) {
	start := time.Now()
	polls := 0

	for time.Since(start) < timeout {
		m.conn.Discard()
		if err := m.conn.Send(cmdIdle); err != nil {
			return TimedOut, err
		}
		polls++

		if err := clock.Sleep(ctx, m.pollInterval); err != nil {
			return TimedOut, err
		}

		resp, err := m.conn.ReadLine()
		if err != nil && !errors.Is(err, serialport.ErrNoResponse) {
			m.logger.Debug("status poll failed", slog.String("error", err.Error()))
		}
		if isIdle(resp) {
			return Confirmed, nil
		}

		if err = clock.Sleep(ctx, m.pollInterval); err != nil {
			return TimedOut, err
		}
	}

	m.logger.Debug("device not idle before timeout",
		slog.Duration("timeout", timeout),
		slog.Int("polls", polls))

	return TimedOut, nil
}

// Close closes the command channel.
func (m *Monochromator) Close() error {
	return m.conn.Close()
}

// isIdle reports whether an IDLE? response means no operation is pending.
// The device may echo the query before the status digit.
func isIdle(resp string) bool {
	return strings.HasSuffix(strings.TrimSpace(resp), "1")
}

