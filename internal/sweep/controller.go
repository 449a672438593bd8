package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/dip-sweep/internal/clock"
	"github.com/roman-kulish/dip-sweep/internal/mono"
	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

const (
	DefaultPauseIntervals = 10
	DefaultPauseInterval  = 100 * time.Millisecond
)

// Positioner moves the monochromator output to a wavelength.
type Positioner interface {
	OpenShutter(ctx context.Context) error
	MoveTo(ctx context.Context, wavelength float64, timeout time.Duration) (mono.Outcome, error)
}

// Reporter consumes completed sweeps. It must not fail the run: errors are
// the reporter's to log.
type Reporter interface {
	Report(ctx context.Context, result *spectrum.SweepResult)
}

type discardReporter struct{}

func (discardReporter) Report(context.Context, *spectrum.SweepResult) {}

// WithLogger sets the logger for the controller
func WithLogger(logger *slog.Logger) func(c *Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithReporter sets where completed sweeps are sent
func WithReporter(reporter Reporter) func(c *Controller) {
	return func(c *Controller) {
		c.reporter = reporter
	}
}

// WithStop sets the stop request source checked before every step and
// during the pause between sweeps
func WithStop(stop Stopper) func(c *Controller) {
	return func(c *Controller) {
		c.stop = stop
	}
}

// WithPause sets the pause between sweeps as a number of short intervals,
// a stop request is checked after each one
func WithPause(intervals int, interval time.Duration) func(c *Controller) {
	return func(c *Controller) {
		c.pauseIntervals = intervals
		c.pauseInterval = interval
	}
}

// WithMoveTimeout sets how long to wait for each move to be confirmed
func WithMoveTimeout(timeout time.Duration) func(c *Controller) {
	return func(c *Controller) {
		c.moveTimeout = timeout
	}
}

// Controller runs repeated wavelength sweeps and hands each completed sweep
// to a Reporter.
type Controller struct {
	config     spectrum.SweepConfig
	positioner Positioner
	sampler    *Sampler

	reporter       Reporter
	stop           Stopper
	pauseIntervals int
	pauseInterval  time.Duration
	moveTimeout    time.Duration
	logger         *slog.Logger

	sequence int
}

// NewController creates a controller. The sampler should share the
// controller's Stopper so a stop request interrupts a step as well.
func NewController(config spectrum.SweepConfig, positioner Positioner, sampler *Sampler, options ...func(c *Controller)) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := Controller{
		config:         config,
		positioner:     positioner,
		sampler:        sampler,
		reporter:       discardReporter{},
		stop:           neverStop{},
		pauseIntervals: DefaultPauseIntervals,
		pauseInterval:  DefaultPauseInterval,
		moveTimeout:    mono.DefaultMoveTimeout,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c, nil
}

// SweepOnce visits every target wavelength in order and samples the power
// at each. A stop request or a cancelled context abandons the sweep with
// ErrCancelled and no partial result. A move that is not confirmed idle is
// logged and the step is sampled anyway.
func (c *Controller) SweepOnce(ctx context.Context) (*spectrum.SweepResult, error) {
	if err := c.positioner.OpenShutter(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("opening shutter: %w", err)
	}

	targets := c.config.Targets()
	result := spectrum.SweepResult{
		Sequence: c.sequence + 1,
		Started:  time.Now(),
		Trace:    make(spectrum.Trace, 0, len(targets)),
	}

	for _, wl := range targets {
		if c.stop.StopRequested() || ctx.Err() != nil {
			return nil, ErrCancelled
		}

		outcome, err := c.positioner.MoveTo(ctx, wl, c.moveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrCancelled
			}
			return nil, fmt.Errorf("moving to %.3f nm: %w", wl, err)
		}
		if outcome == mono.TimedOut {
			c.logger.Warn("move not confirmed, sampling anyway",
				slog.Float64("wavelength", wl),
				slog.Duration("timeout", c.moveTimeout))
			result.Incidents++
		}

		power, err := c.sampler.Sample(ctx)
		if err != nil {
			return nil, err
		}

		result.Trace = append(result.Trace, spectrum.Point{Wavelength: wl, Power: power})
	}

	result.Finished = time.Now()
	result.Raw = RawDip(result.Trace)
	result.Fit = EstimateDip(result.Trace)
	c.sequence = result.Sequence

	return &result, nil
}

// Run sweeps until a stop is requested or the context is cancelled, which
// both end the run with a nil error. Only device faults are returned.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("sweeping",
		slog.Float64("start", c.config.Start),
		slog.Float64("end", c.config.End),
		slog.Float64("step", c.config.Step),
		slog.Int("points", c.config.NumSteps()))

	for {
		result, err := c.SweepOnce(ctx)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				c.logger.Info("sweep stopped", slog.Int("completed", c.sequence))
				return nil
			}
			return err
		}

		c.logger.Info(fmt.Sprintf("%s sweep complete", humanize.Ordinal(result.Sequence)),
			slog.String("duration", result.Duration().Round(time.Millisecond).String()),
			slog.String("rawDip", formatDip(result.Raw)),
			slog.String("fitDip", formatDip(result.Fit)),
			slog.Int("incidents", result.Incidents))

		c.reporter.Report(ctx, result)

		if c.pause(ctx) {
			c.logger.Info("sweep stopped", slog.Int("completed", c.sequence))
			return nil
		}
	}
}

// pause waits between sweeps and reports whether a stop was requested.
func (c *Controller) pause(ctx context.Context) bool {
	for i := 0; i < c.pauseIntervals; i++ {
		if c.stop.StopRequested() {
			return true
		}
		if err := clock.Sleep(ctx, c.pauseInterval); err != nil {
			return true
		}
	}
	return c.stop.StopRequested()
}

func formatDip(d spectrum.DipEstimate) string {
	if !d.IsValid() {
		return "none"
	}
	return fmt.Sprintf("%.3f nm @ %s", d.Wavelength, humanize.SIWithDigits(d.Power, 3, "W"))
}
