package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/roman-kulish/dip-sweep/internal/clock"
)

var (
	// ErrCancelled is returned when a stop was requested while sampling or
	// sweeping. It is a control outcome, not a failure.
	ErrCancelled = errors.New("sweep cancelled")
)

// PowerReader returns the most recent instantaneous optical power reading in W.
// The value may be NaN or infinite when the meter has nothing valid buffered.
type PowerReader interface {
	Read(ctx context.Context) (float64, error)
}

// Stopper reports whether the operator asked the sweep to stop. It must be
// non-blocking.
type Stopper interface {
	StopRequested() bool
}

// neverStop is used when no Stopper was configured
type neverStop struct{}

func (neverStop) StopRequested() bool { return false }

// WithSamplerLogger sets the logger for the sampler
func WithSamplerLogger(logger *slog.Logger) func(s *Sampler) {
	return func(s *Sampler) {
		s.logger = logger
	}
}

// WithStopper sets the stop request source consulted before every reading
func WithStopper(stop Stopper) func(s *Sampler) {
	return func(s *Sampler) {
		s.stop = stop
	}
}

// Sampler averages repeated readings from a power meter.
type Sampler struct {
	meter    PowerReader
	samples  int
	interval time.Duration

	stop   Stopper
	logger *slog.Logger
}

// NewSampler creates a sampler taking the given number of readings per call,
// waiting interval before each one.
func NewSampler(meter PowerReader, samples int, interval time.Duration, options ...func(s *Sampler)) *Sampler {
	s := Sampler{
		meter:    meter,
		samples:  max(1, samples),
		interval: interval,
		stop:     neverStop{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Sample takes the configured number of readings and returns the mean of
// the finite ones. If no reading was finite the result is NaN, callers must
// not treat it as zero. ErrCancelled is returned as soon as a stop request
// is seen, without a value.
func (s *Sampler) Sample(ctx context.Context) (float64, error) {
	var sum, c float64
	var valid int

	for i := 0; i < s.samples; i++ {
		if s.stop.StopRequested() {
			return math.NaN(), ErrCancelled
		}
		if err := clock.Sleep(ctx, s.interval); err != nil {
			return math.NaN(), ErrCancelled
		}

		v, err := s.meter.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return math.NaN(), ErrCancelled
			}
			s.logger.Debug("power reading failed", slog.String("error", err.Error()))
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		// Kahan summation, readings differ by orders of magnitude near a dip
		y := v - c
		t := sum + y
		c = (t - sum) - y
		sum = t
		valid++
	}

	if valid == 0 {
		return math.NaN(), nil
	}
	return sum / float64(valid), nil
}

