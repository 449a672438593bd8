// Package report delivers completed sweeps to files, the archive and
// remote endpoints.
package report

import (
	"context"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

// Sink receives every completed sweep.
type Sink interface {
	// Name identifies the sink in log lines.
	Name() string

	// Send delivers a sweep. A failure affects only this sink.
	Send(ctx context.Context, result *spectrum.SweepResult) error
}

// WithLogger sets the logger for the fanout
func WithLogger(logger *slog.Logger) func(f *Fanout) {
	return func(f *Fanout) {
		f.logger = logger
	}
}

// Fanout sends each sweep to its sinks in order. Sinks that persist the
// sweep should come before remote ones. A failing sink is logged and the
// remaining sinks still run.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewFanout creates a Fanout over sinks, in delivery order.
func NewFanout(sinks []Sink, options ...func(f *Fanout)) *Fanout {
	f := Fanout{
		sinks:  sinks,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&f)
	}

	return &f
}

// Report implements sweep.Reporter.
func (f *Fanout) Report(ctx context.Context, result *spectrum.SweepResult) {
	for _, sink := range f.sinks {
		if err := sink.Send(ctx, result); err != nil {
			f.logger.Warn("reporting sweep failed",
				slog.String("sink", sink.Name()),
				slog.Int("sequence", result.Sequence),
				slog.String("error", err.Error()))
		}
	}
}

// Update is the record published to remote endpoints. Non-finite numbers
// are replaced by zero, JSON has no NaN.
type Update struct {
	Mode             string  `json:"mode"`
	OpticalPower     float64 `json:"OpticalPower"`
	CenterWavelength float64 `json:"CenterWavelength"`
}

// DetailedUpdate extends Update with the raw dip and sweep timing.
type DetailedUpdate struct {
	Update

	RawPower      float64   `json:"RawPower"`
	RawWavelength float64   `json:"RawWavelength"`
	Sequence      int       `json:"Sequence"`
	Timestamp     time.Time `json:"Timestamp"`
}

func newUpdate(result *spectrum.SweepResult) Update {
	return Update{
		Mode:             "update",
		OpticalPower:     safeNumber(result.Fit.Power),
		CenterWavelength: safeNumber(result.Fit.Wavelength),
	}
}

func newDetailedUpdate(result *spectrum.SweepResult) DetailedUpdate {
	return DetailedUpdate{
		Update:        newUpdate(result),
		RawPower:      safeNumber(result.Raw.Power),
		RawWavelength: safeNumber(result.Raw.Wavelength),
		Sequence:      result.Sequence,
		Timestamp:     result.Finished.UTC(),
	}
}

func safeNumber(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}
