package spectrum

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// MaxSteps bounds the number of wavelength points a single sweep may have.
	MaxSteps = 100_000

	GratingVisible = 1 // Visible range grating
	GratingNIR     = 2 // Near-infrared grating, 1000 nm blaze
)

// SweepConfig describes a linear wavelength sweep. All wavelengths are in
// nanometers. It is set once at startup and never changes during a run.
type SweepConfig struct {
	Start          float64       `yaml:"start" json:"start"`                   // First wavelength in nm
	End            float64       `yaml:"end" json:"end"`                       // Last wavelength in nm
	Step           float64       `yaml:"step" json:"step"`                     // Step size in nm, sign gives direction
	Grating        int           `yaml:"grating" json:"grating"`               // Grating selector, 1 or 2
	Dwell          time.Duration `yaml:"dwell" json:"dwell"`                   // Time spent sampling each step
	SamplesPerStep int           `yaml:"samplesPerStep" json:"samplesPerStep"` // Power readings averaged per step
}

func (c *SweepConfig) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"start", c.Start},
		{"end", c.End},
		{"step", c.Step},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("spectrum.SweepConfig: %s wavelength must be a finite number", v.name)
		}
	}

	if c.Step == 0 {
		return errors.New("spectrum.SweepConfig: step must not be zero")
	}
	if (c.End-c.Start)/c.Step < 0 {
		return fmt.Errorf("spectrum.SweepConfig: step %g moves away from end wavelength %g", c.Step, c.End)
	}
	if c.Grating != GratingVisible && c.Grating != GratingNIR {
		return fmt.Errorf("spectrum.SweepConfig: grating must be 1 or 2: %d given", c.Grating)
	}
	if c.Dwell < 0 {
		return fmt.Errorf("spectrum.SweepConfig: dwell cannot be negative: %s given", c.Dwell)
	}
	if c.SamplesPerStep < 1 {
		return fmt.Errorf("spectrum.SweepConfig: samples per step must be at least 1: %d given", c.SamplesPerStep)
	}
	if n := c.steps() + 1; math.IsNaN(n) || math.IsInf(n, 0) || n > MaxSteps {
		return fmt.Errorf("spectrum.SweepConfig: sweep has %g points, at most %d allowed", n, MaxSteps)
	}

	return nil
}

// NumSteps returns the number of wavelength points in a sweep,
// round((end - start) / step) + 1. It is 0 when the sweep is not walkable
// or has more than MaxSteps points.
func (c *SweepConfig) NumSteps() int {
	if c.Step == 0 {
		return 0
	}
	n := c.steps() + 1
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 1 || n > MaxSteps {
		return 0
	}
	return int(n)
}

// steps is round((end - start) / step), kept as a float so huge spans
// cannot overflow before they are bounds checked.
func (c *SweepConfig) steps() float64 {
	return math.Round((c.End - c.Start) / c.Step)
}

// Targets returns the wavelengths visited by a sweep, in order. Each target
// is computed from the start wavelength so the step error does not accumulate.
func (c *SweepConfig) Targets() []float64 {
	n := c.NumSteps()
	if n <= 0 {
		return nil
	}

	targets := make([]float64, n)
	for i := range targets {
		targets[i] = c.Start + float64(i)*c.Step
	}
	return targets
}

// SampleInterval is the delay before each power reading of a step.
func (c *SweepConfig) SampleInterval() time.Duration {
	return c.Dwell / time.Duration(max(1, c.SamplesPerStep))
}

// Point is a single step of a sweep. Power is NaN when no valid reading
// was taken at that wavelength.
type Point struct {
	Wavelength float64 `json:"wavelength"` // Wavelength in nm
	Power      float64 `json:"power"`      // Averaged optical power in W
}

// Trace is an ordered sequence of sweep points.
type Trace []Point

// Wavelengths returns the wavelength column of the trace.
func (t Trace) Wavelengths() []float64 {
	out := make([]float64, len(t))
	for i, p := range t {
		out[i] = p.Wavelength
	}
	return out
}

// Powers returns the power column of the trace.
func (t Trace) Powers() []float64 {
	out := make([]float64, len(t))
	for i, p := range t {
		out[i] = p.Power
	}
	return out
}

// DipEstimate is a located power minimum. Both fields are NaN when no
// minimum could be located.
type DipEstimate struct {
	Wavelength float64 `json:"wavelength"` // Wavelength in nm
	Power      float64 `json:"power"`      // Unsmoothed optical power in W
}

// IsValid reports whether the estimate holds a finite wavelength and power.
func (d DipEstimate) IsValid() bool {
	return isFinite(d.Wavelength) && isFinite(d.Power)
}

// SweepResult is a completed sweep with both dip estimates.
type SweepResult struct {
	Sequence  int         `json:"sequence"`  // 1-based sweep counter within a run
	Started   time.Time   `json:"started"`   // When the first step was commanded
	Finished  time.Time   `json:"finished"`  // When the last step was sampled
	Trace     Trace       `json:"trace"`     // One point per step
	Raw       DipEstimate `json:"raw"`       // Sample with the minimum power
	Fit       DipEstimate `json:"fit"`       // Minimum of the 3-point smoothed trace
	Incidents int         `json:"incidents"` // Steps whose move was not confirmed idle
}

// Duration returns the time taken by the sweep.
func (r *SweepResult) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// ScanSession describes a single run of the sweeper, as archived.
type ScanSession struct {
	ID            int64     `json:"ID"`                      // Unique identifier for the session
	StartTime     time.Time `json:"startTime"`               // When the run began
	Monochromator string    `json:"monochromator"`           // Monochromator port or "simulator"
	Meter         string    `json:"meter"`                   // Power meter identifier
	Config        *string   `json:"config,omitempty"`        // Sweep configuration in JSON format
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
