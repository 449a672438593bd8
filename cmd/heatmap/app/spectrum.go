package app

import (
	"math"
	"time"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

// SpectrumData is a session laid out for rendering: one row per sweep,
// one column per trace point, powers in dBm.
type SpectrumData struct {
	Width, Height                int
	WavelengthMin, WavelengthMax float64
	TimestampStart, TimestampEnd time.Time
	BoundsTracker                *SmoothBounds
	Rows                         []SweepRow
}

// SweepRow is one sweep. Dip is the fitted dip wavelength, NaN when the
// sweep produced no valid estimate.
type SweepRow struct {
	Started     time.Time
	Wavelengths []float64
	Powers      []*float64
	Dip         float64
}

func NewSpectrumData(b *SmoothBounds) *SpectrumData {
	return &SpectrumData{
		WavelengthMin: math.MaxFloat64,
		WavelengthMax: -math.MaxFloat64,
		BoundsTracker: b,
	}
}

func (s *SpectrumData) Update(result *spectrum.SweepResult) {
	if len(result.Trace) == 0 {
		return
	}

	s.Width = max(s.Width, len(result.Trace))
	s.Height++

	if s.TimestampStart.IsZero() || s.TimestampStart.After(result.Started) {
		s.TimestampStart = result.Started
	}
	if s.TimestampEnd.IsZero() || s.TimestampEnd.Before(result.Started) {
		s.TimestampEnd = result.Started
	}

	row := SweepRow{
		Started:     result.Started,
		Wavelengths: make([]float64, len(result.Trace)),
		Powers:      make([]*float64, len(result.Trace)),
		Dip:         math.NaN(),
	}
	for i, p := range result.Trace {
		s.WavelengthMin = min(s.WavelengthMin, p.Wavelength)
		s.WavelengthMax = max(s.WavelengthMax, p.Wavelength)

		row.Wavelengths[i] = p.Wavelength
		row.Powers[i] = ToDBm(p.Power)
		s.BoundsTracker.Update(row.Powers[i])
	}
	if w := result.Fit.Wavelength; !math.IsNaN(w) && !math.IsInf(w, 0) {
		row.Dip = w
	}
	s.Rows = append(s.Rows, row)
}

// Column maps a wavelength to its column in a row of Width points.
func (s *SpectrumData) Column(wavelength float64) int {
	if s.Width <= 1 || s.WavelengthMax <= s.WavelengthMin {
		return 0
	}
	ratio := (wavelength - s.WavelengthMin) / (s.WavelengthMax - s.WavelengthMin)
	col := int(math.Round(ratio * float64(s.Width-1)))
	return max(0, min(s.Width-1, col))
}
