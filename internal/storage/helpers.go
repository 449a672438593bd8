package storage

import (
	"database/sql"
	"math"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// toNullFloat stores NaN and infinities as NULL, SQLite has no NaN.
func toNullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func toSweepData(sessionID int64, r *spectrum.SweepResult) *sweepData {
	return &sweepData{
		SessionID:     sessionID,
		Sequence:      r.Sequence,
		Started:       r.Started.UTC(),
		Finished:      r.Finished.UTC(),
		RawWavelength: toNullFloat(r.Raw.Wavelength),
		RawPower:      toNullFloat(r.Raw.Power),
		FitWavelength: toNullFloat(r.Fit.Wavelength),
		FitPower:      toNullFloat(r.Fit.Power),
		Incidents:     r.Incidents,
	}
}

func fromSweepData(d *sweepData) *spectrum.SweepResult {
	return &spectrum.SweepResult{
		Sequence: d.Sequence,
		Started:  d.Started,
		Finished: d.Finished,
		Raw: spectrum.DipEstimate{
			Wavelength: fromNullFloat(d.RawWavelength),
			Power:      fromNullFloat(d.RawPower),
		},
		Fit: spectrum.DipEstimate{
			Wavelength: fromNullFloat(d.FitWavelength),
			Power:      fromNullFloat(d.FitPower),
		},
		Incidents: d.Incidents,
	}
}
