package storage

import (
	"database/sql"
	"time"
)

type sweepData struct {
	ID            int64
	SessionID     int64
	Sequence      int
	Started       time.Time
	Finished      time.Time
	RawWavelength sql.NullFloat64
	RawPower      sql.NullFloat64
	FitWavelength sql.NullFloat64
	FitPower      sql.NullFloat64
	Incidents     int
}

type sampleData struct {
	ID         int64
	SweepID    int64
	Wavelength float64
	Power      sql.NullFloat64
}
