package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

// ErrNoData indicates either that the requested session does not exist,
// or that all available sweeps have been read from the reader.
var ErrNoData = errors.New("no data available")

// SweepReader provides an iterator-based interface for reading archived
// sweeps with optional time and wavelength filtering.
type SweepReader interface {
	// Session returns metadata about the run this reader is accessing.
	Session() *spectrum.ScanSession

	// Next advances the iterator and returns true if there is another sweep
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current sweep in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *spectrum.SweepResult

	// Error returns any error that occurred during iteration.
	// If Next() returns false, Error() should be checked to distinguish
	// between end of data and an error condition.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a SweepReader with specific filtering criteria.
type ReaderOption func(*SqliteSweepReader)

// WithTimeRange only returns sweeps started within [startTime, endTime].
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// WithWavelengthRange only returns trace points within [minWavelength,
// maxWavelength] nm. Dip estimates are returned as archived.
func WithWavelengthRange(minWavelength, maxWavelength float64) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.minWavelength = &minWavelength
		r.maxWavelength = &maxWavelength
	}
}

// SqliteSweepReader implements SweepReader for SQLite database backend.
type SqliteSweepReader struct {
	db *sql.DB

	sessionID int64
	session   *spectrum.ScanSession

	startTime     *time.Time // Optional start of time range filter
	endTime       *time.Time // Optional end of time range filter
	minWavelength *float64   // Optional minimum wavelength filter
	maxWavelength *float64   // Optional maximum wavelength filter

	current     *spectrum.SweepResult
	next        *spectrum.SweepResult // First row of the following sweep
	nextSweepID int64
	rows        *sql.Rows
	err         error
}

func newSqliteSweepReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteSweepReader, error) {
	sr := &SqliteSweepReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return sr, nil
}

func (sr *SqliteSweepReader) init(ctx context.Context) error {
	if sr.db == nil {
		return errors.New("database connection required")
	}
	if sr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: sr.loadSession},
		{msg: "checking filters", fn: sr.checkFilters},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (sr *SqliteSweepReader) loadSession(ctx context.Context) (err error) {
	sr.session, err = loadSession(ctx, sr.db, sr.sessionID)
	return
}

func (sr *SqliteSweepReader) checkFilters(context.Context) error {
	if sr.startTime != nil && sr.endTime != nil && sr.startTime.After(*sr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", sr.startTime, sr.endTime)
	}
	if sr.minWavelength != nil && sr.maxWavelength != nil && *sr.minWavelength > *sr.maxWavelength {
		return fmt.Errorf("min wavelength %f is greater than max wavelength %f", *sr.minWavelength, *sr.maxWavelength)
	}
	return nil
}

func (sr *SqliteSweepReader) initQuery(ctx context.Context) (err error) {
	var startTime, endTime sql.NullTime
	if sr.startTime != nil {
		startTime = sql.NullTime{Time: sr.startTime.UTC(), Valid: true}
	}
	if sr.endTime != nil {
		endTime = sql.NullTime{Time: sr.endTime.UTC(), Valid: true}
	}

	var minWavelength, maxWavelength sql.NullFloat64
	if sr.minWavelength != nil {
		minWavelength = sql.NullFloat64{Float64: *sr.minWavelength, Valid: true}
	}
	if sr.maxWavelength != nil {
		maxWavelength = sql.NullFloat64{Float64: *sr.maxWavelength, Valid: true}
	}

	sr.rows, err = sr.db.QueryContext(ctx, selectSweepsSQL,
		sr.sessionID,
		startTime, startTime,
		endTime, endTime,
		minWavelength, minWavelength,
		maxWavelength, maxWavelength,
	)
	return err
}

func (sr *SqliteSweepReader) scanRow() (int64, *spectrum.SweepResult, spectrum.Point, error) {
	var sweep sweepData
	var sample sampleData

	err := sr.rows.Scan(
		&sweep.ID,
		&sweep.Sequence,
		&sweep.Started,
		&sweep.Finished,
		&sweep.RawWavelength,
		&sweep.RawPower,
		&sweep.FitWavelength,
		&sweep.FitPower,
		&sweep.Incidents,
		&sample.Wavelength,
		&sample.Power,
	)
	if err != nil {
		return 0, nil, spectrum.Point{}, fmt.Errorf("scanning sweep: %w", err)
	}

	point := spectrum.Point{
		Wavelength: sample.Wavelength,
		Power:      fromNullFloat(sample.Power),
	}
	return sweep.ID, fromSweepData(&sweep), point, nil
}

func (sr *SqliteSweepReader) Session() *spectrum.ScanSession {
	return sr.session
}

func (sr *SqliteSweepReader) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	sr.current = nil
	currentID := int64(-1)
	if sr.next != nil {
		sr.current, currentID = sr.next, sr.nextSweepID
		sr.next = nil
	}

	for {
		select {
		case <-ctx.Done():
			sr.err = ctx.Err()
			return false
		default:
		}

		if !sr.rows.Next() {
			if sr.current != nil {
				sr.err = ErrNoData
				return true
			}
			return false
		}

		sweepID, sweep, point, err := sr.scanRow()
		if err != nil {
			sr.err = err
			return false
		}

		if sr.current == nil {
			sweep.Trace = spectrum.Trace{point}
			sr.current, currentID = sweep, sweepID
			continue
		}

		// Rows of one sweep are contiguous, a new ID completes the current one
		if sweepID != currentID {
			sweep.Trace = spectrum.Trace{point}
			sr.next, sr.nextSweepID = sweep, sweepID
			return true
		}

		sr.current.Trace = append(sr.current.Trace, point)
	}
}

func (sr *SqliteSweepReader) Current() *spectrum.SweepResult {
	return sr.current
}

func (sr *SqliteSweepReader) Error() error {
	if sr.err != nil && !errors.Is(sr.err, ErrNoData) {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SqliteSweepReader) Close() error {
	if sr.rows != nil {
		err := sr.rows.Close()
		sr.current = nil
		sr.next = nil
		sr.rows = nil
		return err
	}
	return nil
}
