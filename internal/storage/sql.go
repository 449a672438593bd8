package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

// Indexes are created when the writer closes, so inserts during a run do
// not pay for index maintenance.
const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_sweeps_session ON sweeps (session_id, started);
CREATE INDEX IF NOT EXISTS idx_samples_sweep ON samples (sweep_id, wavelength);`

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      monochromator,
                      meter,
                      config)
VALUES (?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    monochromator,
    meter,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    monochromator,
    meter,
    config
FROM sessions
ORDER BY start_time, id`

	insertSweepSQL = `
INSERT INTO sweeps (
                    session_id,
                    sequence,
                    started,
                    finished,
                    raw_wavelength,
                    raw_power,
                    fit_wavelength,
                    fit_power,
                    incidents)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertSampleSQL = `
INSERT INTO samples (
                     sweep_id,
                     wavelength,
                     power)
VALUES `

	selectSweepsSQL = `
SELECT
    w.id,
    w.sequence,
    w.started,
    w.finished,
    w.raw_wavelength,
    w.raw_power,
    w.fit_wavelength,
    w.fit_power,
    w.incidents,
    s.wavelength,
    s.power
FROM sweeps w
    JOIN samples s ON s.sweep_id = w.id
WHERE
    w.session_id = ?
    AND (? IS NULL OR w.started >= ?)
    AND (? IS NULL OR w.started <= ?)
    AND (? IS NULL OR s.wavelength >= ?)
    AND (? IS NULL OR s.wavelength <= ?)
ORDER BY w.started, w.id, s.id`
)
