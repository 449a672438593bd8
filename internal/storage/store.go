// Package storage archives sweep sessions in SQLite.
package storage

import (
	"context"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

// Store manages the sweep archive. Writes of a single sweep are atomic.
type Store interface {
	// CreateSession starts a new run and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - monochromator: Monochromator port, or "simulator"
	//   - meter: Power meter identifier
	//   - config: Optional run configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, monochromator, meter string, config any) (sessionID int64, err error)

	// Session retrieves a run by its ID.
	Session(ctx context.Context, id int64) (session *spectrum.ScanSession, err error)

	// Sessions returns all runs ordered by start time.
	Sessions(ctx context.Context) (sessions []*spectrum.ScanSession, err error)

	// StoreSweep saves a completed sweep with its dip estimates and every
	// trace point in a single transaction. NaN powers are stored as NULL.
	StoreSweep(ctx context.Context, sessionID int64, result *spectrum.SweepResult) error

	// ReadSweeps returns a reader over the sweeps of a session in time order.
	// The reader must be closed after use.
	ReadSweeps(ctx context.Context, sessionID int64, opts ...ReaderOption) (SweepReader, error)

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}
