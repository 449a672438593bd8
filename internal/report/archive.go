package report

import (
	"context"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
	"github.com/roman-kulish/dip-sweep/internal/storage"
)

// Archive stores every sweep of a session.
type Archive struct {
	store     storage.Store
	sessionID int64
}

func NewArchive(store storage.Store, sessionID int64) *Archive {
	return &Archive{store: store, sessionID: sessionID}
}

func (a *Archive) Name() string {
	return "archive"
}

// Send stores the sweep even if ctx is already cancelled, so the sweep that
// completed as the operator interrupted the run is kept.
func (a *Archive) Send(ctx context.Context, result *spectrum.SweepResult) error {
	return a.store.StoreSweep(context.WithoutCancel(ctx), a.sessionID, result)
}
