// Package clock holds timing helpers shared by the instrument loops.
package clock

import (
	"context"
	"time"
)

// Sleep waits for d or until the context is done. A non-positive d only
// reports the context error.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
