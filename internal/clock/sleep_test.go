package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSleep(t *testing.T) {
	testCases := []struct {
		name     string
		d        time.Duration
		cancel   bool
		expected error
	}{
		{"elapses", 5 * time.Millisecond, false, nil},
		{"zero duration", 0, false, nil},
		{"cancelled", time.Hour, true, context.Canceled},
		{"zero duration cancelled", 0, true, context.Canceled},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tc.cancel {
				cancel()
			}

			start := time.Now()
			err := Sleep(ctx, tc.d)
			if !errors.Is(err, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, err)
			}
			if tc.cancel && time.Since(start) > time.Second {
				t.Errorf("Expected early return on cancel, took %s", time.Since(start))
			}
			if !tc.cancel && time.Since(start) < tc.d {
				t.Errorf("Expected to wait %s, returned after %s", tc.d, time.Since(start))
			}
		})
	}
}
