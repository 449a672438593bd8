package app

import (
	"log/slog"
)

// releaser runs cleanup steps in reverse order of acquisition. Every step
// runs even when an earlier one fails; failures are logged, not returned.
type releaser struct {
	steps  []releaseStep
	logger *slog.Logger
}

type releaseStep struct {
	name string
	fn   func() error
}

func newReleaser(logger *slog.Logger) *releaser {
	return &releaser{logger: logger}
}

func (r *releaser) add(name string, fn func() error) {
	r.steps = append(r.steps, releaseStep{name: name, fn: fn})
}

func (r *releaser) release() {
	for i := len(r.steps) - 1; i >= 0; i-- {
		step := r.steps[i]
		if err := step.fn(); err != nil {
			r.logger.Warn(step.name+" failed", slog.String("error", err.Error()))
			continue
		}
		r.logger.Debug(step.name)
	}
	r.steps = nil
}
