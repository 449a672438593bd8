package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roman-kulish/dip-sweep/internal/meter"
)

// MeterID identifies the simulated power meter
const MeterID = "sim-meter"

// MeterDriver discovers a single simulated meter reading the bench.
type MeterDriver struct {
	bench *Bench
}

func NewMeterDriver(bench *Bench) *MeterDriver {
	return &MeterDriver{bench: bench}
}

func (d *MeterDriver) Discover(context.Context) ([]string, error) {
	return []string{MeterID}, nil
}

func (d *MeterDriver) Open(_ context.Context, id string) (meter.Handle, error) {
	if id != MeterID {
		return nil, fmt.Errorf("%s: %w", id, meter.ErrNoDevice)
	}

	seed := d.bench.config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &meterHandle{
		bench: d.bench,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

type meterHandle struct {
	bench *Bench

	mu        sync.Mutex
	rng       *rand.Rand
	streaming bool
	closed    bool
}

func (h *meterHandle) StartStream(channel int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("channel %d: meter closed", channel)
	}
	h.streaming = true
	return nil
}

func (h *meterHandle) StopStream(int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.streaming = false
	return nil
}

func (h *meterHandle) Latest(int) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.streaming {
		return math.NaN(), meter.ErrNotStreaming
	}

	c := h.bench.config
	if c.InvalidRate > 0 && h.rng.Float64() < c.InvalidRate {
		return math.NaN(), nil
	}

	p := h.bench.Transmission(h.bench.Wavelength())
	return p * (1 + c.Noise*h.rng.NormFloat64()), nil
}

func (h *meterHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.streaming = false
	return nil
}
