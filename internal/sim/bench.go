// Package sim provides an in-process monochromator and power meter for dry
// runs. Both instruments share a Bench, so the simulated meter sees the
// light the simulated monochromator passes.
package sim

import (
	"math"
	"sync"
	"time"
)

// Config describes the simulated optical bench.
type Config struct {
	DipCenter     float64       `yaml:"dipCenter"`     // Notch center in nm
	DipWidth      float64       `yaml:"dipWidth"`      // Lorentzian half width at half maximum in nm
	DipDepth      float64       `yaml:"dipDepth"`      // Fraction of power removed at the center, 0..1
	BasePower     float64       `yaml:"basePower"`     // Transmitted power away from the notch in W
	Noise         float64       `yaml:"noise"`         // Relative standard deviation of each reading
	InvalidRate   float64       `yaml:"invalidRate"`   // Probability that a reading is NaN
	Drift         float64       `yaml:"drift"`         // Notch drift in nm per minute
	SlewRate      float64       `yaml:"slewRate"`      // Monochromator speed in nm per second
	GratingSwitch time.Duration `yaml:"gratingSwitch"` // Time to swap gratings
	Seed          uint64        `yaml:"seed"`          // Random seed, 0 picks one from the clock
}

// DefaultConfig is a 1550 nm grating notch.
func DefaultConfig() Config {
	return Config{
		DipCenter:     1550,
		DipWidth:      0.4,
		DipDepth:      0.9,
		BasePower:     1e-3,
		Noise:         0.01,
		InvalidRate:   0.02,
		Drift:         0.05,
		SlewRate:      200,
		GratingSwitch: 2 * time.Second,
	}
}

// Bench tracks where the monochromator points and how the notch moves.
type Bench struct {
	config  Config
	created time.Time

	mu       sync.Mutex
	from     float64
	to       float64
	departed time.Time
	arrives  time.Time
}

func NewBench(config Config) *Bench {
	now := time.Now()
	return &Bench{
		config:   config,
		created:  now,
		from:     config.DipCenter,
		to:       config.DipCenter,
		departed: now,
		arrives:  now,
	}
}

// MoveTo starts a move and returns when it will complete.
func (b *Bench) MoveTo(wavelength float64) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.from = b.position(now)
	b.to = wavelength
	b.departed = now

	travel := time.Duration(0)
	if b.config.SlewRate > 0 {
		travel = time.Duration(math.Abs(b.to-b.from) / b.config.SlewRate * float64(time.Second))
	}
	b.arrives = now.Add(travel)
	return b.arrives
}

// Wavelength returns the current monochromator output wavelength.
func (b *Bench) Wavelength() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.position(time.Now())
}

func (b *Bench) position(now time.Time) float64 {
	if !now.Before(b.arrives) {
		return b.to
	}
	total := b.arrives.Sub(b.departed)
	if total <= 0 {
		return b.to
	}
	frac := float64(now.Sub(b.departed)) / float64(total)
	return b.from + (b.to-b.from)*frac
}

// Transmission returns the noiseless power at a wavelength, now.
func (b *Bench) Transmission(wavelength float64) float64 {
	c := b.config
	center := c.DipCenter + c.Drift*time.Since(b.created).Minutes()
	gamma := max(c.DipWidth, 1e-6)

	d := wavelength - center
	lorentz := gamma * gamma / (d*d + gamma*gamma)
	return c.BasePower * (1 - c.DipDepth*lorentz)
}
