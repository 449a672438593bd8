package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

// InputError is an invalid sweep parameter typed by the operator or given
// on the command line. It is reported before any device is opened.
type InputError struct {
	Field string
	Value string
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Flags are sweep parameters from the command line. Empty strings are unset.
type Flags struct {
	Start   string
	End     string
	Step    string
	Grating string
}

// Apply overrides the configured sweep parameters with the set flags.
func (f Flags) Apply(c *SweepConfig) error {
	for _, v := range []struct {
		field string
		value string
		dst   **float64
	}{
		{"start wavelength", f.Start, &c.Start},
		{"end wavelength", f.End, &c.End},
		{"step size", f.Step, &c.Step},
	} {
		if v.value == "" {
			continue
		}
		n, err := parseNumber(v.field, v.value)
		if err != nil {
			return err
		}
		*v.dst = &n
	}

	if f.Grating != "" {
		g, err := parseGrating(f.Grating)
		if err != nil {
			return err
		}
		c.Grating = &g
	}
	return nil
}

// Prompter asks the operator for missing sweep parameters.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in. The same reader should later feed the
// keyboard stop monitor so no typed input is lost between the two.
func NewPrompter(in *bufio.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out}
}

func (p *Prompter) ask(question string) (string, error) {
	if _, err := fmt.Fprint(p.out, question); err != nil {
		return "", err
	}

	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// ResolveSweep completes the sweep parameters, prompting for every unset
// wavelength and for the grating, and validates the result.
func ResolveSweep(c *SweepConfig, p *Prompter) (spectrum.SweepConfig, error) {
	for _, v := range []struct {
		field    string
		question string
		dst      **float64
	}{
		{"start wavelength", "Start wavelength (nm): ", &c.Start},
		{"end wavelength", "End wavelength (nm): ", &c.End},
		{"step size", "Step size (nm): ", &c.Step},
	} {
		if *v.dst != nil {
			continue
		}
		if p == nil {
			return spectrum.SweepConfig{}, &InputError{Field: v.field, Err: errors.New("not set")}
		}

		answer, err := p.ask(v.question)
		if err != nil {
			return spectrum.SweepConfig{}, err
		}
		n, err := parseNumber(v.field, answer)
		if err != nil {
			return spectrum.SweepConfig{}, err
		}
		*v.dst = &n
	}

	if c.Grating == nil {
		g := DefaultGrating
		if p != nil {
			answer, err := p.ask("Grating number [1/2] (Enter for 2): ")
			if err != nil {
				return spectrum.SweepConfig{}, err
			}
			if answer != "" {
				if g, err = parseGrating(answer); err != nil {
					return spectrum.SweepConfig{}, err
				}
			}
		}
		c.Grating = &g
	}

	config := spectrum.SweepConfig{
		Start:          *c.Start,
		End:            *c.End,
		Step:           *c.Step,
		Grating:        *c.Grating,
		Dwell:          c.Dwell,
		SamplesPerStep: c.SamplesPerStep,
	}
	if err := config.Validate(); err != nil {
		return spectrum.SweepConfig{}, &InputError{Field: "sweep", Value: fmt.Sprintf("%g..%g/%g", config.Start, config.End, config.Step), Err: err}
	}
	return config, nil
}

func parseNumber(field, s string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &InputError{Field: field, Value: s, Err: errors.New("not a number")}
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, &InputError{Field: field, Value: s, Err: errors.New("not a finite number")}
	}
	return n, nil
}

func parseGrating(s string) (int, error) {
	g, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || (g != spectrum.GratingVisible && g != spectrum.GratingNIR) {
		return 0, &InputError{Field: "grating", Value: s, Err: errors.New("must be 1 or 2")}
	}
	return g, nil
}
