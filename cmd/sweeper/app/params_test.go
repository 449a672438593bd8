package app

import (
	"bufio"
	"errors"
	"strings"
	"testing"
)

func ptr[T any](v T) *T {
	return &v
}

func TestFlags_Apply(t *testing.T) {
	c := SweepConfig{Start: ptr(1500.0)}
	err := Flags{Start: "1540", Step: "0.5", Grating: "1"}.Apply(&c)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if *c.Start != 1540 {
		t.Errorf("Expected flag to override start, got %v", *c.Start)
	}
	if c.End != nil {
		t.Errorf("Expected end unset, got %v", *c.End)
	}
	if *c.Step != 0.5 {
		t.Errorf("Expected step 0.5, got %v", *c.Step)
	}
	if *c.Grating != 1 {
		t.Errorf("Expected grating 1, got %d", *c.Grating)
	}
}

func TestFlags_ApplyInvalid(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		field string
	}{
		{"text start", Flags{Start: "abc"}, "start wavelength"},
		{"infinite end", Flags{End: "Inf"}, "end wavelength"},
		{"nan step", Flags{Step: "NaN"}, "step size"},
		{"grating 3", Flags{Grating: "3"}, "grating"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c SweepConfig
			err := tt.flags.Apply(&c)

			var inputErr *InputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("Expected InputError, got %v", err)
			}
			if inputErr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, inputErr.Field)
			}
		})
	}
}

func TestResolveSweep_Prompts(t *testing.T) {
	var out strings.Builder
	p := NewPrompter(bufio.NewReader(strings.NewReader("1548\n1552\n0.5\n\n")), &out)

	c := SweepConfig{Dwell: DefaultDwell, SamplesPerStep: 3}
	config, err := ResolveSweep(&c, p)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if config.Start != 1548 || config.End != 1552 || config.Step != 0.5 {
		t.Errorf("Expected 1548..1552 by 0.5, got %v..%v by %v", config.Start, config.End, config.Step)
	}
	if config.Grating != DefaultGrating {
		t.Errorf("Expected default grating %d, got %d", DefaultGrating, config.Grating)
	}
	if config.SamplesPerStep != 3 {
		t.Errorf("Expected 3 samples per step, got %d", config.SamplesPerStep)
	}
	for _, q := range []string{"Start wavelength (nm): ", "End wavelength (nm): ", "Step size (nm): ", "Grating number [1/2] (Enter for 2): "} {
		if !strings.Contains(out.String(), q) {
			t.Errorf("Expected prompt %q", q)
		}
	}
}

func TestResolveSweep_OnlyMissing(t *testing.T) {
	var out strings.Builder
	p := NewPrompter(bufio.NewReader(strings.NewReader("1\n")), &out)

	c := SweepConfig{Start: ptr(500.0), End: ptr(510.0), Step: ptr(1.0), SamplesPerStep: 1}
	config, err := ResolveSweep(&c, p)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if strings.Contains(out.String(), "wavelength") {
		t.Errorf("Expected no wavelength prompt, got %q", out.String())
	}
	if config.Grating != 1 {
		t.Errorf("Expected grating 1, got %d", config.Grating)
	}
}

func TestResolveSweep_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not a number", "fifteen\n"},
		{"start after end", "1560\n1550\n1\n\n"},
		{"zero step", "1550\n1560\n0\n\n"},
		{"bad grating", "1550\n1560\n1\n7\n"},
		{"no input", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			p := NewPrompter(bufio.NewReader(strings.NewReader(tt.input)), &out)

			c := SweepConfig{SamplesPerStep: 1}
			_, err := ResolveSweep(&c, p)

			var inputErr *InputError
			if !errors.As(err, &inputErr) {
				t.Errorf("Expected InputError, got %v", err)
			}
		})
	}
}

func TestResolveSweep_NoPrompter(t *testing.T) {
	c := SweepConfig{Start: ptr(1500.0), End: ptr(1510.0), SamplesPerStep: 1}
	if _, err := ResolveSweep(&c, nil); err == nil {
		t.Fatal("Expected error for unset step, got nil")
	}

	c.Step = ptr(2.0)
	config, err := ResolveSweep(&c, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if config.Grating != DefaultGrating {
		t.Errorf("Expected default grating %d, got %d", DefaultGrating, config.Grating)
	}
}
