package sweep

import (
	"math"
	"testing"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

func makeTrace(start, step float64, powers ...float64) spectrum.Trace {
	trace := make(spectrum.Trace, len(powers))
	for i, p := range powers {
		trace[i] = spectrum.Point{Wavelength: start + float64(i)*step, Power: p}
	}
	return trace
}

func TestEstimateDip_Empty(t *testing.T) {
	for name, fn := range map[string]func(spectrum.Trace) spectrum.DipEstimate{
		"fit": EstimateDip,
		"raw": RawDip,
	} {
		t.Run(name, func(t *testing.T) {
			dip := fn(nil)
			if !math.IsNaN(dip.Wavelength) || !math.IsNaN(dip.Power) {
				t.Errorf("Expected NaN dip for empty trace, got %+v", dip)
			}
		})
	}
}

func TestSmooth_Endpoints(t *testing.T) {
	testCases := []struct {
		name     string
		y        []float64
		expected []float64
	}{
		{"single", []float64{4}, []float64{4}},
		{"pair", []float64{4, 1}, []float64{4, 1}},
		{"triple", []float64{3, 0, 6}, []float64{3, 3, 6}},
		{"five", []float64{9, 3, 6, 0, 9}, []float64{9, 6, 3, 5, 9}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sm := Smooth(tc.y)
			if len(sm) != len(tc.expected) {
				t.Fatalf("Expected %d values, got %d", len(tc.expected), len(sm))
			}
			for i := range tc.expected {
				if math.Abs(sm[i]-tc.expected[i]) > 1e-12 {
					t.Errorf("Index %d: expected %g, got %g", i, tc.expected[i], sm[i])
				}
			}
			if sm[0] != tc.y[0] || sm[len(sm)-1] != tc.y[len(tc.y)-1] {
				t.Error("Smoothing must not alter the first or last element")
			}
		})
	}
}

func TestSmooth_DoesNotModifyInput(t *testing.T) {
	y := []float64{1, 5, 1, 5}
	_ = Smooth(y)
	if y[1] != 5 || y[2] != 1 {
		t.Errorf("Input slice was modified: %v", y)
	}
}

func TestEstimateDip_ReportsUnsmoothedPower(t *testing.T) {
	trace := makeTrace(1550, 0.1, 10, 8, 2, 8, 10)

	dip := EstimateDip(trace)
	if dip.Wavelength != 1550.2 {
		t.Errorf("Expected dip at 1550.2 nm, got %.4f nm", dip.Wavelength)
	}
	if dip.Power != 2 {
		t.Errorf("Expected unsmoothed power 2, got %g", dip.Power)
	}
}

func TestEstimateDip_SuppressesSpike(t *testing.T) {
	// A single low outlier at index 1 next to the boundary, the real notch at index 5.
	trace := makeTrace(0, 1, 10, 1, 10, 10, 5, 4, 5, 10)

	raw := RawDip(trace)
	if raw.Wavelength != 1 {
		t.Errorf("Expected raw dip at the outlier (1), got %g", raw.Wavelength)
	}

	fit := EstimateDip(trace)
	if fit.Wavelength != 5 {
		t.Errorf("Expected fitted dip at the notch (5), got %g", fit.Wavelength)
	}
	if fit.Power != 4 {
		t.Errorf("Expected fitted power 4, got %g", fit.Power)
	}
}

func TestEstimateDip_AgreesWithRawForIsolatedMinimum(t *testing.T) {
	trace := makeTrace(1540, 0.5, 9, 8, 7, 6, 3, 6, 7, 8, 9)

	raw := RawDip(trace)
	fit := EstimateDip(trace)
	if raw != fit {
		t.Errorf("Expected raw and fitted dip to agree, raw=%+v fit=%+v", raw, fit)
	}
}

func TestEstimateDip_TiesResolveToFirst(t *testing.T) {
	trace := makeTrace(0, 1, 5, 5, 5, 5)

	if dip := EstimateDip(trace); dip.Wavelength != 0 {
		t.Errorf("Expected first index on ties, got %g", dip.Wavelength)
	}
	if dip := RawDip(trace); dip.Wavelength != 0 {
		t.Errorf("Expected first index on ties, got %g", dip.Wavelength)
	}
}

func TestEstimateDip_BoundaryMinimum(t *testing.T) {
	trace := makeTrace(0, 1, 1, 5)
	if dip := EstimateDip(trace); dip.Wavelength != 0 || dip.Power != 1 {
		t.Errorf("Expected dip at 0 with power 1, got %+v", dip)
	}
}

func TestEstimateDip_NaNPowers(t *testing.T) {
	nan := math.NaN()

	t.Run("all NaN", func(t *testing.T) {
		trace := makeTrace(0, 1, nan, nan, nan)
		if dip := EstimateDip(trace); dip.IsValid() {
			t.Errorf("Expected NaN dip, got %+v", dip)
		}
		if dip := RawDip(trace); dip.IsValid() {
			t.Errorf("Expected NaN raw dip, got %+v", dip)
		}
	})

	t.Run("NaN is skipped", func(t *testing.T) {
		trace := makeTrace(0, 1, 9, 9, nan, 9, 9, 3, 2, 3, 9)

		raw := RawDip(trace)
		if raw.Wavelength != 6 || raw.Power != 2 {
			t.Errorf("Expected raw dip at 6, got %+v", raw)
		}

		fit := EstimateDip(trace)
		if !fit.IsValid() {
			t.Fatalf("Expected valid fitted dip, got %+v", fit)
		}
		if fit.Wavelength != 6 || fit.Power != 2 {
			t.Errorf("Expected fitted dip at 6, got %+v", fit)
		}
	})
}
