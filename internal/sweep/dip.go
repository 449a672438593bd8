package sweep

import (
	"math"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

//	-----\                       /------------ wavelength vs power
//	      \                     /
//	       \                   /
//	        \                 /
//	         \               /
//	          \_____   _____/
//	                \ /
//	                 ^ dip
//
// The dip is located on a 3-point moving average of the trace so that a
// single noisy sample cannot pull the minimum away from the notch.

// Smooth returns a copy of y with every interior sample replaced by the mean
// of itself and both neighbours. The first and last samples are never changed.
func Smooth(y []float64) []float64 {
	n := len(y)
	sm := make([]float64, n)
	copy(sm, y)

	for i := 1; i < n-1; i++ {
		sm[i] = (y[i-1] + y[i] + y[i+1]) / 3.0
	}
	return sm
}

// EstimateDip returns the trace point at the minimum of the smoothed power.
// The reported power is the original, unsmoothed value at that index. Ties
// resolve to the lowest index. An empty trace, or one where no smoothed
// value is a number, yields NaN for both fields.
func EstimateDip(trace spectrum.Trace) spectrum.DipEstimate {
	idx := argmin(Smooth(trace.Powers()))
	if idx < 0 {
		return noDip()
	}

	return spectrum.DipEstimate{
		Wavelength: trace[idx].Wavelength,
		Power:      trace[idx].Power,
	}
}

// RawDip returns the trace point with the lowest power, ignoring NaN.
func RawDip(trace spectrum.Trace) spectrum.DipEstimate {
	idx := argmin(trace.Powers())
	if idx < 0 {
		return noDip()
	}

	return spectrum.DipEstimate{
		Wavelength: trace[idx].Wavelength,
		Power:      trace[idx].Power,
	}
}

// argmin returns the index of the first minimum, skipping NaN values,
// or -1 if there is none.
func argmin(v []float64) int {
	idx := -1
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		if idx < 0 || x < v[idx] {
			idx = i
		}
	}
	return idx
}

func noDip() spectrum.DipEstimate {
	return spectrum.DipEstimate{
		Wavelength: math.NaN(),
		Power:      math.NaN(),
	}
}
