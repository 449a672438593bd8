package app

import "math"

const (
	defaultMinPower = -60.0 // dBm
	defaultMaxPower = 0.0   // dBm

	// Narrowest span the bounds are widened to, in dB. A notch is usually
	// 10 to 20 dB deep.
	minimumRange = 20

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20
)

// PowerBounds represents the calculated power boundaries
type PowerBounds struct {
	Min  float64 // 5th percentile power level in dBm
	Max  float64 // 95th percentile power level in dBm
	Mean float64 // Mean power level in dBm
}

func defaultPowerBounds() PowerBounds {
	return PowerBounds{
		Min:  defaultMinPower,
		Max:  defaultMaxPower,
		Mean: (defaultMinPower + defaultMaxPower) / 2,
	}
}

// ToDBm converts a reading in watts to dBm. Readings that cannot be shown,
// NaN or not positive, return nil.
func ToDBm(watts float64) *float64 {
	if math.IsNaN(watts) || math.IsInf(watts, 0) || watts <= 0 {
		return nil
	}
	dbm := 10 * math.Log10(watts*1e3)
	return &dbm
}

// PowerHistogram maintains a histogram of power values with 1dB bins
type PowerHistogram struct {
	bins       map[int]uint32 // Map of bin index to count
	totalCount uint64
	minBin     int
	maxBin     int
}

func NewPowerHistogram() *PowerHistogram {
	return &PowerHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

func getBinIndex(power float64) int {
	return int(math.Floor(power))
}

// scaleDown halves every bin once a counter is about to overflow
func (h *PowerHistogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin := range h.bins {
		h.bins[bin] /= 2
		if h.bins[bin] == 0 {
			delete(h.bins, bin)
			continue
		}
		h.minBin = min(h.minBin, bin)
		h.maxBin = max(h.maxBin, bin)
	}
	h.totalCount /= 2
}

// Update adds a power reading in dBm. Nil readings are ignored.
func (h *PowerHistogram) Update(power *float64) {
	if power == nil {
		return
	}

	bin := getBinIndex(*power)
	if h.bins[bin] == math.MaxUint32 || h.totalCount == math.MaxUint64 {
		h.scaleDown()
	}

	h.bins[bin]++
	h.totalCount++

	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

// Count returns the number of readings in the histogram.
func (h *PowerHistogram) Count() uint64 {
	return h.totalCount
}

// GetPercentileBounds returns power bounds based on percentiles
func (h *PowerHistogram) GetPercentileBounds() PowerBounds {
	if h.totalCount < minimumSampleCount {
		return defaultPowerBounds()
	}

	target5th := h.totalCount * 5 / 100

	var count uint64
	var min5th, max95th int

	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target5th {
			min5th = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target5th {
			max95th = bin + 1 // upper edge of the bin
			break
		}
	}

	var sumProduct float64
	for bin, n := range h.bins {
		sumProduct += (float64(bin) + 0.5) * float64(n)
	}
	mean := sumProduct / float64(h.totalCount)

	if max95th-min5th < minimumRange {
		center := (max95th + min5th) / 2
		min5th = center - minimumRange/2
		max95th = center + minimumRange/2
	}

	margin := (max95th - min5th) / 10
	return PowerBounds{
		Min:  float64(min5th - margin),
		Max:  float64(max95th + margin),
		Mean: mean,
	}
}

// SmoothBounds represents a smoothed version of the histogram bounds
type SmoothBounds struct {
	hist    *PowerHistogram
	alpha   float64 // Smoothing factor (0-1)
	current PowerBounds
}

func NewSmoothBounds(alpha float64) *SmoothBounds {
	return &SmoothBounds{
		hist:    NewPowerHistogram(),
		alpha:   alpha,
		current: defaultPowerBounds(),
	}
}

// Update adds new power reading and returns smoothed bounds
func (s *SmoothBounds) Update(power *float64) PowerBounds {
	if power == nil {
		return s.current
	}

	s.hist.Update(power)

	// Snap to the first real bounds instead of easing away from the defaults
	newBounds := s.hist.GetPercentileBounds()
	if s.hist.Count() == minimumSampleCount {
		s.current = newBounds
		return s.current
	}

	s.current.Min = s.current.Min*(1-s.alpha) + newBounds.Min*s.alpha
	s.current.Max = s.current.Max*(1-s.alpha) + newBounds.Max*s.alpha
	s.current.Mean = newBounds.Mean

	return s.current
}

// Current returns the current smoothed power bounds
func (s *SmoothBounds) Current() PowerBounds {
	return s.current
}

// Override replaces the computed bounds with manual limits. Nil keeps the
// computed value.
func (s *SmoothBounds) Override(minPower, maxPower *float64) {
	if minPower != nil {
		s.current.Min = *minPower
	}
	if maxPower != nil {
		s.current.Max = *maxPower
	}
}
