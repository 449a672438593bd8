package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme represents a predefined color scheme for power visualization.
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white
	EnhancedTheme  ColorTheme = "enhanced"  // Black to blue to cyan to yellow to red

	DefaultColorMapSize = 256
)

var (
	// InvalidPowerColor fills points without a usable reading
	InvalidPowerColor color.Color = color.Black

	// DipMarkerColor marks the fitted dip of each sweep
	DipMarkerColor color.Color = color.White
)

// ColorMapper provides power-to-color mapping from a pre-computed table
type ColorMapper struct {
	colorMap      []color.Color
	theme         func(float64) color.Color
	themeName     ColorTheme
	size          int
	powerPerIndex float64
	boundsMin     float64
}

// NewColorMapper creates a new color mapper with the default table size.
func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

func NewColorMapperWithSize(theme ColorTheme, bounds PowerBounds, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultColorMapSize
	}

	cm := &ColorMapper{
		colorMap:  make([]color.Color, size),
		theme:     getColorTheme(theme),
		themeName: theme,
		size:      size,
	}
	for i := 0; i < size; i++ {
		cm.colorMap[i] = cm.theme(float64(i) / float64(size-1))
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds updates the power range covered by the table
func (cm *ColorMapper) UpdateBounds(bounds PowerBounds) {
	span := bounds.Max - bounds.Min
	if span <= 0 || math.IsNaN(span) {
		span = 1
	}
	cm.boundsMin = bounds.Min
	cm.powerPerIndex = span / float64(cm.size-1)
}

// GetColor returns a color for the given power value in dBm
func (cm *ColorMapper) GetColor(power *float64) color.Color {
	if power == nil {
		return InvalidPowerColor
	}

	index := int((*power - cm.boundsMin) / cm.powerPerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= cm.size {
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

// ThemeName returns the current color theme name
func (cm *ColorMapper) ThemeName() ColorTheme {
	return cm.themeName
}

func hsv(h, s, v float64) color.Color {
	return colorful.Hsv(math.Mod(h+360, 360), clamp(s), clamp(v)).Clamped()
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return func(power float64) color.Color {
			return hsv(240-(power*240), 0.9+(power*0.1), 0.25+0.75*math.Pow(power, 0.7))
		}

	case GrayscaleTheme:
		return func(power float64) color.Color {
			v := uint8(math.Pow(power, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case JungleTheme:
		return func(power float64) color.Color {
			return hsv(120-(power*60), 1.0, 0.3+(math.Pow(power, 0.6)*0.7))
		}

	case ThermalTheme:
		return func(power float64) color.Color {
			if power < 0.33 {
				return color.RGBA{R: uint8((power * 3) * 255), A: 255}
			}
			if power < 0.66 {
				return color.RGBA{R: 255, G: uint8(((power - 0.33) * 3) * 255), A: 255}
			}
			return color.RGBA{R: 255, G: 255, B: uint8(clamp((power-0.66)*3) * 255), A: 255}
		}

	case MarineTheme:
		return func(power float64) color.Color {
			return hsv(240-(power*60), 1.0-(power*0.8), 0.3+(math.Pow(power, 0.6)*0.7))
		}

	default:
		return func(power float64) color.Color {
			power = clamp(power)
			enhanced := math.Pow(power, 0.7)

			switch {
			case power < 0.25:
				return hsv(240, 1.0, enhanced*4)
			case power < 0.5:
				return hsv(240-((power-0.25)*240), 1.0, enhanced*1.5)
			case power < 0.75:
				p := (power - 0.5) * 4
				return hsv(180-(p*120), 1.0, enhanced*1.5)
			default:
				p := (power - 0.75) * 4
				return hsv(60-(p*60), 1.0, 1.0)
			}
		}
	}
}
