package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi              = 120.0
	fontSize         = 9.0
	tickMarkHeight   = 5
	pixelsPerLabel   = 150.0
	minLabelSpacing  = 40 // Vertical pixels between time labels
	defaultScaleSize = 1

	defaultTopBorder    = 40
	defaultLeftBorder   = 100
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the spectrum
type BorderConfig struct {
	Top    int // Space for wavelength scale
	Left   int // Space for time scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for spectrum visualization
type RenderConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location

	FontSize      float64
	ColorTheme    ColorTheme
	ColorMapSize  int
	XScale        int // Pixels per trace point
	YScale        int // Pixels per sweep
	NoAnnotations bool
	NoDipMarkers  bool

	BorderConfig BorderConfig
}

// SpectrumRenderer draws a session as a wavelength by time heatmap
type SpectrumRenderer struct {
	colorMap *ColorMapper
	config   RenderConfig
}

func NewSpectrumRenderer(config RenderConfig) (*SpectrumRenderer, error) {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.XScale < 1 {
		config.XScale = defaultScaleSize
	}
	if config.YScale < 1 {
		config.YScale = defaultScaleSize
	}
	if config.ColorMapSize == 0 {
		config.ColorMapSize = DefaultColorMapSize
	}

	if config.NoAnnotations {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	return &SpectrumRenderer{config: config}, nil
}

// Render creates an image of the spectrum data with annotations
func (r *SpectrumRenderer) Render(spec *SpectrumData) (*image.RGBA, error) {
	if spec.Width == 0 || spec.Height == 0 {
		return nil, fmt.Errorf("no sweeps to render")
	}

	b := r.config.BorderConfig
	areaWidth := spec.Width * r.config.XScale
	areaHeight := spec.Height * r.config.YScale

	img := image.NewRGBA(image.Rect(0, 0, areaWidth+b.Left+b.Right, areaHeight+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	spectrumArea := image.Rect(b.Left, b.Top, b.Left+areaWidth, b.Top+areaHeight)

	bounds := spec.BoundsTracker.Current()
	if r.colorMap == nil {
		r.colorMap = NewColorMapperWithSize(r.config.ColorTheme, bounds, r.config.ColorMapSize)
	} else {
		r.colorMap.UpdateBounds(bounds)
	}

	if !r.config.NoAnnotations {
		ann, err := newAnnotator(annotatorConfig{
			TimeFormat:     r.config.TimeFormat,
			DatetimeFormat: r.config.DatetimeFormat,
			Location:       r.config.Location,
			FontSize:       r.config.FontSize,
			Borders:        b,
			XScale:         r.config.XScale,
			YScale:         r.config.YScale,
		})
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, spec); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	r.renderSpectrum(img, spectrumArea, spec)
	if !r.config.NoDipMarkers {
		r.renderDips(img, spectrumArea, spec)
	}

	return img, nil
}

func (r *SpectrumRenderer) cell(area image.Rectangle, col, row int) image.Rectangle {
	x := area.Min.X + col*r.config.XScale
	y := area.Min.Y + row*r.config.YScale
	return image.Rect(x, y, x+r.config.XScale, y+r.config.YScale)
}

// renderSpectrum fills the area row by row. Columns follow the wavelength,
// so sweeps with different grids still line up.
func (r *SpectrumRenderer) renderSpectrum(img *image.RGBA, area image.Rectangle, spec *SpectrumData) {
	draw.Draw(img, area, image.NewUniform(InvalidPowerColor), image.Point{}, draw.Src)

	for y, row := range spec.Rows {
		for i, power := range row.Powers {
			if power == nil {
				continue
			}
			c := r.cell(area, spec.Column(row.Wavelengths[i]), y)
			draw.Draw(img, c, image.NewUniform(r.colorMap.GetColor(power)), image.Point{}, draw.Src)
		}
	}
}

// renderDips draws a one pixel wide line through the middle of the fitted
// dip cell of every sweep.
func (r *SpectrumRenderer) renderDips(img *image.RGBA, area image.Rectangle, spec *SpectrumData) {
	for y, row := range spec.Rows {
		if math.IsNaN(row.Dip) {
			continue
		}
		c := r.cell(area, spec.Column(row.Dip), y)
		x := c.Min.X + r.config.XScale/2
		for py := c.Min.Y; py < c.Max.Y; py++ {
			img.Set(x, py, DipMarkerColor)
		}
	}
}

type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
	XScale         int
	YScale         int
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, spec *SpectrumData) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *SpectrumData) error
	}{
		{"drawing wavelength scale", a.drawWavelengthScale},
		{"drawing time scale", a.drawTimeScale},
		{"drawing info bar", a.drawInfoBar},
	}
	for _, op := range ops {
		if err := op.fn(img, spec); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawWavelengthScale(img *image.RGBA, spec *SpectrumData) error {
	span := spec.WavelengthMax - spec.WavelengthMin
	if span <= 0 {
		return nil
	}

	areaWidth := spec.Width * a.config.XScale
	step := calculateNiceWavelengthStep(span, areaWidth)
	start := math.Ceil(spec.WavelengthMin/step) * step
	textY := a.config.Borders.Top - a.fontHeight()/2

	for wl := start; wl <= spec.WavelengthMax+step/1e6; wl += step {
		x := a.config.Borders.Left + spec.Column(wl)*a.config.XScale + a.config.XScale/2

		for y := a.config.Borders.Top - tickMarkHeight; y < a.config.Borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatWavelength(wl, step)
		width := font.MeasureString(a.fontFace, label)
		if _, err := a.context.DrawString(label, freetype.Pt(x-width.Round()/2, textY)); err != nil {
			return fmt.Errorf("drawing wavelength label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, spec *SpectrumData) error {
	every := max(1, int(math.Ceil(float64(minLabelSpacing)/float64(a.config.YScale))))
	descent := a.fontFace.Metrics().Descent.Round()

	for row := 0; row < len(spec.Rows); row += every {
		imgY := a.config.Borders.Top + row*a.config.YScale + a.config.YScale/2

		for x := a.config.Borders.Left - tickMarkHeight; x < a.config.Borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		label := spec.Rows[row].Started.In(a.config.Location).Format(a.config.TimeFormat)
		textY := imgY + a.fontHeight()/2 - descent
		if _, err := a.context.DrawString(label, freetype.Pt(10, textY)); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, spec *SpectrumData) error {
	var sb strings.Builder

	bounds := spec.BoundsTracker.Current()
	sb.WriteString(fmt.Sprintf("Wavelength: %.3f - %.3f nm", spec.WavelengthMin, spec.WavelengthMax))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		spec.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		spec.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Sweeps: %s", humanize.Comma(int64(spec.Height))))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Power: %.1f to %.1f dBm", bounds.Min, bounds.Max))

	descent := a.fontFace.Metrics().Descent.Round()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-a.fontHeight())/2 - descent

	if _, err := a.context.DrawString(sb.String(), freetype.Pt(10, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// calculateNiceWavelengthStep picks a 1-2-5 step giving roughly one label
// per pixelsPerLabel pixels.
func calculateNiceWavelengthStep(span float64, width int) float64 {
	desiredSteps := math.Max(1, float64(width)/pixelsPerLabel)
	targetStep := span / desiredSteps

	for exp := -3; exp <= 3; exp++ {
		decade := math.Pow(10, float64(exp))
		for _, m := range []float64{1, 2, 5} {
			if step := m * decade; step >= targetStep {
				return step
			}
		}
	}
	return span
}

// formatWavelength prints enough decimals to tell neighbouring labels apart
func formatWavelength(wl, step float64) string {
	decimals := max(0, int(math.Ceil(-math.Log10(step))))
	return fmt.Sprintf("%.*f", decimals, wl)
}
