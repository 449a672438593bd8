package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"

	defaultXScale = 4
	defaultYScale = 4
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	TimeZone      *time.Location
	XScale        int // Pixels per trace point
	YScale        int // Pixels per sweep
	MinWavelength *float64
	MaxWavelength *float64
	MinTimestamp  *time.Time
	MaxTimestamp  *time.Time
	MinPower      *float64 // dBm
	MaxPower      *float64 // dBm
	NoAnnotations bool
	NoDipMarkers  bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
	EnhancedTheme:  {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    ClassicTheme,
		TimeZone: time.Local,
		XScale:   defaultXScale,
		YScale:   defaultYScale,
	}
}

// NewConfigFromCLI parses the command line arguments, without the program
// name. Usage is written to output when the arguments are invalid.
func NewConfigFromCLI(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()
	fs := flag.NewFlagSet("heatmap", flag.ContinueOnError)
	fs.SetOutput(output)

	var imageFormat, theme, tz, from, to string
	var minWl, maxWl, minPower, maxPower float64
	fs.StringVar(&c.DBPath, "db", "", "Path to the sweep archive")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(ClassicTheme), "Color theme. [classic, grayscale, jungle, thermal, marine, enhanced]")
	fs.StringVar(&tz, "tz", "Local", "Time zone of the time scale, e.g. UTC or Europe/Berlin")
	fs.IntVar(&c.XScale, "x-scale", defaultXScale, "Pixels per wavelength point")
	fs.IntVar(&c.YScale, "y-scale", defaultYScale, "Pixels per sweep")
	fs.Float64Var(&minWl, "min-wl", 0, "Lowest wavelength to render in nm")
	fs.Float64Var(&maxWl, "max-wl", 0, "Highest wavelength to render in nm")
	fs.StringVar(&from, "from", "", "Render sweeps started at or after this time (YYYY-MM-DD HH:MM:SS, UTC)")
	fs.StringVar(&to, "to", "", "Render sweeps started at or before this time (YYYY-MM-DD HH:MM:SS, UTC)")
	fs.Float64Var(&minPower, "min-power", 0, "Define a manual minimum power in dBm (format nn.n)")
	fs.Float64Var(&maxPower, "max-power", 0, "Define a manual maximum power in dBm (format nn.n)")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and wavelength scales")
	fs.BoolVar(&c.NoDipMarkers, "no-dips", false, "Do not mark the fitted dip of each sweep")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-wl":
			c.MinWavelength = &minWl
		case "max-wl":
			c.MaxWavelength = &maxWl
		case "min-power":
			c.MinPower = &minPower
		case "max-power":
			c.MaxPower = &maxPower
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok = validThemes[ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	} else if c.XScale < 1 || c.YScale < 1 {
		err = errors.New("scales must be at least 1")
	} else if c.MinPower != nil && c.MaxPower != nil && *c.MinPower >= *c.MaxPower {
		err = errors.New("min-power must be below max-power")
	} else if c.TimeZone, err = time.LoadLocation(tz); err != nil {
		err = fmt.Errorf("invalid time zone: %w", err)
	} else if c.MinTimestamp, err = parseTimestamp("from", from); err == nil {
		c.MaxTimestamp, err = parseTimestamp("to", to)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func parseTimestamp(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateTime, value, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid %s time: %w", name, err)
	}
	return &t, nil
}
