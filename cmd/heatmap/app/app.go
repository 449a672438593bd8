package app

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/dip-sweep/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	spec, err := readSpectrum(ctx, store, config, logger)
	if err != nil {
		return err
	}

	img, err := renderSpectrum(spec, config, logger)
	if err != nil {
		return err
	}

	return writeImage(config.OutputFile, config.Format, img)
}

func readerOptions(config *Config) ([]storage.ReaderOption, []any) {
	var opts []storage.ReaderOption
	var filters []any

	if config.MinWavelength != nil || config.MaxWavelength != nil {
		minWl, maxWl := 0.0, math.MaxFloat64
		if config.MinWavelength != nil {
			minWl = *config.MinWavelength
			filters = append(filters, slog.String("minWavelength", fmt.Sprintf("%0.3fnm", minWl)))
		}
		if config.MaxWavelength != nil {
			maxWl = *config.MaxWavelength
			filters = append(filters, slog.String("maxWavelength", fmt.Sprintf("%0.3fnm", maxWl)))
		}
		opts = append(opts, storage.WithWavelengthRange(minWl, maxWl))
	}

	if config.MinTimestamp != nil || config.MaxTimestamp != nil {
		from, to := time.Time{}, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
		if config.MinTimestamp != nil {
			from = config.MinTimestamp.UTC()
			filters = append(filters, slog.String("minTimestamp", from.Format(time.DateTime)))
		}
		if config.MaxTimestamp != nil {
			to = config.MaxTimestamp.UTC()
			filters = append(filters, slog.String("maxTimestamp", to.Format(time.DateTime)))
		}
		opts = append(opts, storage.WithTimeRange(from, to))
	}

	return opts, filters
}

func readSpectrum(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) (*SpectrumData, error) {
	opts, filters := readerOptions(config)
	logger.Info("iterator configuration", filters...)

	iter, err := store.ReadSweeps(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	session := iter.Session()
	logger.Info("reading sweeps",
		slog.Int64("session", session.ID),
		slog.String("monochromator", session.Monochromator),
		slog.String("meter", session.Meter),
		slog.String("started", humanize.Time(session.StartTime)))

	spec := NewSpectrumData(NewSmoothBounds(0.3))
	for iter.Next(ctx) {
		spec.Update(iter.Current())
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}
	if spec.Height == 0 {
		return nil, fmt.Errorf("session %d has no sweeps to render: %w", config.SessionID, storage.ErrNoData)
	}

	spec.BoundsTracker.Override(config.MinPower, config.MaxPower)
	bounds := spec.BoundsTracker.Current()

	logger.Info("finished reading sweeps",
		slog.Group("stats",
			slog.String("sweeps", humanize.Comma(int64(spec.Height))),
			slog.String("minTimestamp", spec.TimestampStart.Local().Format(time.DateTime)),
			slog.String("maxTimestamp", spec.TimestampEnd.Local().Format(time.DateTime)),
			slog.String("minWavelength", fmt.Sprintf("%0.3fnm", spec.WavelengthMin)),
			slog.String("maxWavelength", fmt.Sprintf("%0.3fnm", spec.WavelengthMax)),
			slog.String("minPower", fmt.Sprintf("%0.1fdBm", bounds.Min)),
			slog.String("maxPower", fmt.Sprintf("%0.1fdBm", bounds.Max)),
		))

	return spec, nil
}

func renderSpectrum(spec *SpectrumData, config *Config, logger *slog.Logger) (*image.RGBA, error) {
	renderer, err := NewSpectrumRenderer(RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		XScale:        config.XScale,
		YScale:        config.YScale,
		NoAnnotations: config.NoAnnotations,
		NoDipMarkers:  config.NoDipMarkers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating spectrum renderer: %w", err)
	}

	logger.Info("rendering spectrum",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", spec.Width*config.XScale),
			slog.Int("height", spec.Height*config.YScale),
		))

	img, err := renderer.Render(spec)
	if err != nil {
		return nil, fmt.Errorf("rendering spectrum: %w", err)
	}
	return img, nil
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch format {
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		err = png.Encode(out, img)
	}
	return err
}
