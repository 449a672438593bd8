package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roman-kulish/dip-sweep/internal/cancel"
	"github.com/roman-kulish/dip-sweep/internal/meter"
	"github.com/roman-kulish/dip-sweep/internal/mono"
	"github.com/roman-kulish/dip-sweep/internal/report"
	"github.com/roman-kulish/dip-sweep/internal/serialport"
	"github.com/roman-kulish/dip-sweep/internal/sim"
	"github.com/roman-kulish/dip-sweep/internal/spectrum"
	"github.com/roman-kulish/dip-sweep/internal/storage"
	"github.com/roman-kulish/dip-sweep/internal/sweep"
)

// instruments are the two devices a run needs, real or simulated.
type instruments struct {
	port          io.ReadWriteCloser
	monochromator string
	driver        meter.Driver
}

// Run resolves the sweep parameters, connects the instruments and sweeps
// until the operator types the stop phrase or ctx is cancelled. Parameters
// are resolved before any device is opened, so an InputError leaves the
// hardware untouched.
func Run(ctx context.Context, config *Config, flags Flags, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	if err := flags.Apply(&config.Sweep); err != nil {
		return err
	}

	var in *bufio.Reader
	var prompter *Prompter
	if stdin != nil {
		in = bufio.NewReader(stdin)
		prompter = NewPrompter(in, stdout)
	}

	sweepConfig, err := ResolveSweep(&config.Sweep, prompter)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "\nSweeping %g → %g nm in %g nm steps.\n", sweepConfig.Start, sweepConfig.End, sweepConfig.Step)
	fmt.Fprintf(stdout, "Using grating %d.\n", sweepConfig.Grating)
	if in != nil {
		fmt.Fprintf(stdout, "Running continuously. Type '%s' to stop.\n\n", config.Sweep.StopPhrase)
	}

	r := newReleaser(logger)
	defer func() {
		r.release()
		fmt.Fprintln(stdout, "Stopped.")
	}()

	if err = run(ctx, config, sweepConfig, in, r, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}

func run(ctx context.Context, config *Config, sweepConfig spectrum.SweepConfig, in *bufio.Reader, r *releaser, logger *slog.Logger) error {
	var store storage.Store
	if config.Storage.Enabled {
		s, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		r.add("closing archive", s.Close)
		store = s
	}

	inst, err := createInstruments(config, logger)
	if err != nil {
		return err
	}

	m := mono.New(inst.port,
		mono.WithLogger(logger),
		mono.WithPollInterval(config.Monochromator.PollInterval),
		mono.WithSettle(config.Monochromator.Settle))
	r.add("closing monochromator", m.Close)

	if err = m.Configure(ctx); err != nil {
		return fmt.Errorf("configuring monochromator: %w", err)
	}

	outcome, err := m.SelectGrating(ctx, sweepConfig.Grating, config.Monochromator.GratingTimeout)
	if err != nil {
		return fmt.Errorf("selecting grating: %w", err)
	}
	if outcome == mono.TimedOut {
		logger.Warn("grating switch timed out",
			slog.Int("grating", sweepConfig.Grating),
			slog.Duration("timeout", config.Monochromator.GratingTimeout))
	}

	session, err := meter.Connect(ctx, inst.driver,
		meter.WithLogger(logger),
		meter.WithChannel(config.Meter.Channel),
		meter.WithWarmup(config.Meter.Warmup))
	if err != nil {
		return err
	}
	r.add("closing power meter", session.Close)

	if err = session.Start(ctx); err != nil {
		return err
	}

	sinks := []report.Sink{report.NewCSVWriter(config.Report.CSVPath)}

	if store != nil {
		sessionID, err := store.CreateSession(ctx, inst.monochromator, session.ID(), sweepConfig)
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		logger.Info("archiving sweeps", slog.Int64("sessionID", sessionID))
		sinks = append(sinks, report.NewArchive(store, sessionID))
	}

	if config.Report.PostURL != "" {
		sinks = append(sinks, report.NewHTTPPoster(config.Report.PostURL, config.Report.PostTimeout))
	}

	if config.Report.MQTT.Broker != "" {
		client, disconnect, err := report.ConnectMQTT(config.Report.MQTT)
		if err != nil {
			return err
		}
		r.add("disconnecting MQTT", func() error { disconnect(); return nil })
		sinks = append(sinks, report.NewMQTTPublisher(client, config.Report.MQTT))
	}

	var src cancel.KeySource
	if in != nil {
		src = cancel.NewReaderSource(ctx, in, logger)
	}
	monitor := cancel.NewMonitor(src, config.Sweep.StopPhrase)

	sampler := sweep.NewSampler(session, sweepConfig.SamplesPerStep, sweepConfig.SampleInterval(),
		sweep.WithSamplerLogger(logger),
		sweep.WithStopper(monitor))

	controller, err := sweep.NewController(sweepConfig, m, sampler,
		sweep.WithLogger(logger),
		sweep.WithStop(monitor),
		sweep.WithReporter(report.NewFanout(sinks, report.WithLogger(logger))),
		sweep.WithPause(config.Sweep.PauseIntervals, config.Sweep.PauseInterval),
		sweep.WithMoveTimeout(config.Monochromator.MoveTimeout))
	if err != nil {
		return err
	}

	return controller.Run(ctx)
}

func createInstruments(config *Config, logger *slog.Logger) (*instruments, error) {
	if config.Settings.Simulate {
		logger.Info("using simulated instruments")

		bench := sim.NewBench(config.Simulator)
		return &instruments{
			port:          sim.NewMonochromator(bench),
			monochromator: sim.PortName,
			driver:        sim.NewMeterDriver(bench),
		}, nil
	}

	port, err := serialport.Open(config.Monochromator.Config)
	if err != nil {
		return nil, fmt.Errorf("connecting monochromator: %w", err)
	}

	driver := meter.NewOphir(
		serialport.Config{
			BaudRate:    config.Meter.BaudRate,
			ReadTimeout: config.Meter.ReadTimeout,
		},
		meter.WithPorts(config.Meter.Ports...),
		meter.WithExclude(config.Monochromator.Port),
		meter.WithOphirLogger(logger))

	return &instruments{
		port:          port,
		monochromator: config.Monochromator.Port,
		driver:        driver,
	}, nil
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = DefaultDataDirectory
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	return storage.NewSqliteStore(filepath.Join(dir, storage.DefaultFileName)), nil
}
