package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/dip-sweep/cmd/sweeper/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var (
		configPath string
		flags      app.Flags
	)
	flag.StringVar(&configPath, "c", "", "Path to the configuration file (defaults are used when omitted)")
	flag.StringVar(&flags.Start, "start", "", "Start wavelength in nm")
	flag.StringVar(&flags.End, "end", "", "End wavelength in nm")
	flag.StringVar(&flags.Step, "step", "", "Step size in nm")
	flag.StringVar(&flags.Grating, "grating", "", "Grating number, 1 or 2")
	flag.Parse()

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	logLevel.Set(config.Settings.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, flags, os.Stdin, os.Stdout, logger); err != nil {
		var inputErr *app.InputError
		if errors.As(err, &inputErr) {
			fmt.Fprintln(os.Stderr, "Error:", inputErr.Error())
		} else {
			logger.Error(err.Error())
		}

		cancel()
		os.Exit(1)
	}
}
