package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/dip-sweep/internal/cancel"
	"github.com/roman-kulish/dip-sweep/internal/meter"
	"github.com/roman-kulish/dip-sweep/internal/mono"
	"github.com/roman-kulish/dip-sweep/internal/report"
	"github.com/roman-kulish/dip-sweep/internal/serialport"
	"github.com/roman-kulish/dip-sweep/internal/sim"
	"github.com/roman-kulish/dip-sweep/internal/sweep"
)

const (
	DefaultDwell          = 150 * time.Millisecond
	DefaultSamplesPerStep = 5
	DefaultGrating        = 2
	DefaultDataDirectory  = "data"
)

// Config represents the main application configuration
type Config struct {
	Settings      Settings            `yaml:"settings"`
	Monochromator MonochromatorConfig `yaml:"monochromator"`
	Meter         MeterConfig         `yaml:"meter"`
	Sweep         SweepConfig         `yaml:"sweep"`
	Report        ReportConfig        `yaml:"report"`
	Storage       StorageConfig       `yaml:"storage"`
	Simulator     sim.Config          `yaml:"simulator"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
	Simulate bool       `yaml:"simulate"` // Use the built-in simulator instead of hardware
}

// MonochromatorConfig represents the monochromator connection and timing
type MonochromatorConfig struct {
	serialport.Config `yaml:",inline"`

	PollInterval   time.Duration `yaml:"pollInterval"`
	Settle         time.Duration `yaml:"settle"`
	MoveTimeout    time.Duration `yaml:"moveTimeout"`
	GratingTimeout time.Duration `yaml:"gratingTimeout"`
}

// MeterConfig represents the power meter discovery and acquisition settings
type MeterConfig struct {
	Ports       []string      `yaml:"ports"` // Glob patterns probed for a meter
	BaudRate    uint          `yaml:"baudRate"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
	Channel     int           `yaml:"channel"`
	Warmup      time.Duration `yaml:"warmup"`
}

// SweepConfig represents the sweep parameters. Wavelengths and grating left
// unset are asked for interactively.
type SweepConfig struct {
	Start          *float64      `yaml:"start"`
	End            *float64      `yaml:"end"`
	Step           *float64      `yaml:"step"`
	Grating        *int          `yaml:"grating"`
	Dwell          time.Duration `yaml:"dwell"`
	SamplesPerStep int           `yaml:"samplesPerStep"`
	PauseIntervals int           `yaml:"pauseIntervals"`
	PauseInterval  time.Duration `yaml:"pauseInterval"`
	StopPhrase     string        `yaml:"stopPhrase"`
}

// ReportConfig represents where sweep results are delivered
type ReportConfig struct {
	CSVPath     string            `yaml:"csvPath"`
	PostURL     string            `yaml:"postURL"` // Empty disables the HTTP update
	PostTimeout time.Duration     `yaml:"postTimeout"`
	MQTT        report.MQTTConfig `yaml:"mqtt"` // Empty broker disables MQTT
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

// DefaultConfig returns the configuration used for every field the file
// does not set.
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel: slog.LevelInfo,
		},
		Monochromator: MonochromatorConfig{
			Config: serialport.Config{
				BaudRate:    serialport.DefaultBaudRate,
				ReadTimeout: serialport.DefaultReadTimeout,
			},
			PollInterval:   mono.DefaultPollInterval,
			Settle:         mono.DefaultSettle,
			MoveTimeout:    mono.DefaultMoveTimeout,
			GratingTimeout: mono.DefaultGratingTimeout,
		},
		Meter: MeterConfig{
			Ports:       meter.DefaultPorts,
			BaudRate:    serialport.DefaultBaudRate,
			ReadTimeout: serialport.DefaultReadTimeout,
			Channel:     meter.DefaultChannel,
			Warmup:      meter.DefaultWarmup,
		},
		Sweep: SweepConfig{
			Dwell:          DefaultDwell,
			SamplesPerStep: DefaultSamplesPerStep,
			PauseIntervals: sweep.DefaultPauseIntervals,
			PauseInterval:  sweep.DefaultPauseInterval,
			StopPhrase:     cancel.DefaultPhrase,
		},
		Report: ReportConfig{
			CSVPath:     report.DefaultCSVPath,
			PostTimeout: report.DefaultPostTimeout,
			MQTT: report.MQTTConfig{
				ClientID: "dip-sweep",
				Topic:    report.DefaultTopic,
			},
		},
		Storage: StorageConfig{
			DataDirectory: DefaultDataDirectory,
		},
		Simulator: sim.DefaultConfig(),
	}
}

// LoadConfig reads a YAML configuration file over the defaults. Unknown
// fields are rejected. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings that do not depend on the interactive sweep
// parameters.
func (c *Config) Validate() error {
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"monochromator.pollInterval", c.Monochromator.PollInterval},
		{"monochromator.moveTimeout", c.Monochromator.MoveTimeout},
		{"monochromator.gratingTimeout", c.Monochromator.GratingTimeout},
		{"sweep.dwell", c.Sweep.Dwell},
		{"sweep.pauseInterval", c.Sweep.PauseInterval},
		{"report.postTimeout", c.Report.PostTimeout},
	} {
		if d.value < 0 {
			return fmt.Errorf("%s cannot be negative: %s given", d.name, d.value)
		}
	}
	if c.Sweep.SamplesPerStep < 1 {
		return fmt.Errorf("sweep.samplesPerStep must be at least 1: %d given", c.Sweep.SamplesPerStep)
	}
	if c.Sweep.PauseIntervals < 0 {
		return fmt.Errorf("sweep.pauseIntervals cannot be negative: %d given", c.Sweep.PauseIntervals)
	}
	if c.Report.MQTT.QoS > 2 {
		return fmt.Errorf("report.mqtt.qos must be 0, 1 or 2: %d given", c.Report.MQTT.QoS)
	}
	return nil
}
