package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if config.Sweep.Dwell != DefaultDwell {
		t.Errorf("Expected dwell %s, got %s", DefaultDwell, config.Sweep.Dwell)
	}
	if config.Sweep.SamplesPerStep != DefaultSamplesPerStep {
		t.Errorf("Expected %d samples per step, got %d", DefaultSamplesPerStep, config.Sweep.SamplesPerStep)
	}
	if config.Sweep.Start != nil || config.Sweep.Grating != nil {
		t.Error("Expected wavelengths and grating left for the prompt")
	}
	if config.Storage.Enabled {
		t.Error("Expected archive disabled by default")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
  simulate: true
monochromator:
  port: /dev/ttyS0
  moveTimeout: 5s
sweep:
  start: 1540
  end: 1560
  step: 0.25
  grating: 1
  dwell: 50ms
report:
  postURL: http://localhost:8080/update
  mqtt:
    broker: tcp://localhost:1883
storage:
  enabled: true
simulator:
  dipCenter: 1545
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if config.Settings.LogLevel != slog.LevelDebug {
		t.Errorf("Expected debug level, got %s", config.Settings.LogLevel)
	}
	if config.Monochromator.Port != "/dev/ttyS0" {
		t.Errorf("Expected port /dev/ttyS0, got %q", config.Monochromator.Port)
	}
	if config.Monochromator.MoveTimeout != 5*time.Second {
		t.Errorf("Expected move timeout 5s, got %s", config.Monochromator.MoveTimeout)
	}
	if config.Sweep.Start == nil || *config.Sweep.Start != 1540 {
		t.Errorf("Expected start 1540, got %v", config.Sweep.Start)
	}
	if config.Sweep.Grating == nil || *config.Sweep.Grating != 1 {
		t.Errorf("Expected grating 1, got %v", config.Sweep.Grating)
	}
	if config.Sweep.Dwell != 50*time.Millisecond {
		t.Errorf("Expected dwell 50ms, got %s", config.Sweep.Dwell)
	}
	if config.Report.MQTT.Topic == "" {
		t.Error("Expected default MQTT topic to survive a partial mqtt section")
	}
	if config.Simulator.DipCenter != 1545 {
		t.Errorf("Expected simulated dip at 1545, got %v", config.Simulator.DipCenter)
	}
	if config.Simulator.DipWidth == 0 {
		t.Error("Expected default simulator width to survive")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "sweep:\n  speed: 3\n"},
		{"negative dwell", "sweep:\n  dwell: -1s\n"},
		{"zero samples", "sweep:\n  samplesPerStep: 0\n"},
		{"bad qos", "report:\n  mqtt:\n    qos: 3\n"},
		{"bad duration", "monochromator:\n  moveTimeout: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.content)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error, got nil")
	}
}
