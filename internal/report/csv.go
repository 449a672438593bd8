package report

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

const (
	DefaultCSVPath = "sweep_latest.csv"

	csvHeader = "wavelength_nm,power_W"
)

// CSVWriter overwrites a file with the trace of the latest sweep. Readers
// never observe a half written file.
type CSVWriter struct {
	path string
}

func NewCSVWriter(path string) *CSVWriter {
	if path == "" {
		path = DefaultCSVPath
	}
	return &CSVWriter{path: path}
}

func (w *CSVWriter) Name() string {
	return "csv"
}

// Send writes one row per trace point. NaN powers are written as "NaN".
func (w *CSVWriter) Send(_ context.Context, result *spectrum.SweepResult) (err error) {
	dir := filepath.Dir(w.path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if _, err = fmt.Fprintln(bw, csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, p := range result.Trace {
		if _, err = fmt.Fprintf(bw, "%.5f,%.6e\n", p.Wavelength, p.Power); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("replacing %s: %w", w.path, err)
	}

	return nil
}
