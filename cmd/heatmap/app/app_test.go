package app

import (
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/dip-sweep/internal/storage"
)

func archive(t *testing.T, sweeps int) (string, int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), storage.DefaultFileName)
	store := storage.NewSqliteStore(path)

	ctx := context.Background()
	id, err := store.CreateSession(ctx, "simulator", "sim-meter", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	start := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < sweeps; i++ {
		r := testSweep(start.Add(time.Duration(i)*time.Minute), 1550)
		r.Sequence = i + 1
		if err = store.StoreSweep(ctx, id, r); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if err = store.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return path, id
}

func TestRun(t *testing.T) {
	path, id := archive(t, 12)

	config := NewConfig()
	config.DBPath = path
	config.SessionID = id
	config.OutputFile = filepath.Join(t.TempDir(), "heatmap.png")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Run(context.Background(), config, logger); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	f, err := os.Open(config.OutputFile)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Expected a PNG image: %v", err)
	}

	wantW := 9*defaultXScale + defaultLeftBorder + defaultRightBorder
	wantH := 12*defaultYScale + defaultTopBorder + defaultBottomBorder
	if b := img.Bounds(); b.Dx() != wantW || b.Dy() != wantH {
		t.Errorf("Expected %dx%d, got %dx%d", wantW, wantH, b.Dx(), b.Dy())
	}
}

func TestRun_WavelengthFilter(t *testing.T) {
	path, id := archive(t, 3)

	config := NewConfig()
	config.DBPath = path
	config.SessionID = id
	config.OutputFile = filepath.Join(t.TempDir(), "heatmap.png")
	config.NoAnnotations = true
	config.XScale, config.YScale = 1, 1
	minWl, maxWl := 1549.0, 1551.0
	config.MinWavelength, config.MaxWavelength = &minWl, &maxWl

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Run(context.Background(), config, logger); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	f, err := os.Open(config.OutputFile)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 5 || b.Dy() != 3 {
		t.Errorf("Expected 5x3 image, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRun_EmptySession(t *testing.T) {
	path, id := archive(t, 0)

	config := NewConfig()
	config.DBPath = path
	config.SessionID = id
	config.OutputFile = filepath.Join(t.TempDir(), "heatmap.png")

	err := Run(context.Background(), config, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !errors.Is(err, storage.ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}

func TestRun_MissingDatabase(t *testing.T) {
	config := NewConfig()
	config.DBPath = filepath.Join(t.TempDir(), "missing.db")
	config.OutputFile = filepath.Join(t.TempDir(), "heatmap.png")

	if err := Run(context.Background(), config, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("Expected error, got nil")
	}
}
