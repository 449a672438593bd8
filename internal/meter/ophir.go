package meter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/roman-kulish/dip-sweep/internal/serialport"
)

const (
	cmdIdentify   = "$II"
	cmdForcePower = "$FP"
	cmdSendPower  = "$SP"

	okPrefix = "*"
)

// DefaultPorts are the device patterns scanned for RS232 meters
var DefaultPorts = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}

// WithOphirLogger sets the logger for the RS232 driver
func WithOphirLogger(logger *slog.Logger) func(d *Ophir) {
	return func(d *Ophir) {
		d.logger = logger
	}
}

// WithPorts sets the glob patterns scanned by Discover
func WithPorts(patterns ...string) func(d *Ophir) {
	return func(d *Ophir) {
		d.patterns = patterns
	}
}

// WithExclude removes ports from discovery, typically the monochromator's
func WithExclude(ports ...string) func(d *Ophir) {
	return func(d *Ophir) {
		d.exclude = append(d.exclude, ports...)
	}
}

// Ophir drives single-channel power meters speaking the Ophir RS232
// command set. Each meter is identified by its port path.
type Ophir struct {
	config   serialport.Config
	patterns []string
	exclude  []string

	open   func(config serialport.Config) (io.ReadWriteCloser, error)
	glob   func(pattern string) ([]string, error)
	logger *slog.Logger
}

// NewOphir creates the RS232 driver. The port field of config is ignored,
// every discovered port is opened with the remaining settings.
func NewOphir(config serialport.Config, options ...func(d *Ophir)) *Ophir {
	d := Ophir{
		config:   config,
		patterns: DefaultPorts,
		open:     serialport.Open,
		glob:     filepath.Glob,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Discover probes every matching port with an identify query and returns
// the ones answering like a meter.
func (d *Ophir) Discover(ctx context.Context) ([]string, error) {
	var found []string

	for _, pattern := range d.patterns {
		ports, err := d.glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", pattern, err)
		}

		for _, port := range ports {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if slices.Contains(d.exclude, port) || slices.Contains(found, port) {
				continue
			}

			info, err := d.probe(port)
			if err != nil {
				d.logger.Debug("port is not a power meter", slog.String("port", port), slog.String("error", err.Error()))
				continue
			}

			d.logger.Info("power meter detected", slog.String("port", port), slog.String("info", info))
			found = append(found, port)
		}
	}

	return found, nil
}

func (d *Ophir) probe(port string) (string, error) {
	config := d.config
	config.Port = port

	rw, err := d.open(config)
	if err != nil {
		return "", err
	}

	conn := serialport.NewLineConn(rw)
	defer conn.Close()

	resp, err := conn.Query(cmdIdentify)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(resp, okPrefix) {
		return "", fmt.Errorf("unexpected identify response %q", resp)
	}

	return strings.TrimSpace(strings.TrimPrefix(resp, okPrefix)), nil
}

// Open opens the meter on the given port.
func (d *Ophir) Open(_ context.Context, id string) (Handle, error) {
	config := d.config
	config.Port = id

	rw, err := d.open(config)
	if err != nil {
		return nil, err
	}

	return &ophirHandle{conn: serialport.NewLineConn(rw)}, nil
}

// ophirHandle is an open RS232 meter. The head has a single channel; the
// meter holds the latest power reading and returns it on request, so the
// stream only exists on this side.
type ophirHandle struct {
	conn      *serialport.LineConn
	streaming bool
}

func (h *ophirHandle) StartStream(channel int) error {
	if channel != 0 {
		return fmt.Errorf("channel %d: single channel meter", channel)
	}

	resp, err := h.conn.Query(cmdForcePower)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp, okPrefix) {
		return fmt.Errorf("power mode rejected: %q", resp)
	}

	h.streaming = true
	return nil
}

func (h *ophirHandle) StopStream(int) error {
	h.streaming = false
	return nil
}

// Latest returns NaN without an error when the meter answers with
// anything other than a number, such as an over-range or error reply.
func (h *ophirHandle) Latest(channel int) (float64, error) {
	if !h.streaming || channel != 0 {
		return math.NaN(), ErrNotStreaming
	}

	resp, err := h.conn.Query(cmdSendPower)
	if err != nil {
		return math.NaN(), err
	}

	return parseReading(resp), nil
}

func (h *ophirHandle) Close() error {
	return h.conn.Close()
}

// parseReading decodes "*<value>" replies, anything else is NaN.
func parseReading(resp string) float64 {
	if !strings.HasPrefix(resp, okPrefix) {
		return math.NaN()
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(resp, okPrefix)), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
