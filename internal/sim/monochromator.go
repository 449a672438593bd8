package sim

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PortName identifies the simulated monochromator in logs and the archive
const PortName = "simulator"

// Monochromator answers the monochromator line protocol in memory. It
// implements io.ReadWriteCloser and can stand in for a serial port.
type Monochromator struct {
	bench *Bench

	mu        sync.Mutex
	partial   strings.Builder
	pending   strings.Builder
	busyUntil time.Time
	grating   int
	shutter   bool
	units     string
	closed    bool
}

func NewMonochromator(bench *Bench) *Monochromator {
	return &Monochromator{bench: bench, grating: 1}
}

func (m *Monochromator) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fs.ErrClosed
	}

	m.partial.Write(b)
	buf := m.partial.String()
	for {
		i := strings.IndexAny(buf, "\r\n")
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(buf[:i]); line != "" {
			m.handle(line)
		}
		buf = buf[i+1:]
	}
	m.partial.Reset()
	m.partial.WriteString(buf)

	return len(b), nil
}

// Read returns buffered responses. An empty buffer reads as io.EOF, the way
// a serial port reports a read timeout.
func (m *Monochromator) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fs.ErrClosed
	}
	if m.pending.Len() == 0 {
		return 0, io.EOF
	}

	data := m.pending.String()
	n := copy(b, data)
	m.pending.Reset()
	m.pending.WriteString(data[n:])
	return n, nil
}

func (m *Monochromator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fs.ErrClosed
	}
	m.closed = true
	return nil
}

// Grating returns the selected grating.
func (m *Monochromator) Grating() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.grating
}

// ShutterOpen reports whether the shutter was opened.
func (m *Monochromator) ShutterOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.shutter
}

func (m *Monochromator) handle(line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch strings.ToUpper(cmd) {
	case "UNITS":
		m.units = strings.ToLower(arg)

	case "SHUTTER":
		m.shutter = arg == "1"

	case "GRAT":
		if n, err := strconv.Atoi(arg); err == nil && (n == 1 || n == 2) && n != m.grating {
			m.grating = n
			m.busyUntil = time.Now().Add(m.bench.config.GratingSwitch)
		}

	case "GOWAVE":
		if wl, err := strconv.ParseFloat(arg, 64); err == nil {
			m.busyUntil = m.bench.MoveTo(wl)
		}

	case "IDLE?":
		status := 0
		if !time.Now().Before(m.busyUntil) {
			status = 1
		}
		fmt.Fprintf(&m.pending, "%d\r\n", status)
	}
}
