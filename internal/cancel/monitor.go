// Package cancel watches operator keystrokes for a stop phrase.
//
// The sweep loop polls the Monitor between steps. Polling never blocks:
// keystrokes are drained from a KeySource that reports whether input is
// pending.
package cancel

import (
	"strings"
	"sync"
	"unicode"
)

// DefaultPhrase is typed by the operator to end the run after the current step
const DefaultPhrase = "stop"

// KeySource yields keystrokes without blocking.
type KeySource interface {
	// Available reports whether a keystroke can be read immediately.
	Available() bool

	// ReadKey returns the next keystroke. ok is false when nothing is pending.
	ReadKey() (r rune, ok bool)
}

// Monitor latches a stop request once the trailing typed characters match
// the stop phrase. It is safe for concurrent use.
type Monitor struct {
	mu      sync.Mutex
	src     KeySource
	phrase  []rune
	buf     []rune
	stopped bool
}

// NewMonitor creates a Monitor matching phrase case-insensitively. src may
// be nil when keystrokes are only delivered through Feed.
func NewMonitor(src KeySource, phrase string) *Monitor {
	if phrase == "" {
		phrase = DefaultPhrase
	}

	p := []rune(strings.ToLower(phrase))
	return &Monitor{
		src:    src,
		phrase: p,
		buf:    make([]rune, 0, len(p)),
	}
}

// StopRequested drains pending keystrokes and reports whether the stop
// phrase has been typed. Once true it stays true until Reset.
func (m *Monitor) StopRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.src != nil {
		for m.src.Available() {
			r, ok := m.src.ReadKey()
			if !ok {
				break
			}
			m.feed(r)
		}
	}

	return m.stopped
}

// Feed processes a single keystroke.
func (m *Monitor) Feed(r rune) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.feed(r)
}

// Reset clears typed input and the stop request.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf = m.buf[:0]
	m.stopped = false
}

func (m *Monitor) feed(r rune) {
	switch r {
	case '\r', '\n':
		m.buf = m.buf[:0]
		return

	case '\b', 0x7f:
		if len(m.buf) > 0 {
			m.buf = m.buf[:len(m.buf)-1]
		}
		return
	}

	if len(m.buf) == len(m.phrase) {
		copy(m.buf, m.buf[1:])
		m.buf = m.buf[:len(m.buf)-1]
	}
	m.buf = append(m.buf, unicode.ToLower(r))

	if len(m.buf) == len(m.phrase) && string(m.buf) == string(m.phrase) {
		m.stopped = true
	}
}
