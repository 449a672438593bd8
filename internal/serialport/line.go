package serialport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// ErrNoResponse is returned by Query when the device did not answer
// before the port read timed out.
var ErrNoResponse = errors.New("no response")

// LineConn sends CRLF-terminated commands and reads line responses.
// It is not safe for concurrent use.
type LineConn struct {
	rw     io.ReadWriteCloser
	reader *bufio.Reader
}

// NewLineConn wraps a port.
func NewLineConn(rw io.ReadWriteCloser) *LineConn {
	return &LineConn{
		rw:     rw,
		reader: bufio.NewReader(rw),
	}
}

// Send writes a single command line.
func (c *LineConn) Send(cmd string) error {
	if _, err := io.WriteString(c.rw, cmd+"\r\n"); err != nil {
		return fmt.Errorf("writing %q: %w", cmd, err)
	}
	return nil
}

// Discard drops any bytes already buffered from earlier responses, so the
// next read only sees the answer to the next command.
func (c *LineConn) Discard() {
	c.reader.Reset(c.rw)
}

// ReadLine reads one response line with surrounding whitespace removed.
// A timed out read with a partial line returns what was received.
func (c *LineConn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	line = strings.TrimSpace(line)

	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return "", ErrNoResponse
			}
			return line, nil
		}
		return line, fmt.Errorf("reading response: %w", err)
	}
	return line, nil
}

// Query discards stale input, sends cmd and reads the response line.
func (c *LineConn) Query(cmd string) (string, error) {
	c.Discard()
	if err := c.Send(cmd); err != nil {
		return "", err
	}
	return c.ReadLine()
}

// Close closes the underlying port.
func (c *LineConn) Close() error {
	if err := c.rw.Close(); err != nil && !errors.Is(err, fs.ErrClosed) {
		return err
	}
	return nil
}
