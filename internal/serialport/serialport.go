// Package serialport opens RS232 instrument ports and frames the
// CRLF-terminated request/response lines their firmware speaks.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = time.Second
)

// Config describes a serial port connection. The read timeout bounds a
// single read; a read that times out returns no data.
type Config struct {
	Port        string        `yaml:"port" json:"port"`
	BaudRate    uint          `yaml:"baudRate" json:"baudRate"`
	ReadTimeout time.Duration `yaml:"readTimeout" json:"readTimeout"`
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("serialport.Config: port is required")
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("serialport.Config: read timeout cannot be negative: %s given", c.ReadTimeout)
	}
	return nil
}

// Open opens the port with 8N1 framing and no flow control.
func Open(config Config) (io.ReadWriteCloser, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	baud := config.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	timeout := config.ReadTimeout
	if timeout == 0 {
		timeout = DefaultReadTimeout
	}

	opts := serial.OpenOptions{
		PortName:        config.Port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 0,
		// termios VTIME granularity is 100ms
		InterCharacterTimeout: uint(max(100, timeout.Milliseconds()/100*100)),
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", config.Port, err)
	}
	return port, nil
}
