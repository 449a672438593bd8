package serialport

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// scriptedPort answers each written line with the next scripted response.
// An empty response simulates a read timeout.
type scriptedPort struct {
	written   bytes.Buffer
	responses []string
	pending   *strings.Reader
	closed    bool
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.written.Write(b)
	if len(p.responses) > 0 {
		p.pending = strings.NewReader(p.responses[0])
		p.responses = p.responses[1:]
	}
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if p.pending == nil || p.pending.Len() == 0 {
		return 0, io.EOF
	}
	return p.pending.Read(b)
}

func (p *scriptedPort) Close() error {
	p.closed = true
	return nil
}

func TestLineConn_Query(t *testing.T) {
	port := &scriptedPort{responses: []string{"IDLE? 1\r\n"}}
	conn := NewLineConn(port)

	resp, err := conn.Query("IDLE?")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp != "IDLE? 1" {
		t.Errorf("Expected trimmed response, got %q", resp)
	}
	if got := port.written.String(); got != "IDLE?\r\n" {
		t.Errorf("Expected CRLF terminated command, got %q", got)
	}
}

func TestLineConn_QueryTimeout(t *testing.T) {
	port := &scriptedPort{responses: []string{""}}
	conn := NewLineConn(port)

	if _, err := conn.Query("IDLE?"); !errors.Is(err, ErrNoResponse) {
		t.Errorf("Expected ErrNoResponse, got %v", err)
	}
}

func TestLineConn_PartialLine(t *testing.T) {
	port := &scriptedPort{responses: []string{"0"}}
	conn := NewLineConn(port)

	resp, err := conn.Query("IDLE?")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp != "0" {
		t.Errorf("Expected partial line \"0\", got %q", resp)
	}
}

func TestLineConn_DiscardsStaleInput(t *testing.T) {
	port := &scriptedPort{responses: []string{"stale\r\nmore\r\n", "1\r\n"}}
	conn := NewLineConn(port)

	if err := conn.Send("SHUTTER 1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if line, _ := conn.ReadLine(); line != "stale" {
		t.Fatalf("Expected first line \"stale\", got %q", line)
	}

	resp, err := conn.Query("IDLE?")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp != "1" {
		t.Errorf("Expected response to the last command, got %q", resp)
	}
}

func TestLineConn_Close(t *testing.T) {
	port := &scriptedPort{}
	conn := NewLineConn(port)

	if err := conn.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !port.closed {
		t.Error("Expected port to be closed")
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"missing port", Config{}, true},
		{"negative timeout", Config{Port: "/dev/ttyUSB0", ReadTimeout: -1}, true},
		{"valid", Config{Port: "/dev/ttyUSB0", BaudRate: 9600}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}
}
