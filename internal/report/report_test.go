package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
	"github.com/roman-kulish/dip-sweep/internal/storage"
)

func testResult() *spectrum.SweepResult {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &spectrum.SweepResult{
		Sequence: 3,
		Started:  started,
		Finished: started.Add(2 * time.Second),
		Trace: spectrum.Trace{
			{Wavelength: 1550.0, Power: 1.25e-6},
			{Wavelength: 1550.5, Power: math.NaN()},
			{Wavelength: 1551.0, Power: 3e-7},
		},
		Raw: spectrum.DipEstimate{Wavelength: 1551.0, Power: 3e-7},
		Fit: spectrum.DipEstimate{Wavelength: 1550.5, Power: math.NaN()},
	}
}

func TestCSVWriter_Send(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "sweep_latest.csv")
	w := NewCSVWriter(path)

	if err := w.Send(context.Background(), testResult()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := "wavelength_nm,power_W\n" +
		"1550.00000,1.250000e-06\n" +
		"1550.50000,NaN\n" +
		"1551.00000,3.000000e-07\n"
	if string(data) != expected {
		t.Errorf("Expected:\n%s\ngot:\n%s", expected, data)
	}
}

func TestCSVWriter_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sweep_latest.csv")
	w := NewCSVWriter(path)

	first := testResult()
	second := testResult()
	second.Trace = second.Trace[:1]

	for _, r := range []*spectrum.SweepResult{first, second} {
		if err := w.Send(context.Background(), r); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("Expected header and one row, got %d lines", lines)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestHTTPPoster_Send(t *testing.T) {
	var got map[string]any
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	result := testResult()
	result.Fit = spectrum.DipEstimate{Wavelength: 1550.5, Power: 2e-7}

	if err := NewHTTPPoster(srv.URL, time.Second).Send(context.Background(), result); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Expected JSON content type, got %q", contentType)
	}
	if got["mode"] != "update" {
		t.Errorf("Expected mode update, got %v", got["mode"])
	}
	if got["OpticalPower"] != 2e-7 {
		t.Errorf("Expected OpticalPower 2e-7, got %v", got["OpticalPower"])
	}
	if got["CenterWavelength"] != 1550.5 {
		t.Errorf("Expected CenterWavelength 1550.5, got %v", got["CenterWavelength"])
	}
}

func TestHTTPPoster_SanitizesNaN(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	result := testResult()
	result.Fit = spectrum.DipEstimate{Wavelength: math.NaN(), Power: math.Inf(-1)}

	if err := NewHTTPPoster(srv.URL, time.Second).Send(context.Background(), result); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := `{"mode":"update","OpticalPower":0,"CenterWavelength":0}`
	if string(body) != expected {
		t.Errorf("Expected %s, got %s", expected, body)
	}
}

func TestHTTPPoster_Failures(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	testCases := []struct {
		name   string
		poster *HTTPPoster
	}{
		{"timeout", NewHTTPPoster(slow.URL, 20*time.Millisecond)},
		{"server error", NewHTTPPoster(broken.URL, time.Second)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.poster.Send(context.Background(), testResult()); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

type doneToken struct {
	err     error
	waitOK  bool
	timeout time.Duration
}

func (t *doneToken) Wait() bool { return true }

func (t *doneToken) WaitTimeout(d time.Duration) bool {
	t.timeout = d
	return t.waitOK
}

func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *doneToken) Error() error { return t.err }

type fakePublisher struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
	token    *doneToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topic, p.qos, p.retained = topic, qos, retained
	p.payload = payload.([]byte)
	return p.token
}

func TestMQTTPublisher_Send(t *testing.T) {
	pub := &fakePublisher{token: &doneToken{waitOK: true}}
	p := NewMQTTPublisher(pub, MQTTConfig{QoS: 1, Retained: true})

	if err := p.Send(context.Background(), testResult()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if pub.topic != DefaultTopic {
		t.Errorf("Expected default topic %q, got %q", DefaultTopic, pub.topic)
	}
	if pub.qos != 1 || !pub.retained {
		t.Errorf("Expected retained QoS 1, got QoS %d retained %v", pub.qos, pub.retained)
	}

	var got DetailedUpdate
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Mode != "update" || got.OpticalPower != 0 || got.CenterWavelength != 1550.5 {
		t.Errorf("Expected fit dip with NaN power sanitized, got %+v", got.Update)
	}
	if got.RawWavelength != 1551.0 || got.RawPower != 3e-7 {
		t.Errorf("Expected raw dip 1551 nm / 3e-7 W, got %v / %v", got.RawWavelength, got.RawPower)
	}
	if got.Sequence != 3 {
		t.Errorf("Expected sequence 3, got %d", got.Sequence)
	}
}

func TestMQTTPublisher_Failures(t *testing.T) {
	testCases := []struct {
		name  string
		token *doneToken
		want  error
	}{
		{"not acknowledged", &doneToken{waitOK: false}, ErrPublishTimeout},
		{"broker error", &doneToken{waitOK: true, err: errors.New("not connected")}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewMQTTPublisher(&fakePublisher{token: tc.token}, MQTTConfig{Topic: "lab/dip"})
			err := p.Send(context.Background(), testResult())
			if err == nil {
				t.Fatal("Expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

type recordingSink struct {
	name string
	err  error
	log  *[]string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(context.Context, *spectrum.SweepResult) error {
	*s.log = append(*s.log, s.name)
	return s.err
}

func TestFanout_OrderAndIsolation(t *testing.T) {
	var order []string
	csv := &recordingSink{name: "csv", log: &order, err: errors.New("disk full")}
	archive := &recordingSink{name: "archive", log: &order}
	remote := &recordingSink{name: "http", log: &order, err: errors.New("connection refused")}
	mq := &recordingSink{name: "mqtt", log: &order}

	f := NewFanout([]Sink{csv, archive, remote, mq})
	f.Report(context.Background(), testResult())

	if strings.Join(order, ",") != "csv,archive,http,mqtt" {
		t.Errorf("Expected every sink in order despite failures, got %v", order)
	}
}

func TestArchive_Send(t *testing.T) {
	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), storage.DefaultFileName))
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	id, err := store.CreateSession(ctx, "simulator", "sim-meter", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// the sweep finishing as the run is interrupted is still archived
	cancel()
	if err = NewArchive(store, id).Send(ctx, testResult()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	reader, err := store.ReadSweeps(context.Background(), id)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer reader.Close()

	if !reader.Next(context.Background()) {
		t.Fatalf("Expected archived sweep, error: %v", reader.Error())
	}
	if n := len(reader.Current().Trace); n != 3 {
		t.Errorf("Expected 3 points, got %d", n)
	}
}
