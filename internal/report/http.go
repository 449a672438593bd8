package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

const DefaultPostTimeout = 6 * time.Second

// HTTPPoster posts the fitted dip of each sweep as JSON.
type HTTPPoster struct {
	url    string
	client *http.Client
}

// NewHTTPPoster creates a poster with a bounded per-request timeout.
func NewHTTPPoster(url string, timeout time.Duration) *HTTPPoster {
	if timeout <= 0 {
		timeout = DefaultPostTimeout
	}
	return &HTTPPoster{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPoster) Name() string {
	return "http"
}

func (p *HTTPPoster) Send(ctx context.Context, result *spectrum.SweepResult) error {
	body, err := json.Marshal(newUpdate(result))
	if err != nil {
		return fmt.Errorf("marshaling update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("posting to %s: %s", p.url, resp.Status)
	}
	return nil
}
