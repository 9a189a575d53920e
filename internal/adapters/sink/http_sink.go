package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

// HTTPSink posts each reading to the dashboard ingestion endpoint, one request
// per reading, in poll order.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/sensors",
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
	}
}

func (h *HTTPSink) Name() string { return "http" }

func (h *HTTPSink) WriteBatch(readings []*domain.SensorReading) error {
	for _, r := range readings {
		if err := h.post(r); err != nil {
			return fmt.Errorf("http sink: reading %d: %w", r.Seq, err)
		}
	}
	return nil
}

func (h *HTTPSink) post(r *domain.SensorReading) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

var _ ports.Sink = (*HTTPSink)(nil)
