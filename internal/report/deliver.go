package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultCallbackURL is the evaluation endpoint that receives summaries.
const DefaultCallbackURL = "https://hackathon.guvi.in/api/updateHoneyPotFinalResult"

// Deliverer sends one encoded summary. key is constant across the retries of
// a single report.
type Deliverer interface {
	Deliver(ctx context.Context, key string, payload []byte) (status int, err error)
}

// HTTPDeliverer POSTs summaries as JSON.
type HTTPDeliverer struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPDeliverer creates an HTTPDeliverer. A nil client uses http.DefaultClient.
func NewHTTPDeliverer(url string, client *http.Client, timeout time.Duration) *HTTPDeliverer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDeliverer{url: url, client: client, timeout: timeout}
}

// Deliver implements Deliverer. Any non-2xx status is an error.
func (d *HTTPDeliverer) Deliver(ctx context.Context, key string, payload []byte) (int, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post callback: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("callback returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return resp.StatusCode, nil
}
