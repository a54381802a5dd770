// Package tower provides the HTTP client for the external cell-site
// simulator: snapshot reads, power and RRU commands, scenario injection,
// and the long-lived event stream used by the bridge.
package tower

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/drak0niii/Launch-CTRL/pkg/config"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
)

// Client talks to the simulator over HTTP. Every request/response call is
// retried on non-2xx or transport errors up to the configured budget, with
// fixed spacing between attempts.
type Client struct {
	baseURL      string
	streamURL    string
	httpClient   *http.Client
	streamClient *http.Client
	maxRetries   int
	retrySpacing time.Duration
	logger       *slog.Logger
}

// NewClient creates a simulator client from configuration.
func NewClient(cfg config.TowerConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		streamURL:  cfg.StreamURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		// The stream connection stays open indefinitely; no client timeout.
		streamClient: &http.Client{},
		maxRetries:   cfg.MaxRetries,
		retrySpacing: cfg.RetrySpacing,
		logger:       slog.With("component", "tower"),
	}
}

// snapshotEnvelope normalizes the two shapes the simulator responds with:
// either {"state": {...}} or a bare snapshot object.
type snapshotEnvelope struct {
	State models.Snapshot `json:"state"`
}

// Snapshot fetches the current fleet snapshot via GET /state.
func (c *Client) Snapshot(ctx context.Context) (models.Snapshot, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, c.baseURL+"/state", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	return ParseSnapshot(body)
}

// ParseSnapshot decodes a snapshot payload, accepting either the
// {"state": ...} envelope or a bare snapshot object.
func ParseSnapshot(body []byte) (models.Snapshot, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.State != nil {
		return env.State, nil
	}
	var snap models.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// SetPower sends POST /power for one site or "all".
func (c *Client) SetPower(ctx context.Context, sites, state string) error {
	payload := map[string]string{"sites": sites, "state": state}
	if _, err := c.doWithRetry(ctx, http.MethodPost, c.baseURL+"/power", payload); err != nil {
		return fmt.Errorf("set power %s=%s: %w", sites, state, err)
	}
	return nil
}

// SetRRU sends POST /rru for one antenna of one site.
func (c *Client) SetRRU(ctx context.Context, site, antenna, state string) error {
	payload := map[string]string{"site": site, "antenna": antenna, "state": state}
	if _, err := c.doWithRetry(ctx, http.MethodPost, c.baseURL+"/rru", payload); err != nil {
		return fmt.Errorf("set rru %s/%s=%s: %w", site, antenna, state, err)
	}
	return nil
}

// SetScenario sends POST /scenario. Used by tooling, not the core pipeline.
func (c *Client) SetScenario(ctx context.Context, site, mode, crqID string) error {
	payload := map[string]string{"site": site, "mode": mode, "crqId": crqID}
	if _, err := c.doWithRetry(ctx, http.MethodPost, c.baseURL+"/scenario", payload); err != nil {
		return fmt.Errorf("set scenario %s mode=%s: %w", site, mode, err)
	}
	return nil
}

// Stream opens the long-lived event stream. The caller owns the returned
// body and must close it; reconnect policy lives in the bridge.
func (c *Client) Stream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect stream %s: %w", c.streamURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned HTTP %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// doWithRetry performs one HTTP call with the retry budget. The response
// body is returned on any 2xx status.
func (c *Client) doWithRetry(ctx context.Context, method, url string, payload any) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retrySpacing):
			}
			c.logger.Debug("Retrying simulator request",
				"method", method, "url", url, "attempt", attempt)
		}

		body, err := c.do(ctx, method, url, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) do(ctx context.Context, method, url string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("simulator returned HTTP %d", resp.StatusCode)
	}
	return body, nil
}
