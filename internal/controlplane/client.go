// ABOUTME: HTTP client for the control plane with envelope normalization.
// ABOUTME: Sends the shared secret on both legacy header and bearer, 10s timeout.

package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/warden/internal/config"
)

var (
	// ErrUnavailable indicates the control plane could not be reached or
	// returned an unparseable response. Mapped to 502 at the edge.
	ErrUnavailable = errors.New("control plane is unavailable")

	// ErrUpstream indicates the control plane answered with an error
	// envelope or failure status.
	ErrUpstream = errors.New("control plane reported an error")
)

// Client calls the control plane's S2S API. Responses use a
// {"result": "success"|"error", "msg": ...} envelope which Call unwraps.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a control plane client from configuration.
func NewClient(cfg config.ControlPlaneConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  cfg.SharedSecret,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With("component", "controlplane"),
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Call performs a JSON request against the control plane and returns the
// decoded payload. Transport failures and invalid JSON map to
// ErrUnavailable; error envelopes and failure statuses map to ErrUpstream.
func (c *Client) Call(ctx context.Context, method, path string, body any) (map[string]any, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("control plane base URL is not configured: %w", ErrUnavailable)
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Both credential forms are sent so either verifier on the far side works.
	req.Header.Set("x-warden-secret", c.secret)
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("control plane request failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", ErrUnavailable)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn("control plane returned invalid JSON", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("invalid JSON from control plane: %w", ErrUnavailable)
	}

	if result, _ := payload["result"].(string); result == "error" {
		msg, _ := payload["msg"].(string)
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("%s: %w", msg, ErrUpstream)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrUpstream)
	}

	return payload, nil
}
