// ABOUTME: HTTP client for the agent runtime plane with bearer authentication.
// ABOUTME: Uses a static token or mints short-lived HS256 service tokens, 15s timeout.

package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/warden/internal/config"
)

// serviceTokenTTL bounds minted runtime tokens.
const serviceTokenTTL = 2 * time.Minute

// RuntimeClient calls the agent runtime plane. Unlike the control plane, the
// runtime plane returns plain JSON documents without a result envelope.
type RuntimeClient struct {
	baseURL   string
	token     string
	jwtSecret string
	http      *http.Client
	logger    *slog.Logger
}

// NewRuntimeClient creates a runtime plane client from configuration.
func NewRuntimeClient(cfg config.RuntimeConfig, logger *slog.Logger) *RuntimeClient {
	return &RuntimeClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		jwtSecret: cfg.JWTSecret,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger.With("component", "runtime"),
	}
}

// Configured reports whether a base URL is set.
func (c *RuntimeClient) Configured() bool {
	return c.baseURL != ""
}

// bearer returns the credential for the Authorization header: the static
// token when configured, otherwise a freshly minted short-lived HS256 token.
func (c *RuntimeClient) bearer() (string, error) {
	if c.token != "" {
		return c.token, nil
	}
	if c.jwtSecret == "" {
		return "", fmt.Errorf("runtime plane credentials are not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": "warden",
		"iat": now.Unix(),
		"exp": now.Add(serviceTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("signing service token: %w", err)
	}
	return signed, nil
}

// Get performs a GET against the runtime plane and decodes the JSON payload.
func (c *RuntimeClient) Get(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("runtime plane base URL is not configured: %w", ErrUnavailable)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	token, err := c.bearer()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("runtime plane request failed", "path", path, "error", err)
		return nil, fmt.Errorf("GET %s: %v: %w", path, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", ErrUnavailable)
	}

	if resp.StatusCode >= 400 {
		detail := upstreamDetail(raw)
		return nil, fmt.Errorf("status %d: %s: %w", resp.StatusCode, detail, ErrUpstream)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn("runtime plane returned invalid JSON", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("invalid JSON from runtime plane: %w", ErrUnavailable)
	}

	return payload, nil
}

// upstreamDetail extracts a human-readable error detail from a failure body.
func upstreamDetail(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"detail", "error", "msg"} {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return "upstream failure"
}
