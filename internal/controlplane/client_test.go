// ABOUTME: Tests for the control plane client
// ABOUTME: Covers envelope unwrapping, credential headers, and failure taxonomy

package controlplane

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.ControlPlaneConfig{
		BaseURL:      server.URL,
		SharedSecret: "cp-secret",
		Timeout:      2 * time.Second,
	}, slog.Default())
}

func TestCall_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cp-secret", r.Header.Get("x-warden-secret"))
		assert.Equal(t, "Bearer cp-secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": "success", "agents": [{"id": 1}]}`))
	})

	payload, err := client.Call(context.Background(), http.MethodPost, "/s2s/control/agents/index", map[string]any{"realm_id": 1})
	require.NoError(t, err)
	assert.Equal(t, "success", payload["result"])
	assert.Len(t, payload["agents"], 1)
}

func TestCall_ErrorEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": "error", "msg": "Project already exists"}`))
	})

	_, err := client.Call(context.Background(), http.MethodPost, "/s2s/control/projects/attach", nil)
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "Project already exists")
}

func TestCall_FailureStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"note": "no envelope here"}`))
	})

	_, err := client.Call(context.Background(), http.MethodPost, "/s2s/control/agents/index", nil)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestCall_InvalidJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway timeout</html>`))
	})

	_, err := client.Call(context.Background(), http.MethodPost, "/s2s/control/agents/index", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCall_ConnectionRefused(t *testing.T) {
	client := NewClient(config.ControlPlaneConfig{
		BaseURL:      "http://127.0.0.1:1", // nothing listens here
		SharedSecret: "cp-secret",
		Timeout:      500 * time.Millisecond,
	}, slog.Default())

	_, err := client.Call(context.Background(), http.MethodPost, "/s2s/control/agents/index", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCall_NotConfigured(t *testing.T) {
	client := NewClient(config.ControlPlaneConfig{Timeout: time.Second}, slog.Default())

	assert.False(t, client.Configured())
	_, err := client.Call(context.Background(), http.MethodPost, "/anything", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
