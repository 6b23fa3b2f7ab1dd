// ABOUTME: Tests for built-in tool handlers
// ABOUTME: Covers plane proxies, branding get/set, and message sending

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/controlplane"
	"github.com/2389/warden/internal/store"
)

func TestAgentsIndex_ProxiesRealm(t *testing.T) {
	f := setup(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/s2s/control/agents/index", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(f.realm.ID), body["realm_id"])
		assert.Equal(t, true, body["include_disabled"])

		w.Write([]byte(`{"result": "success", "agents": []}`))
	}))
	defer server.Close()
	f.withControlPlane(t, server)

	inv := f.identity(t, f.admin)
	payload, err := f.deps.agentsIndex(context.Background(), inv, json.RawMessage(`{"include_disabled": true}`))
	require.NoError(t, err)
	assert.Contains(t, string(payload), "agents")
}

func TestAgentsIndex_UpstreamDown(t *testing.T) {
	f := setup(t)
	// Fixture control plane has no base URL configured.
	inv := f.identity(t, f.admin)

	_, err := f.deps.agentsIndex(context.Background(), inv, nil)
	assert.ErrorIs(t, err, controlplane.ErrUnavailable)
}

func TestAgentRetrieve_RequiresID(t *testing.T) {
	f := setup(t)
	inv := f.identity(t, f.admin)

	_, err := f.deps.agentRetrieve(context.Background(), inv, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestBrandingGet_NoOverrides(t *testing.T) {
	f := setup(t)
	inv := f.identity(t, f.admin)

	payload, err := f.deps.brandingGet(context.Background(), inv, nil)
	require.NoError(t, err)

	var resp struct {
		RealmID   int64          `json:"realm_id"`
		Overrides map[string]any `json:"overrides"`
		Branding  struct {
			Name string `json:"name"`
		} `json:"branding"`
	}
	require.NoError(t, json.Unmarshal(payload, &resp))

	assert.Equal(t, f.realm.ID, resp.RealmID)
	assert.Empty(t, resp.Overrides, "no override row yields an empty overrides object")
	assert.Equal(t, "Warden", resp.Branding.Name, "defaults apply with no overrides")
}

func TestBrandingSet_PartialUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inv := f.identity(t, f.admin)

	payload, err := f.deps.brandingSet(ctx, inv, json.RawMessage(`{"branding": {"name": "Acme Chat"}}`))
	require.NoError(t, err)

	var resp struct {
		Overrides map[string]any `json:"overrides"`
		Branding  struct {
			Name         string `json:"name"`
			SupportEmail string `json:"support_email"`
		} `json:"branding"`
	}
	require.NoError(t, json.Unmarshal(payload, &resp))

	assert.Equal(t, map[string]any{"name": "Acme Chat"}, resp.Overrides)
	assert.Equal(t, "Acme Chat", resp.Branding.Name)
	assert.Equal(t, "support@warden.example.com", resp.Branding.SupportEmail)
}

func TestBrandingSet_ClearingAllFieldsDeletesRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inv := f.identity(t, f.admin)

	_, err := f.deps.brandingSet(ctx, inv, json.RawMessage(`{"branding": {"name": "Acme"}}`))
	require.NoError(t, err)

	_, err = f.deps.brandingSet(ctx, inv, json.RawMessage(`{"branding": {"name": null}}`))
	require.NoError(t, err)

	_, err = f.store.GetBrandingOverride(ctx, f.realm.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "a fully cleared row is deleted")
}

func TestBrandingSet_EmptyStringClearsAndDeletesRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inv := f.identity(t, f.admin)

	_, err := f.deps.brandingSet(ctx, inv, json.RawMessage(`{"branding": {"name": "Acme"}}`))
	require.NoError(t, err)

	payload, err := f.deps.brandingSet(ctx, inv, json.RawMessage(`{"branding": {"name": ""}}`))
	require.NoError(t, err)

	var resp struct {
		Overrides map[string]any `json:"overrides"`
		Branding  struct {
			Name string `json:"name"`
		} `json:"branding"`
	}
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Empty(t, resp.Overrides, "empty string clears like null")
	assert.Equal(t, "Warden", resp.Branding.Name, "default returns once the override is cleared")

	_, err = f.store.GetBrandingOverride(ctx, f.realm.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBrandingSet_NestedURLs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inv := f.identity(t, f.admin)

	payload, err := f.deps.brandingSet(ctx, inv, json.RawMessage(`{"branding": {"urls": {"homepage": "https://acme.example.com"}}}`))
	require.NoError(t, err)

	var resp struct {
		Overrides map[string]any `json:"overrides"`
		Branding  struct {
			URLs struct {
				Homepage string `json:"homepage"`
				Help     string `json:"help"`
			} `json:"urls"`
		} `json:"branding"`
	}
	require.NoError(t, json.Unmarshal(payload, &resp))

	assert.Equal(t, map[string]any{"urls": map[string]any{"homepage": "https://acme.example.com"}}, resp.Overrides)
	assert.Equal(t, "https://acme.example.com", resp.Branding.URLs.Homepage)
	assert.Equal(t, "https://help.warden.example.com", resp.Branding.URLs.Help, "untouched url keeps its default")
}

func TestBrandingSet_RejectsUnknownField(t *testing.T) {
	f := setup(t)
	inv := f.identity(t, f.admin)

	_, err := f.deps.brandingSet(context.Background(), inv, json.RawMessage(`{"branding": {"favicon": "x"}}`))
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestMessageSend_RendersAndPersists(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inv := f.identity(t, f.admin)

	payload, err := f.deps.messageSend(ctx, inv, json.RawMessage(`{"stream": "general", "topic": "release", "content": "**shipped**"}`))
	require.NoError(t, err)

	var resp struct {
		MessageID       int64  `json:"message_id"`
		RenderedContent string `json:"rendered_content"`
	}
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Contains(t, resp.RenderedContent, "<strong>shipped</strong>")

	msg, err := f.store.GetMessage(ctx, f.realm.ID, resp.MessageID)
	require.NoError(t, err)
	assert.Equal(t, inv.User.ID, msg.SenderID)
	assert.Equal(t, "**shipped**", msg.Content)
}

func TestMessageSend_MissingStream(t *testing.T) {
	f := setup(t)
	inv := f.identity(t, f.admin)

	_, err := f.deps.messageSend(context.Background(), inv, json.RawMessage(`{"stream": "ghost", "topic": "t", "content": "c"}`))
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestMessageSend_RequiredFields(t *testing.T) {
	f := setup(t)
	inv := f.identity(t, f.admin)

	_, err := f.deps.messageSend(context.Background(), inv, json.RawMessage(`{"stream": "general"}`))
	assert.ErrorIs(t, err, ErrInvalidArgs)
}
