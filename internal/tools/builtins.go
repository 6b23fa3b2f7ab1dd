// ABOUTME: Built-in tool handlers: control/runtime plane proxies, branding, and messaging.
// ABOUTME: Each handler decodes raw JSON args into its own typed struct.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/yuin/goldmark"

	"github.com/2389/warden/internal/branding"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/controlplane"
	"github.com/2389/warden/internal/invoker"
	"github.com/2389/warden/internal/store"
)

// Deps carries the collaborators the built-in tool handlers need.
type Deps struct {
	Store        store.Store
	Control      *controlplane.Client
	Runtime      *controlplane.RuntimeClient
	Defaults     branding.Branding
	Provisioning config.ProvisioningConfig
	Markdown     goldmark.Markdown
	Logger       *slog.Logger
}

// BuiltinDescriptors returns every built-in tool, before policy overrides.
func BuiltinDescriptors(deps *Deps) []Descriptor {
	return []Descriptor{
		{
			Name:        "cp.agents.index",
			Description: "List the realm's agents via the control plane",
			Tier:        TierSafe,
			Handler:     deps.agentsIndex,
		},
		{
			Name:        "cp.letta.runs.list",
			Description: "List recent runs from the agent runtime plane",
			Tier:        TierSafe,
			Handler:     deps.runsList,
		},
		{
			Name:        "cp.letta.agents.retrieve",
			Description: "Fetch a single runtime agent",
			Tier:        TierSafe,
			Handler:     deps.agentRetrieve,
		},
		{
			Name:        "realm.branding.get",
			Description: "Read the realm's branding overrides and effective branding",
			Tier:        TierSafe,
			Handler:     deps.brandingGet,
		},
		{
			Name:        "realm.branding.set",
			Description: "Apply a partial branding override update",
			Tier:        TierDangerous,
			Handler:     deps.brandingSet,
		},
		{
			Name:        "workspace.messages.send",
			Description: "Post a message to a stream as the invoker",
			Tier:        TierSafe,
			Handler:     deps.messageSend,
		},
		{
			Name:        "cp.project_agents.provision_defaults",
			Description: "Provision default project channels, bots, and control plane registrations",
			Tier:        TierDangerous,
			Handler:     deps.provisionDefaults,
		},
	}
}

// decodeArgs unmarshals raw args into a typed struct, treating empty args
// as an empty object.
func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidArgs("decoding args")
	}
	return nil
}

type agentsIndexArgs struct {
	IncludeDisabled bool `json:"include_disabled"`
}

// agentsIndex proxies to the control plane agent listing.
func (d *Deps) agentsIndex(ctx context.Context, inv *invoker.Identity, raw json.RawMessage) (json.RawMessage, error) {
	var args agentsIndexArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	payload, err := d.Control.Call(ctx, http.MethodPost, "/s2s/control/agents/index", map[string]any{
		"realm_id":         inv.Realm.ID,
		"include_disabled": args.IncludeDisabled,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

type runsListArgs struct {
	RuntimeAgentID string `json:"runtime_agent_id"`
	Limit          int    `json:"limit"`
}

// runsList proxies to the runtime plane run listing.
func (d *Deps) runsList(ctx context.Context, inv *invoker.Identity, raw json.RawMessage) (json.RawMessage, error) {
	var args runsListArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	query := url.Values{}
	if args.RuntimeAgentID != "" {
		query.Set("agent_id", args.RuntimeAgentID)
	}
	if args.Limit > 0 {
		query.Set("limit", strconv.Itoa(args.Limit))
	}

	payload, err := d.Runtime.Get(ctx, "/v1/runs", query)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

type agentRetrieveArgs struct {
	RuntimeAgentID string `json:"runtime_agent_id"`
}

// agentRetrieve fetches a single agent from the runtime plane.
func (d *Deps) agentRetrieve(ctx context.Context, inv *invoker.Identity, raw json.RawMessage) (json.RawMessage, error) {
	var args agentRetrieveArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.RuntimeAgentID == "" {
		return nil, invalidArgs("runtime_agent_id is required")
	}

	payload, err := d.Runtime.Get(ctx, "/v1/agents/"+url.PathEscape(args.RuntimeAgentID), nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

// BrandingView renders a realm's overrides and effective branding. Shared
// by the branding tools and the branding HTTP endpoint.
func BrandingView(ctx context.Context, st store.Store, defaults branding.Branding, realmID int64) (json.RawMessage, error) {
	row, err := st.GetBrandingOverride(ctx, realmID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading branding overrides: %w", err)
	}

	return json.Marshal(map[string]any{
		"realm_id":  realmID,
		"overrides": branding.OverridesDict(row),
		"branding":  branding.Effective(defaults, row),
	})
}

func (d *Deps) brandingView(ctx context.Context, realmID int64) (json.RawMessage, error) {
	return BrandingView(ctx, d.Store, d.Defaults, realmID)
}

// brandingGet returns the realm's overrides and effective branding.
func (d *Deps) brandingGet(ctx context.Context, inv *invoker.Identity, raw json.RawMessage) (json.RawMessage, error) {
	return d.brandingView(ctx, inv.Realm.ID)
}

type brandingSetArgs struct {
	Branding json.RawMessage `json:"branding"`
}

// brandingSet applies a partial branding update and returns the new view.
func (d *Deps) brandingSet(ctx context.Context, inv *invoker.Identity, raw json.RawMessage) (json.RawMessage, error) {
	var args brandingSetArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if len(args.Branding) == 0 {
		return nil, invalidArgs("branding object is required")
	}

	patch, err := branding.ParsePatch(args.Branding)
	if err != nil {
		return nil, invalidArgs("%s", err.Error())
	}

	if err := ApplyBrandingPatch(ctx, d.Store, inv.Realm.ID, patch); err != nil {
		return nil, err
	}
	return d.brandingView(ctx, inv.Realm.ID)
}

// ApplyBrandingPatch loads the realm's override row, applies the patch, and
// stores the result. A row whose fields all end up null is deleted instead.
// Shared with the branding HTTP endpoint.
func ApplyBrandingPatch(ctx context.Context, st store.Store, realmID int64, patch *branding.Patch) error {
	row, err := st.GetBrandingOverride(ctx, realmID)
	if errors.Is(err, store.ErrNotFound) {
		row = &store.BrandingOverride{RealmID: realmID}
	} else if err != nil {
		return fmt.Errorf("loading branding overrides: %w", err)
	}

	patch.Apply(row)

	if row.IsEmpty() {
		return st.DeleteBrandingOverride(ctx, realmID)
	}
	return st.UpsertBrandingOverride(ctx, row)
}

type messageSendArgs struct {
	Stream  string `json:"stream"`
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// messageSend posts a stream message as the invoker, rendering markdown.
func (d *Deps) messageSend(ctx context.Context, inv *invoker.Identity, raw json.RawMessage) (json.RawMessage, error) {
	var args messageSendArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Stream == "" || args.Topic == "" || args.Content == "" {
		return nil, invalidArgs("stream, topic, and content are required")
	}

	stream, err := d.Store.GetStreamByName(ctx, inv.Realm.ID, args.Stream)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalidArgs("stream %q does not exist", args.Stream)
	}
	if err != nil {
		return nil, fmt.Errorf("loading stream: %w", err)
	}
	if stream.Deactivated {
		return nil, invalidArgs("stream %q is deactivated", args.Stream)
	}

	var rendered bytes.Buffer
	if err := d.Markdown.Convert([]byte(args.Content), &rendered); err != nil {
		return nil, fmt.Errorf("rendering message content: %w", err)
	}

	msg := &store.Message{
		RealmID:         inv.Realm.ID,
		SenderID:        inv.User.ID,
		StreamID:        stream.ID,
		Topic:           args.Topic,
		Content:         args.Content,
		RenderedContent: rendered.String(),
	}
	if err := d.Store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("saving message: %w", err)
	}

	return json.Marshal(map[string]any{
		"message_id":       msg.ID,
		"rendered_content": msg.RenderedContent,
	})
}
