// ABOUTME: Default project agent provisioning with compensation on failure.
// ABOUTME: Creates streams and bots, subscribes them, and registers with the control plane.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/2389/warden/internal/invoker"
	"github.com/2389/warden/internal/store"
)

// provisionedProject is one project's outcome in the provisioning result.
type provisionedProject struct {
	Stream     string `json:"stream"`
	StreamID   int64  `json:"stream_id"`
	BotUserID  int64  `json:"bot_user_id"`
	BotEmail   string `json:"bot_email"`
	BotCreated bool   `json:"bot_created"`
}

// provisionDefaults creates the configured default project channels, one
// project bot per channel, subscribes each bot, and registers the projects
// with the control plane. If the control plane rejects any registration,
// bots created in this call are deactivated (best effort) and the whole
// tool fails.
func (d *Deps) provisionDefaults(ctx context.Context, inv *invoker.Identity, raw json.RawMessage) (json.RawMessage, error) {
	var createdBots []int64
	projects := make([]provisionedProject, 0, len(d.Provisioning.ProjectChannels))

	rollback := func() {
		for _, botID := range createdBots {
			if err := d.Store.SetUserActive(ctx, inv.Realm.ID, botID, false); err != nil {
				d.Logger.Error("provisioning rollback failed to deactivate bot",
					"realm_id", inv.Realm.ID, "bot_user_id", botID, "error", err)
			}
		}
	}

	for _, channel := range d.Provisioning.ProjectChannels {
		stream, err := d.ensureStream(ctx, inv.Realm.ID, channel)
		if err != nil {
			rollback()
			return nil, err
		}

		botEmail := fmt.Sprintf("%s-agent-bot@%s", channel, d.Provisioning.BotEmailDomain)
		bot, created, err := d.ensureBot(ctx, inv, botEmail, channel)
		if err != nil {
			rollback()
			return nil, err
		}
		if created {
			createdBots = append(createdBots, bot.ID)
		}

		if err := d.Store.Subscribe(ctx, stream.ID, bot.ID); err != nil {
			rollback()
			return nil, fmt.Errorf("subscribing bot to %q: %w", channel, err)
		}

		if d.Control.Configured() {
			_, err := d.Control.Call(ctx, "POST", "/s2s/control/projects/attach", map[string]any{
				"realm_id":  inv.Realm.ID,
				"stream":    channel,
				"bot_email": botEmail,
			})
			if err != nil {
				d.Logger.Warn("control plane rejected project registration",
					"realm_id", inv.Realm.ID, "stream", channel, "error", err)
				rollback()
				return nil, err
			}
		}

		projects = append(projects, provisionedProject{
			Stream:     channel,
			StreamID:   stream.ID,
			BotUserID:  bot.ID,
			BotEmail:   botEmail,
			BotCreated: created,
		})
	}

	d.Logger.Info("provisioned default projects",
		"realm_id", inv.Realm.ID, "count", len(projects), "bots_created", len(createdBots))

	return json.Marshal(map[string]any{"projects": projects})
}

// ensureStream returns the named stream, creating it if absent.
func (d *Deps) ensureStream(ctx context.Context, realmID int64, name string) (*store.Stream, error) {
	stream, err := d.Store.GetStreamByName(ctx, realmID, name)
	if err == nil {
		return stream, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading stream %q: %w", name, err)
	}

	stream = &store.Stream{
		RealmID:     realmID,
		Name:        name,
		Description: fmt.Sprintf("Default project channel for %s", name),
	}
	if err := d.Store.CreateStream(ctx, stream); err != nil {
		return nil, fmt.Errorf("creating stream %q: %w", name, err)
	}
	return stream, nil
}

// ensureBot returns the project bot for botEmail, creating it if absent.
// The second return value reports whether this call created it.
func (d *Deps) ensureBot(ctx context.Context, inv *invoker.Identity, botEmail, channel string) (*store.User, bool, error) {
	bot, err := d.Store.GetUserByEmail(ctx, inv.Realm.ID, botEmail)
	if err == nil {
		return bot, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("loading bot %q: %w", botEmail, err)
	}

	ownerID := inv.User.ID
	bot = &store.User{
		RealmID:    inv.Realm.ID,
		Email:      botEmail,
		FullName:   fmt.Sprintf("%s agent", channel),
		Role:       store.RoleMember,
		APIKey:     uuid.New().String(),
		IsBot:      true,
		IsActive:   true,
		BotOwnerID: &ownerID,
	}
	if err := d.Store.CreateUser(ctx, bot); err != nil {
		return nil, false, fmt.Errorf("creating bot %q: %w", botEmail, err)
	}
	return bot, true, nil
}
