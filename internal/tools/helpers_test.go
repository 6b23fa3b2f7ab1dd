// ABOUTME: Shared test fixtures for the tools package
// ABOUTME: Builds a real SQLite store, resolved identities, and handler deps

package tools

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"

	"github.com/2389/warden/internal/branding"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/controlplane"
	"github.com/2389/warden/internal/invoker"
	"github.com/2389/warden/internal/store"
)

type fixture struct {
	store *store.SQLiteStore
	realm *store.Realm
	admin *store.User
	deps  *Deps
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	realm := &store.Realm{Name: "Acme", Host: "acme.example.com"}
	require.NoError(t, st.CreateRealm(ctx, realm))

	admin := &store.User{RealmID: realm.ID, Email: "admin@acme.example.com", FullName: "Admin", Role: store.RoleAdmin, APIKey: "k", IsActive: true}
	require.NoError(t, st.CreateUser(ctx, admin))

	deps := &Deps{
		Store:   st,
		Control: controlplane.NewClient(config.ControlPlaneConfig{Timeout: time.Second}, slog.Default()),
		Runtime: controlplane.NewRuntimeClient(config.RuntimeConfig{Timeout: time.Second}, slog.Default()),
		Defaults: branding.DefaultsFromConfig(config.BrandingConfig{
			Name:         "Warden",
			SupportEmail: "support@warden.example.com",
			URLs: config.BrandingURLsConf{
				Homepage: "https://warden.example.com",
				Help:     "https://help.warden.example.com",
			},
		}),
		Provisioning: config.ProvisioningConfig{
			ProjectChannels: []string{"warden-code", "warden-chat"},
			BotEmailDomain:  "acme.example.com",
		},
		Markdown: goldmark.New(),
		Logger:   slog.Default(),
	}

	return &fixture{store: st, realm: realm, admin: admin, deps: deps}
}

// withControlPlane points the fixture's control plane client at a test server.
func (f *fixture) withControlPlane(t *testing.T, server *httptest.Server) {
	t.Helper()
	f.deps.Control = controlplane.NewClient(config.ControlPlaneConfig{
		BaseURL:      server.URL,
		SharedSecret: "cp-secret",
		Timeout:      2 * time.Second,
	}, slog.Default())
}

// identity builds a resolved invoker identity with a fresh proof message.
func (f *fixture) identity(t *testing.T, user *store.User) *invoker.Identity {
	t.Helper()
	ctx := context.Background()

	stream, err := f.store.GetStreamByName(ctx, f.realm.ID, "general")
	if err != nil {
		stream = &store.Stream{RealmID: f.realm.ID, Name: "general"}
		require.NoError(t, f.store.CreateStream(ctx, stream))
	}

	proof := &store.Message{
		RealmID:  f.realm.ID,
		SenderID: user.ID,
		StreamID: stream.ID,
		Topic:    "ops",
		Content:  "do the thing",
		SentAt:   time.Now().UTC(),
	}
	require.NoError(t, f.store.SaveMessage(ctx, proof))

	return &invoker.Identity{Realm: f.realm, User: user, Proof: proof}
}

// member creates an active non-admin human user.
func (f *fixture) member(t *testing.T, email string) *store.User {
	t.Helper()
	user := &store.User{RealmID: f.realm.ID, Email: email, FullName: "Member", APIKey: "k", IsActive: true}
	require.NoError(t, f.store.CreateUser(context.Background(), user))
	return user
}

// trustedOperator creates a member and adds them to the Sponsors group.
func (f *fixture) trustedOperator(t *testing.T, email string) *store.User {
	t.Helper()
	ctx := context.Background()

	user := f.member(t, email)
	group, err := f.store.GetGroupByName(ctx, f.realm.ID, "Sponsors")
	if err != nil {
		group = &store.Group{RealmID: f.realm.ID, Name: "Sponsors"}
		require.NoError(t, f.store.CreateGroup(ctx, group))
	}
	require.NoError(t, f.store.AddGroupMember(ctx, group.ID, user.ID))
	return user
}
