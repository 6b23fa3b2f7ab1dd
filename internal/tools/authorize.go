// ABOUTME: Role-based authorization gate for tool execution.
// ABOUTME: Safe tools admit admins and trusted operators; dangerous tools admit admins only.

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/warden/internal/invoker"
	"github.com/2389/warden/internal/store"
)

// ErrAccessDenied is returned when the invoker's role does not admit the
// requested tool. The body message is deliberately generic.
var ErrAccessDenied = errors.New("Access denied")

// Authorizer decides whether an invoker may run a tool.
type Authorizer struct {
	store        store.Store
	trustedGroup string
	logger       *slog.Logger
}

// NewAuthorizer creates an Authorizer. trustedGroup names the per-realm
// group whose members may run safe-tier tools.
func NewAuthorizer(st store.Store, trustedGroup string, logger *slog.Logger) *Authorizer {
	return &Authorizer{
		store:        st,
		trustedGroup: trustedGroup,
		logger:       logger.With("component", "authorize"),
	}
}

// Authorize checks the invoker's role against the tool's tier. Realm
// administrators may run everything; trusted-group members may run safe
// tools only. A missing or deactivated trusted group counts as
// non-membership, never as an error.
func (a *Authorizer) Authorize(ctx context.Context, inv *invoker.Identity, desc *Descriptor) error {
	if inv.User.IsAdmin() {
		return nil
	}

	if desc.Tier == TierDangerous {
		a.logger.Warn("non-admin denied dangerous tool",
			"realm_id", inv.Realm.ID, "user_id", inv.User.ID, "tool", desc.Name)
		return ErrAccessDenied
	}

	trusted, err := a.isTrustedOperator(ctx, inv)
	if err != nil {
		return fmt.Errorf("checking trusted group membership: %w", err)
	}
	if !trusted {
		a.logger.Warn("invoker denied safe tool",
			"realm_id", inv.Realm.ID, "user_id", inv.User.ID, "tool", desc.Name)
		return ErrAccessDenied
	}
	return nil
}

// isTrustedOperator reports whether the invoker belongs to the realm's
// trusted operators group.
func (a *Authorizer) isTrustedOperator(ctx context.Context, inv *invoker.Identity) (bool, error) {
	group, err := a.store.GetGroupByName(ctx, inv.Realm.ID, a.trustedGroup)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if group.Deactivated {
		return false, nil
	}
	return a.store.IsGroupMember(ctx, group.ID, inv.User.ID)
}
