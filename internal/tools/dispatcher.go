// ABOUTME: Tool dispatch pipeline: lookup, authorize, fingerprint, dedupe, execute.
// ABOUTME: Unknown tools are rejected before any role evaluation.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/warden/internal/idempotency"
	"github.com/2389/warden/internal/invoker"
)

var (
	// ErrUnknownTool is returned for tool names absent from the registry.
	ErrUnknownTool = errors.New("Unknown tool")

	// ErrInvalidArgs is returned when a handler rejects its arguments.
	ErrInvalidArgs = errors.New("invalid tool arguments")
)

// invalidArgs wraps a handler validation message in ErrInvalidArgs.
func invalidArgs(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgs)...)
}

// Result is the outcome of a dispatch.
type Result struct {
	Tool    string
	Payload json.RawMessage
	Deduped bool
}

// Dispatcher routes tool calls through authorization and the idempotency
// cache to the registered handler.
type Dispatcher struct {
	registry   *Registry
	authorizer *Authorizer
	cache      *idempotency.Cache
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher over an immutable registry.
func NewDispatcher(registry *Registry, authorizer *Authorizer, cache *idempotency.Cache, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		authorizer: authorizer,
		cache:      cache,
		logger:     logger.With("component", "dispatch"),
	}
}

// Execute runs a tool call for a resolved invoker. Identical calls within
// the idempotency TTL execute once; duplicates receive the stored result
// with Deduped set. Failed executions are never stored, so a retry after an
// error runs again.
func (d *Dispatcher) Execute(ctx context.Context, inv *invoker.Identity, tool string, args json.RawMessage) (*Result, error) {
	desc, ok := d.registry.Get(tool)
	if !ok {
		return nil, ErrUnknownTool
	}

	if err := d.authorizer.Authorize(ctx, inv, desc); err != nil {
		return nil, err
	}

	key, err := idempotency.Fingerprint(inv.Realm.ID, inv.User.ID, inv.Proof.ID, tool, args)
	if err != nil {
		return nil, invalidArgs("fingerprinting call")
	}

	payload, deduped, err := d.cache.Do(key, func() (json.RawMessage, error) {
		return desc.Handler(ctx, inv, args)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("executed tool",
		"tool", tool, "realm_id", inv.Realm.ID, "user_id", inv.User.ID, "deduped", deduped)

	return &Result{Tool: tool, Payload: payload, Deduped: deduped}, nil
}
