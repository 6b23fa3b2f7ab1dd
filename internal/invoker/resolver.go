// ABOUTME: Invoker identity and proof-of-action resolution for tool execution.
// ABOUTME: Checks realm, user state, and the freshness of the invoker's proof message.

package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/warden/internal/store"
)

// Resolution failures, in the order the checks run. The messages are part of
// the S2S API contract.
var (
	ErrRealmNotFound      = errors.New("Realm not found.")
	ErrInvokerNotFound    = errors.New("Invoker not found.")
	ErrInvokerDeactivated = errors.New("Invoker is deactivated")
	ErrInvokerNotHuman    = errors.New("Invoker must be a human user")
	ErrMessageNotFound    = errors.New("Message not found")
	ErrProofMismatch      = errors.New("Access denied")
	ErrProofStale         = errors.New("Invoker message is too old.")
)

// Identity is a fully resolved invoker: the tenant, the human user acting,
// and the recent message proving they acted.
type Identity struct {
	Realm *store.Realm
	User  *store.User
	Proof *store.Message
}

// Resolver validates invoker references against the store.
type Resolver struct {
	store  store.Store
	maxAge time.Duration
	logger *slog.Logger
}

// NewResolver creates a Resolver. maxAge bounds how old the proof message
// may be.
func NewResolver(st store.Store, maxAge time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  st,
		maxAge: maxAge,
		logger: logger.With("component", "invoker"),
	}
}

// Resolve checks the invoker reference in a fixed order: realm, user
// existence, user active, user human, proof message existence, proof sender,
// proof age. The first failing check wins; later checks never mask earlier
// ones.
func (r *Resolver) Resolve(ctx context.Context, realmID, userID, messageID int64) (*Identity, error) {
	realm, err := r.store.GetRealm(ctx, realmID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRealmNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading realm %d: %w", realmID, err)
	}

	user, err := r.store.GetUser(ctx, realmID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvokerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading invoker %d: %w", userID, err)
	}

	if !user.IsActive {
		return nil, ErrInvokerDeactivated
	}
	if user.IsBot {
		return nil, ErrInvokerNotHuman
	}

	proof, err := r.store.GetMessage(ctx, realmID, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading proof message %d: %w", messageID, err)
	}

	if proof.SenderID != user.ID {
		r.logger.Warn("proof message sender mismatch",
			"realm_id", realmID, "invoker_id", userID, "message_id", messageID, "sender_id", proof.SenderID)
		return nil, ErrProofMismatch
	}

	if time.Since(proof.SentAt) > r.maxAge {
		return nil, ErrProofStale
	}

	return &Identity{Realm: realm, User: user, Proof: proof}, nil
}
