// ABOUTME: Tool descriptor registry with trust tiers.
// ABOUTME: Built once at startup and immutable afterwards; lookup is read-only.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/2389/warden/internal/invoker"
)

// Tier classifies how much damage a tool can do.
type Tier string

const (
	// TierSafe tools are read-mostly and available to trusted operators.
	TierSafe Tier = "safe"
	// TierDangerous tools mutate tenant state and require an administrator.
	TierDangerous Tier = "dangerous"
)

// Handler executes a tool for a resolved invoker. Args arrive as raw JSON
// and each handler decodes them into its own typed struct.
type Handler func(ctx context.Context, inv *invoker.Identity, args json.RawMessage) (json.RawMessage, error)

// Descriptor describes a registered tool.
type Descriptor struct {
	Name        string
	Description string
	Tier        Tier
	Handler     Handler
}

// Registry is an immutable name-to-descriptor index. All registration
// happens through NewRegistry; there is deliberately no Add method.
type Registry struct {
	byName map[string]*Descriptor
}

// NewRegistry builds a registry from descriptors, rejecting duplicates and
// descriptors without handlers.
func NewRegistry(descs []Descriptor) (*Registry, error) {
	byName := make(map[string]*Descriptor, len(descs))
	for i := range descs {
		d := descs[i]
		if d.Name == "" {
			return nil, fmt.Errorf("tool descriptor without a name")
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", d.Name)
		}
		switch d.Tier {
		case TierSafe, TierDangerous:
		default:
			return nil, fmt.Errorf("tool %q has invalid tier %q", d.Name, d.Tier)
		}
		if _, exists := byName[d.Name]; exists {
			return nil, fmt.Errorf("duplicate tool %q", d.Name)
		}
		byName[d.Name] = &d
	}
	return &Registry{byName: byName}, nil
}

// Get returns the descriptor for a tool name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
