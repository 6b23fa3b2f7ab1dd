// ABOUTME: Operator policy overrides for the tool registry, loaded from TOML.
// ABOUTME: Supports reclassifying tool tiers and disabling tools at startup.

package tools

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// policyEntry is one tool's override in the policy file.
type policyEntry struct {
	Tier     string `toml:"tier"`
	Disabled bool   `toml:"disabled"`
}

// LoadPolicy reads a TOML policy file mapping tool names to overrides:
//
//	["cp.agents.index"]
//	tier = "dangerous"
//
//	["workspace.messages.send"]
//	disabled = true
//
// An empty path returns a nil policy, which applies no overrides.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return nil, nil
	}

	var entries map[string]policyEntry
	if _, err := toml.DecodeFile(path, &entries); err != nil {
		return nil, fmt.Errorf("reading tool policy %s: %w", path, err)
	}

	return Policy(entries), nil
}

// Policy maps tool names to their overrides.
type Policy map[string]policyEntry

// Apply rewrites descriptors according to the policy: disabled tools are
// dropped and tier overrides replace the built-in tier. Unknown tool names
// in the policy are an error so typos fail loudly at startup.
func (p Policy) Apply(descs []Descriptor) ([]Descriptor, error) {
	if p == nil {
		return descs, nil
	}

	byName := make(map[string]bool, len(descs))
	for _, d := range descs {
		byName[d.Name] = true
	}
	for name := range p {
		if !byName[name] {
			return nil, fmt.Errorf("tool policy references unknown tool %q", name)
		}
	}

	out := make([]Descriptor, 0, len(descs))
	for _, d := range descs {
		entry, ok := p[d.Name]
		if !ok {
			out = append(out, d)
			continue
		}
		if entry.Disabled {
			continue
		}
		if entry.Tier != "" {
			switch Tier(entry.Tier) {
			case TierSafe, TierDangerous:
				d.Tier = Tier(entry.Tier)
			default:
				return nil, fmt.Errorf("tool policy for %q has invalid tier %q", d.Name, entry.Tier)
			}
		}
		out = append(out, d)
	}
	return out, nil
}
