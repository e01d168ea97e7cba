package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prasetya/wisma/internal/metrics"
)

// ErrCapabilityUnavailable reports that a required capability failed to load
// at startup and the requested role cannot be composed without it.
var ErrCapabilityUnavailable = errors.New("capability unavailable")

// CapabilitySet is the ordered, deduplicated set of capabilities assembled
// for one session. Built fresh per login; never mutated afterwards.
type CapabilitySet struct {
	caps []*Capability
}

// Len returns the number of capabilities in the set.
func (s CapabilitySet) Len() int { return len(s.caps) }

// Names returns the capability names in composition order.
func (s CapabilitySet) Names() []string {
	names := make([]string, len(s.caps))
	for i, c := range s.caps {
		names[i] = c.Name
	}
	return names
}

type toolRef struct {
	cap      *Capability
	toolName string
}

// index maps exposed tool names to their providers. When two providers
// expose the same tool name, later ones are exposed as <capability>_<tool>.
// Provider tool lists are cached, so the mapping is stable for the life of
// the set.
func (s CapabilitySet) index(ctx context.Context) (map[string]toolRef, []ToolSpec, error) {
	refs := make(map[string]toolRef)
	var specs []ToolSpec

	for _, cap := range s.caps {
		capTools, err := cap.Tools(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, spec := range capTools {
			exposed := spec.Name
			if _, taken := refs[exposed]; taken {
				exposed = fmt.Sprintf("%s_%s", cap.Name, spec.Name)
			}
			refs[exposed] = toolRef{cap: cap, toolName: spec.Name}
			spec.Name = exposed
			specs = append(specs, spec)
		}
	}
	return refs, specs, nil
}

// Tools lists every tool the set exposes, with collision-safe names.
func (s CapabilitySet) Tools(ctx context.Context) ([]ToolSpec, error) {
	_, specs, err := s.index(ctx)
	return specs, err
}

// Call routes a tool invocation to the owning provider.
func (s CapabilitySet) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	refs, _, err := s.index(ctx)
	if err != nil {
		return "", err
	}
	ref, ok := refs[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	start := time.Now()
	out, err := ref.cap.Call(ctx, ref.toolName, args)
	metrics.RecordToolCall(name, time.Since(start), err == nil)
	return out, err
}

// Composer assembles capability sets by role. Pure with respect to registry
// contents: the same registry state and role always yield the same set.
type Composer struct {
	registry *Registry
}

// NewComposer creates a composer over a registry.
func NewComposer(registry *Registry) *Composer {
	return &Composer{registry: registry}
}

// Compose selects the capabilities visible to a role. Standard roles see
// standard-scope capabilities only; admin sees the union of standard and
// privileged. Fails when a required capability for the role failed to load.
func (c *Composer) Compose(role Role) (CapabilitySet, error) {
	visible, err := scopesFor(role)
	if err != nil {
		return CapabilitySet{}, err
	}

	for _, d := range c.registry.Unavailable() {
		if d.Required && visible[d.Scope] {
			return CapabilitySet{}, fmt.Errorf("%w: %s", ErrCapabilityUnavailable, d.Name)
		}
	}

	var caps []*Capability
	for _, cap := range c.registry.Capabilities() {
		if visible[cap.Scope] {
			caps = append(caps, cap)
		}
	}
	return CapabilitySet{caps: caps}, nil
}

func scopesFor(role Role) (map[Scope]bool, error) {
	switch role {
	case RoleStandard:
		return map[Scope]bool{ScopeStandard: true}, nil
	case RoleAdmin:
		return map[Scope]bool{ScopeStandard: true, ScopePrivileged: true}, nil
	default:
		return nil, fmt.Errorf("unknown role: %s", role)
	}
}
