package tools

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Capability is an immutable handle to one named, started tool provider.
// It is shared read-only by every session whose role includes it.
type Capability struct {
	Name     string
	Scope    Scope
	Required bool

	client *MCPClient
}

// Tools lists the tools this capability's provider exposes.
func (c *Capability) Tools(ctx context.Context) ([]ToolSpec, error) {
	return c.client.Tools(ctx)
}

// Call invokes one of the provider's tools.
func (c *Capability) Call(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	return c.client.CallTool(ctx, tool, args)
}

// Registry owns the tool provider processes. It loads descriptor files,
// starts one provider per capability, and shuts them down at teardown.
// Capabilities it hands out stay valid until Shutdown.
type Registry struct {
	mu     sync.Mutex
	caps   map[string]*Capability
	order  []string
	failed map[string]Descriptor
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		caps:   make(map[string]*Capability),
		failed: make(map[string]Descriptor),
		logger: logger,
	}
}

// Load reads descriptor files and starts their providers. Malformed files
// yield ConfigError; a provider that fails to start is recorded as
// unavailable but does not abort loading of the remaining descriptors.
// Loading an already-loaded capability name reuses the existing handle.
func (r *Registry) Load(ctx context.Context, paths ...string) error {
	var errs []error
	for _, path := range paths {
		descriptors, err := LoadDescriptors(path)
		if err != nil {
			r.logger.Error().Str("path", path).Err(err).Msg("Tool descriptor file rejected")
			errs = append(errs, err)
			continue
		}
		for _, d := range descriptors {
			r.register(ctx, d)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) register(ctx context.Context, d Descriptor) {
	r.mu.Lock()
	if _, exists := r.caps[d.Name]; exists {
		r.mu.Unlock()
		r.logger.Debug().Str("capability", d.Name).Msg("Capability already loaded, reusing handle")
		return
	}
	if _, failedBefore := r.failed[d.Name]; failedBefore {
		// Startup failures are terminal for the capability; composers see
		// them as unavailable rather than retrying per call.
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	client := NewMCPClient(d.Name, d.Command, d.Args, d.Env)
	if err := client.Start(ctx); err != nil {
		r.logger.Error().
			Str("capability", d.Name).
			Str("source", d.Source).
			Err(err).
			Msg("Tool provider failed to start")
		r.mu.Lock()
		r.failed[d.Name] = d
		r.mu.Unlock()
		return
	}

	cap := &Capability{
		Name:     d.Name,
		Scope:    d.Scope,
		Required: d.Required,
		client:   client,
	}

	r.mu.Lock()
	// A concurrent Load may have won the race; keep the first provider and
	// stop the duplicate so no process leaks.
	if _, exists := r.caps[d.Name]; exists {
		r.mu.Unlock()
		_ = client.Stop()
		return
	}
	r.caps[d.Name] = cap
	r.order = append(r.order, d.Name)
	r.mu.Unlock()

	r.logger.Info().
		Str("capability", d.Name).
		Str("scope", string(d.Scope)).
		Str("source", d.Source).
		Msg("Tool provider started")
}

// Get returns a loaded capability by name.
func (r *Registry) Get(name string) (*Capability, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cap, ok := r.caps[name]
	return cap, ok
}

// Capabilities returns all loaded capabilities in load order.
func (r *Registry) Capabilities() []*Capability {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.caps[name])
	}
	return out
}

// Unavailable returns descriptors whose providers failed to start.
func (r *Registry) Unavailable() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, 0, len(r.failed))
	for _, d := range r.failed {
		out = append(out, d)
	}
	return out
}

// Shutdown stops every provider. Best-effort: a provider that is already
// gone is not an error and does not block the others.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	caps := make([]*Capability, 0, len(r.order))
	for _, name := range r.order {
		caps = append(caps, r.caps[name])
	}
	r.mu.Unlock()

	for _, cap := range caps {
		if err := cap.client.Stop(); err != nil {
			r.logger.Warn().Str("capability", cap.Name).Err(err).Msg("Provider stop failed")
		}
	}
	r.logger.Info().Int("providers", len(caps)).Msg("Tool registry shut down")
}
