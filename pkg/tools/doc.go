// Package tools loads MCP tool providers from descriptor files and composes
// per-role capability sets for agent sessions.
//
// Invariants:
// - Capabilities are immutable once loaded and shared read-only by sessions.
// - Loading is idempotent per descriptor name; a provider is started once.
// - Only the Registry starts or stops provider processes.
//
// Usage:
//
//	reg := tools.NewRegistry(logger)
//	_ = reg.Load(ctx, "config/tools_base.json", "config/tools_map.json")
//	caps, _ := tools.NewComposer(reg).Compose(tools.RoleAdmin)
//	_ = caps
package tools
