// Package session owns the lifecycle of per-user agent sessions: the
// concurrency-safe username-to-record store, per-session turn serialization,
// and the background reaper that evicts idle sessions.
//
// Invariants:
// - At most one record per username at any instant; a re-login atomically
//   replaces the prior record and releases its resources exactly once.
// - Chat turns for one user never run concurrently; turns for different
//   users never block on each other.
// - The reaper never evicts a session whose execution lock is held.
//
// Usage:
//
//	mgr := session.NewManager(session.ManagerConfig{...})
//	_ = mgr.Login(ctx, session.LoginParams{Username: "alice", ...})
//	reply, _ := mgr.Chat(ctx, "alice", "hello")
//	mgr.Logout("alice")
package session
