// Package agent builds and runs one conversational agent per user session.
//
// Invariants:
// - An agent's model binding, system prompt, and toolset are fixed at
//   creation and never change for the life of the session.
// - Conversation history is in-memory only and bounded.
// - Run is never called concurrently for the same agent; the session layer
//   serializes turns.
//
// Usage:
//
//	ag, _ := agent.New(agent.Params{
//		Username: "alice",
//		Model:    "gpt-4o",
//		APIKey:   "$OPENAI_API_KEY",
//	}, caps)
//	reply, _ := ag.Run(ctx, "hello")
//	_ = reply
package agent
