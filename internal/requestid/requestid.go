// Package requestid carries a per-request correlation ID through contexts so
// every log line for one gateway request can be tied together.
package requestid

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type contextKey struct{}

// New generates a request ID.
func New() string {
	id, err := gonanoid.New()
	if err != nil {
		return "unknown"
	}
	return id
}

// With attaches a request ID to the context.
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// From returns the request ID in the context, or "" when absent.
func From(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// Logger returns base with the context's request ID attached, if any.
func Logger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	id := From(ctx)
	if id == "" {
		return base
	}
	return base.With().Str("request_id", id).Logger()
}
