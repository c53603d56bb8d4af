package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

type cycleKey struct{}
type scopeKey struct{}

// refreshScope names the credential a stretch of work is operating on.
type refreshScope struct {
	userID   string
	provider string
}

// NewCycleID generates an 8-character hex ID tagging one maintenance
// cycle or one on-demand token request.
func NewCycleID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithCycleID returns a new context carrying the given cycle ID.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

// CycleID extracts the cycle ID from ctx, returning ("", false) if not
// present.
func CycleID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(cycleKey{}).(string)
	return id, ok && id != ""
}

// WithRefreshScope returns a new context carrying the (user, provider)
// pair under work, so every log line inside a refresh names its
// credential without each call site repeating the attributes.
func WithRefreshScope(ctx context.Context, userID, provider string) context.Context {
	return context.WithValue(ctx, scopeKey{}, refreshScope{userID: userID, provider: provider})
}

// ContextHandler wraps an slog.Handler and injects "cycle_id",
// "user_id", and "provider" attributes from the context when present.
type ContextHandler struct {
	inner slog.Handler
}

func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := CycleID(ctx); ok {
		r.AddAttrs(slog.String("cycle_id", id))
	}
	if scope, ok := ctx.Value(scopeKey{}).(refreshScope); ok {
		r.AddAttrs(slog.String("user_id", scope.userID), slog.String("provider", scope.provider))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("context handler: %w", err)
	}
	return nil
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
