// Package ctxkeys defines the typed context keys shared between the HTTP
// middleware and the handlers.
package ctxkeys

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	identityKey  contextKey = "identity"
)

// WithRequestID stores the request id on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id, if one was set.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithIdentity stores the authenticated caller identity on the context.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Identity returns the authenticated caller identity. An empty result means
// the request was anonymous.
func Identity(ctx context.Context) string {
	v, _ := ctx.Value(identityKey).(string)
	return v
}
