// Package requestcontext carries request-scoped values (caller identity,
// client metadata, request ID and request time) through context.Context.
package requestcontext

import (
	"context"
	"strings"
	"time"
)

type contextKey string

const (
	ContextKeyIdentity    contextKey = "identity"
	ContextKeyClientIP    contextKey = "client_ip"
	ContextKeyUserAgent   contextKey = "user_agent"
	ContextKeyRequestID   contextKey = "request_id"
	ContextKeyRequestTime contextKey = "request_time"
)

// -----------------------------------------------------------------------------
// Caller identity
// -----------------------------------------------------------------------------

// Identity is the authenticated caller as established by the session layer.
// Handle is the provider-verified account handle (e.g. a GitHub login) and is
// used verbatim as the key for all per-user state.
type Identity struct {
	Handle  string
	Email   string
	Subject string
}

// IsZero reports whether no caller was established.
func (i Identity) IsZero() bool {
	return i.Handle == ""
}

// CallerIdentity retrieves the caller identity from the context.
// Returns the zero value if the request is unauthenticated.
func CallerIdentity(ctx context.Context) Identity {
	if ident, ok := ctx.Value(ContextKeyIdentity).(Identity); ok {
		return ident
	}
	return Identity{}
}

// Handle is shorthand for CallerIdentity(ctx).Handle.
func Handle(ctx context.Context) string {
	return CallerIdentity(ctx).Handle
}

// WithIdentity injects a caller identity into the context.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	ident.Handle = strings.TrimSpace(ident.Handle)
	return context.WithValue(ctx, ContextKeyIdentity, ident)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like the cache
// warmer, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
