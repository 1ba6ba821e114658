package testutil

import (
	"net/http"
	"time"

	"faucet/pkg/requestcontext"
)

// WithIdentity adds a caller to the request context, as the session
// middleware would for an authenticated request.
func WithIdentity(req *http.Request, handle, email string) *http.Request {
	ctx := requestcontext.WithIdentity(req.Context(), requestcontext.Identity{Handle: handle, Email: email})
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
