// Package requesttime pins one "now" per request so cooldown checks, record
// timestamps, and audit events within a request agree.
package requesttime

import (
	"net/http"
	"time"

	"faucet/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
