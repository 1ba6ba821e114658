// Package metadata records the client address and User-Agent in the request
// context.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"faucet/pkg/requestcontext"
)

// ClientMetadata should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest returns the first parseable address among the leftmost
// X-Forwarded-For entry, X-Real-IP and RemoteAddr, or "" when none parses.
func ClientIPFromRequest(r *http.Request) string {
	forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	candidates := []string{forwarded, r.Header.Get("X-Real-IP"), hostOf(r.RemoteAddr)}
	for _, c := range candidates {
		if addr, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(c), "[]")); err == nil {
			return addr.Unmap().String()
		}
	}
	return ""
}

func hostOf(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
