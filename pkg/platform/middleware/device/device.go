// Package device classifies the client software from its User-Agent so audit
// records name a browser rather than a raw header.
package device

import (
	"context"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type contextKeyDevice struct{}

// Info is the parsed client description.
type Info struct {
	Browser string
	Version string
	OS      string
	Mobile  bool
	Bot     bool
}

// Label is a short human-readable description, e.g. "Firefox 128.0 (Linux x86_64)".
func (i Info) Label() string {
	if i.Browser == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(i.Browser)
	if i.Version != "" {
		b.WriteString(" " + i.Version)
	}
	if i.OS != "" {
		b.WriteString(" (" + i.OS + ")")
	}
	return b.String()
}

// Parse interprets a User-Agent header.
func Parse(ua string) Info {
	if strings.TrimSpace(ua) == "" {
		return Info{}
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	return Info{
		Browser: name,
		Version: version,
		OS:      parsed.OS(),
		Mobile:  parsed.Mobile(),
		Bot:     parsed.Bot(),
	}
}

// Middleware parses the User-Agent once per request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithInfo(r.Context(), Parse(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the parsed client, or the zero Info.
func FromContext(ctx context.Context) Info {
	if info, ok := ctx.Value(contextKeyDevice{}).(Info); ok {
		return info
	}
	return Info{}
}

// WithInfo injects a parsed client into a context.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, contextKeyDevice{}, info)
}
