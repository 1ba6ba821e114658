// Package admin restricts routes to the configured operator account.
package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	dErrors "faucet/pkg/domain-errors"
	"faucet/pkg/platform/audit"
	"faucet/pkg/platform/httputil"
	"faucet/pkg/requestcontext"
)

// AuditPublisher receives denied admin attempts.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// RequireAdmin allows the request only when the verified caller email equals
// adminEmail. It must run after the session middleware. publisher may be nil.
func RequireAdmin(adminEmail string, publisher AuditPublisher, logger *slog.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.ToLower(strings.TrimSpace(adminEmail)))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.CallerIdentity(ctx)
			got := []byte(strings.ToLower(strings.TrimSpace(caller.Email)))

			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				logger.WarnContext(ctx, "admin access denied",
					"identity", caller.Handle,
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				if publisher != nil {
					event := audit.NewEvent(ctx, audit.ActionAdminDenied,
						"identity", caller.Handle,
						"reason", r.URL.Path,
					)
					if err := publisher.Emit(ctx, event); err != nil {
						logger.WarnContext(ctx, "failed to emit audit event", "error", err)
					}
				}
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Unauthorized"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
