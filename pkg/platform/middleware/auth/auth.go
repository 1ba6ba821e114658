// Package auth establishes the caller identity from the faucet session token.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "faucet/pkg/domain-errors"
	"faucet/pkg/platform/httputil"
	"faucet/pkg/requestcontext"
)

// SessionCookie is the cookie carrying the session token for browser clients.
const SessionCookie = "faucet_session"

// Messages returned to callers the middleware turns away.
const (
	MsgSignInRequired    = "Please sign in first"
	MsgUnverifiedAccount = "Unable to verify GitHub account"
)

// SessionValidator verifies a session token and returns the caller it names.
type SessionValidator interface {
	ValidateSession(token string) (requestcontext.Identity, error)
}

// HandleResolver maps a provider subject to the account handle when the
// session does not carry one.
type HandleResolver interface {
	Login(ctx context.Context, subject string) (string, error)
}

// TokenFromRequest returns the session token from the cookie or, failing
// that, from a Bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// RequireSession rejects requests without a valid session and places the
// caller identity in the request context. resolver may be nil.
func RequireSession(validator SessionValidator, resolver HandleResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token := TokenFromRequest(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing session",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, MsgSignInRequired))
				return
			}

			ident, err := validator.ValidateSession(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid session",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired session"))
				return
			}

			if ident.Handle == "" && ident.Subject != "" && resolver != nil {
				login, err := resolver.Login(ctx, ident.Subject)
				if err != nil {
					logger.ErrorContext(ctx, "failed to resolve account handle",
						"subject", ident.Subject,
						"error", err,
						"request_id", requestID,
					)
				}
				ident.Handle = login
			}
			if ident.Handle == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, MsgUnverifiedAccount))
				return
			}

			ctx = requestcontext.WithIdentity(ctx, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
