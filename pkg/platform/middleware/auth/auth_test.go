package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faucet/pkg/requestcontext"
)

type stubValidator map[string]requestcontext.Identity

func (s stubValidator) ValidateSession(token string) (requestcontext.Identity, error) {
	if ident, ok := s[token]; ok {
		return ident, nil
	}
	return requestcontext.Identity{}, errors.New("invalid")
}

type stubResolver struct {
	login string
	err   error
	calls int
}

func (s *stubResolver) Login(context.Context, string) (string, error) {
	s.calls++
	return s.login, s.err
}

var validator = stubValidator{
	"good":      {Handle: "alice", Email: "alice@example.com", Subject: "1"},
	"subj-only": {Email: "bob@example.com", Subject: "2"},
}

func serve(t *testing.T, resolver HandleResolver, req *http.Request) (*httptest.ResponseRecorder, requestcontext.Identity) {
	t.Helper()
	var seen requestcontext.Identity
	h := RequireSession(validator, resolver, slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestcontext.CallerIdentity(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireSession(t *testing.T) {
	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good"})
		rec, ident := serve(t, nil, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "alice", ident.Handle)
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec, ident := serve(t, nil, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "alice@example.com", ident.Email)
	})

	t.Run("missing token", func(t *testing.T) {
		rec, _ := serve(t, nil, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), MsgSignInRequired)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rec, _ := serve(t, nil, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireSessionResolvesHandle(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer subj-only")

	t.Run("resolved", func(t *testing.T) {
		resolver := &stubResolver{login: "bob"}
		rec, ident := serve(t, resolver, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "bob", ident.Handle)
		assert.Equal(t, 1, resolver.calls)
	})

	t.Run("resolver failure", func(t *testing.T) {
		rec, _ := serve(t, &stubResolver{err: errors.New("rate limited")}, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Unable to verify GitHub account")
	})

	t.Run("no resolver", func(t *testing.T) {
		rec, _ := serve(t, nil, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Unable to verify GitHub account")
	})
}

func TestTokenFromRequestPrefersCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-cookie", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(req))
}
