// Package identity verifies faucet session tokens and resolves provider
// subjects to account handles.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "faucet/pkg/domain-errors"
	"faucet/pkg/requestcontext"
)

// Claims are carried by the session token issued after the provider sign-in.
type Claims struct {
	Handle string `json:"handle,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SessionService signs and validates HS256 session tokens.
type SessionService struct {
	signingKey []byte
	issuer     string
}

func NewSessionService(signingKey, issuer string) *SessionService {
	return &SessionService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// GenerateSessionToken issues a token for the given caller. The sign-in flow
// lives outside this service; this is used by tooling and tests.
func (s *SessionService) GenerateSessionToken(ident requestcontext.Identity, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Handle: ident.Handle,
		Email:  ident.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *SessionService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	if claims.Handle == "" && claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session carries no identity")
	}
	return claims, nil
}

// ValidateSession adapts ValidateToken to the session middleware.
func (s *SessionService) ValidateSession(tokenString string) (requestcontext.Identity, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return requestcontext.Identity{}, err
	}
	return requestcontext.Identity{
		Handle:  claims.Handle,
		Email:   claims.Email,
		Subject: claims.Subject,
	}, nil
}
