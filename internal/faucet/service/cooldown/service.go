// Package cooldown enforces at most one successful distribution per identity
// per window.
package cooldown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"faucet/internal/faucet/models"
	"faucet/internal/faucet/ports"
	dErrors "faucet/pkg/domain-errors"
	"faucet/pkg/platform/sentinel"
	"faucet/pkg/requestcontext"
)

// DefaultWindow applies when no window is configured.
const DefaultWindow = 24 * time.Hour

type Store = ports.Store

type Service struct {
	store  Store
	window time.Duration
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithWindow sets the cooldown length. Non-positive values are ignored.
func WithWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cooldown store is required")
	}
	svc := &Service{
		store:  store,
		window: DefaultWindow,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Window returns the configured cooldown length.
func (s *Service) Window() time.Duration {
	return s.window
}

// Check reports whether identity may receive a distribution now. Inside the
// window the decision carries the whole minutes remaining, rounded up; at
// exactly last+window the identity is allowed again.
func (s *Service) Check(ctx context.Context, identity string) (models.CooldownDecision, error) {
	last, ok, err := s.last(ctx, identity)
	if err != nil {
		return models.CooldownDecision{}, err
	}
	if !ok {
		return models.CooldownDecision{Allowed: true}, nil
	}

	now := requestcontext.Now(ctx)
	retryAt := last.Add(s.window)
	if !now.Before(retryAt) {
		return models.CooldownDecision{Allowed: true}, nil
	}
	remaining := retryAt.Sub(now)
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	return models.CooldownDecision{
		Allowed:          false,
		MinutesRemaining: minutes,
		RetryAt:          retryAt,
	}, nil
}

// Record stores at as the identity's last successful distribution.
func (s *Service) Record(ctx context.Context, identity string, at time.Time) error {
	if identity == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "identity cannot be empty")
	}
	value := []byte(strconv.FormatInt(at.UnixMilli(), 10))
	// The mark outlives the window slightly so expiry never races the
	// read-time comparison.
	ttl := s.window + time.Minute
	if err := s.store.Set(ctx, models.CooldownKey(identity), value, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record cooldown")
	}
	return nil
}

func (s *Service) last(ctx context.Context, identity string) (time.Time, bool, error) {
	raw, err := s.store.Get(ctx, models.CooldownKey(identity))
	if errors.Is(err, sentinel.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read cooldown")
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		s.logger.WarnContext(ctx, "ignoring unreadable cooldown mark",
			"identity", identity,
			"error", err,
		)
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms).UTC(), true, nil
}
