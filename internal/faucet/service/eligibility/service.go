// Package eligibility decides whether an identity may use the faucet without
// admin review: it must be allow-listed or own a project listed in the
// reference set.
package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"faucet/internal/faucet/metrics"
	"faucet/internal/faucet/models"
	"faucet/internal/faucet/ports"
	"faucet/pkg/platform/sentinel"
)

// DefaultTTL is how long a fetched reference set is cached.
const DefaultTTL = time.Hour

type (
	Store           = ports.Store
	AllowList       = ports.AllowList
	ReferenceSource = ports.ReferenceSource
)

type Service struct {
	store     Store
	allowList AllowList
	source    ReferenceSource
	ttl       time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	fetches   singleflight.Group
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTTL sets the reference-set cache lifetime. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func New(store Store, allowList AllowList, source ReferenceSource, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("eligibility store is required")
	}
	if allowList == nil {
		return nil, fmt.Errorf("allow-list is required")
	}
	if source == nil {
		return nil, fmt.Errorf("reference source is required")
	}
	svc := &Service{
		store:     store,
		allowList: allowList,
		source:    source,
		ttl:       DefaultTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IsEligible reports whether identity is allow-listed or listed as a project
// owner in the reference set. Reference-set failures are logged and count as
// not eligible; only allow-list read failures are returned.
func (s *Service) IsEligible(ctx context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, nil
	}
	allowed, err := s.allowList.IsAllowed(ctx, identity)
	if err != nil {
		return false, err
	}
	if allowed {
		return true, nil
	}
	return matches(s.referenceSet(ctx), identity), nil
}

// Refresh fetches the reference set and overwrites the cache. It returns the
// number of owner handles cached.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	handles, err := s.fetch(ctx)
	if err != nil {
		return 0, err
	}
	return len(handles), nil
}

func (s *Service) referenceSet(ctx context.Context) map[string]struct{} {
	if cached, ok := s.cached(ctx); ok {
		s.metrics.IncReferenceCacheHit()
		return ownerSet(cached)
	}

	// Concurrent misses share one fetch; the shared fetch must not be cut
	// short by whichever caller started it going away.
	v, _, _ := s.fetches.Do(models.KeyReferenceCache, func() (any, error) {
		handles, err := s.fetch(context.WithoutCancel(ctx))
		if err != nil {
			s.logger.WarnContext(ctx, "reference set unavailable, treating as empty",
				"error", err,
				"partial_handles", len(handles),
			)
		}
		return handles, nil
	})
	handles, _ := v.([]string)
	return ownerSet(handles)
}

// fetch loads the remote document and caches it when complete and non-empty.
// On error the returned handles are whatever the source managed to read.
func (s *Service) fetch(ctx context.Context) ([]string, error) {
	handles, err := s.source.Handles(ctx)
	if err != nil {
		s.metrics.IncReferenceFetch("error")
		return handles, fmt.Errorf("fetch reference set: %w", err)
	}
	s.metrics.IncReferenceFetch("ok")
	s.metrics.SetReferenceHandles(len(handles))
	if len(handles) == 0 {
		return handles, nil
	}

	raw, err := json.Marshal(handles)
	if err != nil {
		return handles, fmt.Errorf("encode reference set: %w", err)
	}
	if err := s.store.Set(ctx, models.KeyReferenceCache, raw, s.ttl); err != nil {
		// The fetched set is still good for this request.
		s.logger.WarnContext(ctx, "failed to cache reference set", "error", err)
	}
	return handles, nil
}

func (s *Service) cached(ctx context.Context) ([]string, bool) {
	raw, err := s.store.Get(ctx, models.KeyReferenceCache)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read cached reference set", "error", err)
		return nil, false
	}
	var handles []string
	if err := json.Unmarshal(raw, &handles); err != nil || len(handles) == 0 {
		s.logger.WarnContext(ctx, "ignoring unreadable cached reference set", "error", err)
		return nil, false
	}
	return handles, true
}

func ownerSet(handles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			set[h] = struct{}{}
		}
	}
	return set
}

// matches tries the lowercased handle and its normalized form, which keeps
// only [a-z0-9-].
func matches(owners map[string]struct{}, identity string) bool {
	lower := strings.ToLower(identity)
	if _, ok := owners[lower]; ok {
		return true
	}
	if normalized := normalize(lower); normalized != "" && normalized != lower {
		_, ok := owners[normalized]
		return ok
	}
	return false
}

func normalize(handle string) string {
	var b strings.Builder
	for _, r := range handle {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
