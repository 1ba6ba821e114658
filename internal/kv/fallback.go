package kv

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"faucet/pkg/platform/circuit"
	"faucet/pkg/platform/sentinel"
)

const (
	defaultOpTimeout     = 2 * time.Second
	defaultProbeInterval = 5 * time.Second
)

// FallbackStore serves from a durable primary and degrades to an in-process
// fallback when the primary is unreachable. Primary failures never reach
// callers. While the circuit is open the primary is probed at most once per
// probe interval; it is trusted again after the breaker's success threshold.
//
// State written to the fallback during an outage is not replayed to the
// primary.
type FallbackStore struct {
	primary       Store
	fallback      Store
	breaker       *circuit.Breaker
	logger        *slog.Logger
	metrics       *Metrics
	opTimeout     time.Duration
	probeInterval time.Duration
	now           func() time.Time

	mu        sync.Mutex
	lastProbe time.Time
}

type FallbackOption func(*FallbackStore)

func WithLogger(logger *slog.Logger) FallbackOption {
	return func(s *FallbackStore) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) FallbackOption {
	return func(s *FallbackStore) {
		s.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) FallbackOption {
	return func(s *FallbackStore) {
		if b != nil {
			s.breaker = b
		}
	}
}

// WithOpTimeout bounds every primary call.
func WithOpTimeout(d time.Duration) FallbackOption {
	return func(s *FallbackStore) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

func WithProbeInterval(d time.Duration) FallbackOption {
	return func(s *FallbackStore) {
		if d > 0 {
			s.probeInterval = d
		}
	}
}

// NewFallback wraps primary. A nil fallback uses a fresh MemoryStore.
func NewFallback(primary, fallback Store, opts ...FallbackOption) (*FallbackStore, error) {
	if primary == nil {
		return nil, errors.New("primary store is required")
	}
	if fallback == nil {
		fallback = NewMemory()
	}
	s := &FallbackStore{
		primary:       primary,
		fallback:      fallback,
		breaker:       circuit.New("kv"),
		logger:        slog.Default(),
		opTimeout:     defaultOpTimeout,
		probeInterval: defaultProbeInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Degraded reports whether the store is currently serving from the fallback.
func (s *FallbackStore) Degraded() bool {
	return s.breaker.IsOpen()
}

func (s *FallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.do(ctx, "get",
		func(ctx context.Context, st Store) error {
			var err error
			out, err = st.Get(ctx, key)
			return err
		})
	return out, err
}

func (s *FallbackStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.do(ctx, "set", func(ctx context.Context, st Store) error {
		return st.Set(ctx, key, value, ttl)
	})
}

func (s *FallbackStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var ok bool
	err := s.do(ctx, "set_if_absent", func(ctx context.Context, st Store) error {
		var err error
		ok, err = st.SetIfAbsent(ctx, key, value, ttl)
		return err
	})
	return ok, err
}

func (s *FallbackStore) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	var ok bool
	err := s.do(ctx, "compare_and_swap", func(ctx context.Context, st Store) error {
		var err error
		ok, err = st.CompareAndSwap(ctx, key, prev, next, ttl)
		return err
	})
	return ok, err
}

func (s *FallbackStore) CompareAndDelete(ctx context.Context, key string, prev []byte) (bool, error) {
	var ok bool
	err := s.do(ctx, "compare_and_delete", func(ctx context.Context, st Store) error {
		var err error
		ok, err = st.CompareAndDelete(ctx, key, prev)
		return err
	})
	return ok, err
}

func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	return s.do(ctx, "delete", func(ctx context.Context, st Store) error {
		return st.Delete(ctx, key)
	})
}

// do runs fn against the primary when the circuit allows it and against the
// fallback otherwise. ErrNotFound from the primary is a result, not a fault.
func (s *FallbackStore) do(ctx context.Context, op string, fn func(context.Context, Store) error) error {
	if s.breaker.IsOpen() && !s.probeDue() {
		s.metrics.incFallback(op)
		return fn(ctx, s.fallback)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	start := time.Now()
	err := fn(opCtx, s.primary)
	cancel()
	s.metrics.observe(op, time.Since(start).Seconds())

	if err == nil || errors.Is(err, sentinel.ErrNotFound) {
		if usePrimary, change := s.breaker.RecordSuccess(); usePrimary {
			if change.Closed {
				s.metrics.setOpen(false)
				s.logger.InfoContext(ctx, "primary store recovered", "op", op)
			}
			return err
		}
		// Still open: the probe succeeded but the fallback stays authoritative
		// until the success threshold is reached.
		s.metrics.incFallback(op)
		return fn(ctx, s.fallback)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.metrics.incPrimaryError(op)
	_, change := s.breaker.RecordFailure()
	if change.Opened {
		s.metrics.setOpen(true)
		s.logger.ErrorContext(ctx, "primary store unavailable, serving from fallback",
			"op", op,
			"error", err,
		)
	} else {
		s.logger.WarnContext(ctx, "primary store operation failed, serving from fallback",
			"op", op,
			"error", err,
		)
	}
	s.metrics.incFallback(op)
	return fn(ctx, s.fallback)
}

func (s *FallbackStore) probeDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastProbe) < s.probeInterval {
		return false
	}
	s.lastProbe = now
	return true
}
