// Package ratelimit throttles request floods per client IP in front of the
// faucet API. It is independent of the per-identity cooldown.
package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dErrors "faucet/pkg/domain-errors"
	"faucet/pkg/platform/httputil"
	"faucet/pkg/requestcontext"
)

const (
	defaultRate     = rate.Limit(1)
	defaultBurst    = 20
	defaultIdleTTL  = 10 * time.Minute
	defaultMaxPeers = 10000
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Middleware holds one token bucket per client IP.
type Middleware struct {
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	maxPeers int
	logger   *slog.Logger
	disabled bool
	now      func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

type Option func(*Middleware)

// WithRate sets the sustained requests per second and the burst.
func WithRate(perSecond float64, burst int) Option {
	return func(m *Middleware) {
		if perSecond > 0 {
			m.rate = rate.Limit(perSecond)
		}
		if burst > 0 {
			m.burst = burst
		}
	}
}

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func New(opts ...Option) *Middleware {
	m := &Middleware{
		rate:     defaultRate,
		burst:    defaultBurst,
		idleTTL:  defaultIdleTTL,
		maxPeers: defaultMaxPeers,
		logger:   slog.Default(),
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		m.logger.Info("rate limiting disabled")
	}
	return m
}

// Handler rejects requests over the per-IP budget with 429 and Retry-After.
// Requests without a resolvable client IP pass through.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := requestcontext.ClientIP(r.Context())
		if m.disabled || ip == "" {
			next.ServeHTTP(w, r)
			return
		}

		lim := m.limiterFor(ip)
		res := lim.ReserveN(m.now(), 1)
		if delay := res.DelayFrom(m.now()); delay > 0 {
			res.CancelAt(m.now())
			m.logger.WarnContext(r.Context(), "client rate limit exceeded",
				"client_ip", ip,
				"request_id", requestcontext.RequestID(r.Context()),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			httputil.WriteError(w, dErrors.New(dErrors.CodeThrottled, "Too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) limiterFor(ip string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if v, ok := m.visitors[ip]; ok {
		v.lastSeen = now
		return v.limiter
	}
	if len(m.visitors) >= m.maxPeers {
		m.evictIdle(now)
	}
	v := &visitor{limiter: rate.NewLimiter(m.rate, m.burst), lastSeen: now}
	m.visitors[ip] = v
	return v.limiter
}

// evictIdle drops visitors idle for longer than idleTTL. Callers hold mu.
func (m *Middleware) evictIdle(now time.Time) {
	for ip, v := range m.visitors {
		if now.Sub(v.lastSeen) > m.idleTTL {
			delete(m.visitors, ip)
		}
	}
}
