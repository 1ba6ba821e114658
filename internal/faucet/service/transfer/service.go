// Package transfer runs a distribution: eligibility, cooldown and the ledger
// transfer, serialized per identity by a short-lived lease.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"faucet/internal/faucet/metrics"
	"faucet/internal/faucet/models"
	"faucet/internal/faucet/ports"
	"faucet/pkg/platform/audit"
	dErrors "faucet/pkg/domain-errors"
	"faucet/pkg/requestcontext"
)

const (
	// DefaultTransferTimeout bounds submission plus confirmation.
	DefaultTransferTimeout = 2 * time.Minute
	// leaseMargin keeps the lease alive past the transfer timeout so the
	// cooldown mark is written before another attempt can start. When the
	// mark cannot be written the lease is left to expire instead.
	leaseMargin = 30 * time.Second
)

type (
	Store          = ports.Store
	Ledger         = ports.Ledger
	AuditPublisher = ports.AuditPublisher
)

// Eligibility decides whether an identity may receive funds.
type Eligibility interface {
	IsEligible(ctx context.Context, identity string) (bool, error)
}

// Cooldown enforces the per-identity distribution window.
type Cooldown interface {
	Check(ctx context.Context, identity string) (models.CooldownDecision, error)
	Record(ctx context.Context, identity string, at time.Time) error
}

// History stores completed distributions.
type History interface {
	Record(ctx context.Context, entry models.DistributionRecord) error
}

type Service struct {
	store           Store
	ledger          Ledger
	eligibility     Eligibility
	cooldown        Cooldown
	history         History
	logger          *slog.Logger
	auditPublisher  AuditPublisher
	metrics         *metrics.Metrics
	tracer          trace.Tracer
	transferTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithTransferTimeout bounds a single ledger transfer including confirmation.
func WithTransferTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.transferTimeout = d
		}
	}
}

func New(store Store, ledger Ledger, eligibility Eligibility, cooldown Cooldown, history History, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("lease store is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if eligibility == nil {
		return nil, fmt.Errorf("eligibility service is required")
	}
	if cooldown == nil {
		return nil, fmt.Errorf("cooldown service is required")
	}
	if history == nil {
		return nil, fmt.Errorf("history service is required")
	}
	svc := &Service{
		store:           store,
		ledger:          ledger,
		eligibility:     eligibility,
		cooldown:        cooldown,
		history:         history,
		logger:          slog.Default(),
		tracer:          otel.Tracer("faucet/transfer"),
		transferTimeout: DefaultTransferTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Distribute sends the configured amount to destination on behalf of
// identity. A failed transfer leaves no cooldown mark and no history record,
// so the caller may retry immediately.
func (s *Service) Distribute(ctx context.Context, identity, destination string, anonymous bool) (*models.DistributionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "faucet.distribute", trace.WithAttributes(
		attribute.String("faucet.identity", identity),
		attribute.Bool("faucet.anonymous", anonymous),
	))
	defer span.End()

	record, outcome, err := s.distribute(ctx, identity, destination, anonymous)
	s.metrics.IncDistribution(outcome)
	span.SetAttributes(attribute.String("faucet.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return record, nil
}

func (s *Service) distribute(ctx context.Context, identity, destination string, anonymous bool) (*models.DistributionRecord, string, error) {
	if identity == "" {
		return nil, metrics.OutcomeNotEligible, dErrors.New(dErrors.CodeUnauthorized, models.MsgSignInRequired)
	}
	if !s.ledger.ValidAddress(destination) {
		return nil, metrics.OutcomeInvalid, dErrors.New(dErrors.CodeInvalidInput, models.MsgInvalidAddress)
	}

	eligible, err := s.eligibility.IsEligible(ctx, identity)
	if err != nil {
		s.logger.ErrorContext(ctx, "eligibility check failed", "identity", identity, "error", err)
		return nil, metrics.OutcomeFailed, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check eligibility")
	}
	if !eligible {
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.ActionDistributionDenied,
			"identity", identity,
			"reason", "not_eligible",
		)
		return nil, metrics.OutcomeNotEligible, dErrors.New(dErrors.CodeNotEligible, models.MsgNotEligible)
	}

	release, err := s.acquire(ctx, identity)
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		return nil, metrics.OutcomeInProgress, err
	}
	if err != nil {
		return nil, metrics.OutcomeFailed, err
	}
	keepLease := false
	defer func() {
		if !keepLease {
			release()
		}
	}()

	decision, err := s.cooldown.Check(ctx, identity)
	if err != nil {
		s.logger.ErrorContext(ctx, "cooldown check failed", "identity", identity, "error", err)
		return nil, metrics.OutcomeFailed, err
	}
	if !decision.Allowed {
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.ActionDistributionThrottle,
			"identity", identity,
			"minutes_remaining", decision.MinutesRemaining,
		)
		return nil, metrics.OutcomeThrottled, models.NewThrottledError(decision)
	}

	txID, err := s.transfer(ctx, destination)
	if err != nil {
		s.logger.ErrorContext(ctx, "transfer failed",
			"identity", identity,
			"destination", destination,
			"error", err,
		)
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.ActionDistributionFailed,
			"identity", identity,
			"error_code", string(dErrors.CodeTransferFailed),
		)
		return nil, metrics.OutcomeFailed, dErrors.Wrap(err, dErrors.CodeTransferFailed, models.MsgTransferFailed)
	}

	// The funds have moved: the bookkeeping must finish even if the client
	// has gone away.
	bookCtx := context.WithoutCancel(ctx)
	completedAt := requestcontext.Now(ctx)
	if err := s.cooldown.Record(bookCtx, identity, completedAt); err != nil {
		keepLease = true
		s.logger.ErrorContext(ctx, "failed to record cooldown after transfer; holding lease until it expires",
			"identity", identity,
			"tx_id", txID,
			"lease_ttl", s.transferTimeout+leaseMargin,
			"error", err,
		)
	}
	record, err := models.NewDistributionRecord(identity, destination, txID, completedAt, anonymous)
	if err != nil {
		return nil, metrics.OutcomeFailed, err
	}
	if err := s.history.Record(bookCtx, *record); err != nil {
		s.logger.ErrorContext(ctx, "failed to record distribution history",
			"identity", identity,
			"tx_id", txID,
			"error", err,
		)
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.ActionDistributed,
		"identity", identity,
		"tx_id", txID,
		"anonymous", anonymous,
	)
	return record, metrics.OutcomeSuccess, nil
}

func (s *Service) transfer(ctx context.Context, destination string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "faucet.ledger.transfer")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.transferTimeout)
	defer cancel()

	start := time.Now()
	txID, err := s.ledger.Transfer(ctx, destination)
	s.metrics.ObserveTransfer(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer failed")
		return "", err
	}
	if txID == "" {
		err := errors.New("ledger returned an empty transaction id")
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer failed")
		return "", err
	}
	span.SetAttributes(attribute.String("faucet.tx_id", txID))
	return txID, nil
}

// acquire takes the per-identity lease. The returned func releases it only if
// this attempt still owns it.
func (s *Service) acquire(ctx context.Context, identity string) (func(), error) {
	key := models.LeaseKey(identity)
	token := []byte(uuid.NewString())
	ok, err := s.store.SetIfAbsent(ctx, key, token, s.transferTimeout+leaseMargin)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to acquire distribution lease", "identity", identity, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start distribution")
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeConflict, models.MsgInProgress)
	}
	return func() {
		releaseCtx := context.WithoutCancel(ctx)
		if _, err := s.store.CompareAndDelete(releaseCtx, key, token); err != nil {
			s.logger.WarnContext(ctx, "failed to release distribution lease", "identity", identity, "error", err)
		}
	}, nil
}
