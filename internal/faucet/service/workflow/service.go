// Package workflow implements the access-request state machine: users submit
// a justification, admins approve or reject it, and allow-listed or rejected
// identities can be flipped later.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"faucet/internal/faucet/metrics"
	"faucet/internal/faucet/models"
	"faucet/internal/faucet/ports"
	"faucet/internal/faucet/store/records"
	"faucet/pkg/platform/audit"
	dErrors "faucet/pkg/domain-errors"
	"faucet/pkg/requestcontext"
)

// Type aliases for shared interfaces.
type (
	Store          = ports.Store
	AuditPublisher = ports.AuditPublisher
)

// errUnchanged aborts a document update that has nothing to write.
var errUnchanged = errors.New("workflow unchanged")

type Service struct {
	doc            *records.Document[models.WorkflowDocument]
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	maxAttempts    int
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

// WithUpdateAttempts bounds the compare-and-swap retries per mutation.
func WithUpdateAttempts(n int) Option {
	return func(s *Service) {
		s.maxAttempts = n
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("workflow store is required")
	}
	svc := &Service{logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	svc.doc = records.NewDocument[models.WorkflowDocument](store, models.KeyWorkflow,
		records.WithConflictHook(svc.metrics.IncConflict),
		records.WithMaxAttempts(svc.maxAttempts),
	)
	return svc, nil
}

// IsAllowed reports allow-list membership.
func (s *Service) IsAllowed(ctx context.Context, identity string) (bool, error) {
	doc, err := s.doc.Load(ctx)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read allow-list")
	}
	return doc.IsAllowed(identity), nil
}

// SubmitRequest records a justification for identity. Already allowed and
// already pending identities get an informational result, not an error.
func (s *Service) SubmitRequest(ctx context.Context, identity, reason string) (models.SubmitResult, error) {
	if identity == "" {
		return models.SubmitResult{}, dErrors.New(dErrors.CodeUnauthorized, models.MsgSignInRequired)
	}
	req, err := models.NewPendingRequest(identity, reason, requestcontext.Now(ctx))
	if err != nil {
		return models.SubmitResult{}, err
	}

	var status models.SubmitStatus
	_, err = s.doc.Update(ctx, func(doc *models.WorkflowDocument) error {
		status = doc.Submit(*req)
		if status != models.SubmitAccepted {
			return errUnchanged
		}
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return models.SubmitResult{}, s.storeError(err, "failed to submit access request")
	}

	switch status {
	case models.SubmitAlreadyAllowed:
		return models.SubmitResult{Status: status, Message: models.MsgAlreadyAllowed}, nil
	case models.SubmitAlreadyPending:
		return models.SubmitResult{Status: status, Message: models.MsgAlreadyPending}, nil
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.ActionAccessRequested,
		"identity", identity,
		"pending_request_id", req.ID,
	)
	return models.SubmitResult{Status: status, Message: models.MsgRequestAccepted, Request: req}, nil
}

// Approve moves a pending request to the allow-list.
func (s *Service) Approve(ctx context.Context, identity string) error {
	return s.transition(ctx, identity, "approve", audit.ActionRequestApproved,
		func(doc *models.WorkflowDocument) error {
			return doc.Approve(identity, requestcontext.Now(ctx))
		})
}

// Reject moves a pending request to the rejected set.
func (s *Service) Reject(ctx context.Context, identity string) error {
	return s.transition(ctx, identity, "reject", audit.ActionRequestRejected,
		func(doc *models.WorkflowDocument) error {
			return doc.Reject(identity, requestcontext.Now(ctx))
		})
}

// ApproveRejected allow-lists a previously rejected identity.
func (s *Service) ApproveRejected(ctx context.Context, identity string) error {
	return s.transition(ctx, identity, "approve_rejected", audit.ActionRejectedApproved,
		func(doc *models.WorkflowDocument) error {
			return doc.ApproveRejected(identity, requestcontext.Now(ctx))
		})
}

// RejectAllowed revokes an allow-list entry.
func (s *Service) RejectAllowed(ctx context.Context, identity string) error {
	return s.transition(ctx, identity, "reject_allowed", audit.ActionAllowedRevoked,
		func(doc *models.WorkflowDocument) error {
			return doc.RejectAllowed(identity, requestcontext.Now(ctx))
		})
}

// Dedupe collapses the pending list to one request per identity.
func (s *Service) Dedupe(ctx context.Context) (models.DedupeResult, error) {
	var result models.DedupeResult
	_, err := s.doc.Update(ctx, func(doc *models.WorkflowDocument) error {
		result = doc.Dedupe()
		return nil
	})
	if err != nil {
		return models.DedupeResult{}, s.storeError(err, "failed to dedupe access requests")
	}
	s.metrics.IncTransition("dedupe")
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.ActionRequestsDeduped,
		"actor", requestcontext.CallerIdentity(ctx).Email,
		"original_count", result.OriginalCount,
		"removed_count", result.RemovedCount,
	)
	return result, nil
}

// ListPending returns the pending requests with prior rejection instants.
func (s *Service) ListPending(ctx context.Context) ([]models.PendingReview, error) {
	doc, err := s.doc.Load(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list access requests")
	}
	return doc.Reviews(), nil
}

func (s *Service) ListAllowed(ctx context.Context) ([]models.AllowListEntry, error) {
	doc, err := s.doc.Load(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list allowed identities")
	}
	return nonNil(doc.Allowed), nil
}

func (s *Service) ListRejected(ctx context.Context) ([]models.RejectedEntry, error) {
	doc, err := s.doc.Load(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list rejected identities")
	}
	return nonNil(doc.Rejected), nil
}

func (s *Service) transition(ctx context.Context, identity, name string, action audit.Action, fn func(*models.WorkflowDocument) error) error {
	if identity == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if _, err := s.doc.Update(ctx, fn); err != nil {
		return s.storeError(err, "failed to update access records")
	}
	s.metrics.IncTransition(name)
	ports.LogAudit(ctx, s.logger, s.auditPublisher, action,
		"target", identity,
		"actor", requestcontext.CallerIdentity(ctx).Email,
		"decision", name,
	)
	return nil
}

// storeError passes domain errors through and hides infrastructure detail.
func (s *Service) storeError(err error, message string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
