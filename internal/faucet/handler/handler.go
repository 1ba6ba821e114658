// Package handler exposes the faucet operations over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"faucet/internal/faucet/models"
	dErrors "faucet/pkg/domain-errors"
	"faucet/pkg/platform/httputil"
	"faucet/pkg/platform/middleware/device"
	"faucet/pkg/requestcontext"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = models.MaxHistoryRecords
)

// Distributor performs a distribution for the caller.
type Distributor interface {
	Distribute(ctx context.Context, identity, destination string, anonymous bool) (*models.DistributionRecord, error)
}

// Workflow manages access requests and admin decisions.
type Workflow interface {
	SubmitRequest(ctx context.Context, identity, reason string) (models.SubmitResult, error)
	Approve(ctx context.Context, identity string) error
	Reject(ctx context.Context, identity string) error
	ApproveRejected(ctx context.Context, identity string) error
	RejectAllowed(ctx context.Context, identity string) error
	Dedupe(ctx context.Context) (models.DedupeResult, error)
	ListPending(ctx context.Context) ([]models.PendingReview, error)
	ListAllowed(ctx context.Context) ([]models.AllowListEntry, error)
	ListRejected(ctx context.Context) ([]models.RejectedEntry, error)
}

type Eligibility interface {
	IsEligible(ctx context.Context, identity string) (bool, error)
}

type Cooldown interface {
	Check(ctx context.Context, identity string) (models.CooldownDecision, error)
}

type History interface {
	Public(ctx context.Context, limit int) ([]models.DistributionRecord, error)
}

// Handler serves the faucet API.
type Handler struct {
	distributor Distributor
	workflow    Workflow
	eligibility Eligibility
	cooldown    Cooldown
	history     History
	logger      *slog.Logger
}

func New(distributor Distributor, workflow Workflow, eligibility Eligibility, cooldown Cooldown, history History, logger *slog.Logger) *Handler {
	return &Handler{
		distributor: distributor,
		workflow:    workflow,
		eligibility: eligibility,
		cooldown:    cooldown,
		history:     history,
		logger:      logger,
	}
}

// Register mounts the routes. requireSession authenticates callers and
// requireAdmin, applied after it, restricts the admin routes.
func (h *Handler) Register(r chi.Router, requireSession, requireAdmin func(http.Handler) http.Handler) {
	r.Get("/api/airdrop-history", h.handleHistory)

	r.Group(func(r chi.Router) {
		r.Use(requireSession)
		r.Post("/api/airdrop", h.handleDistribute)
		r.Post("/api/access-requests", h.handleSubmitAccessRequest)
		r.Get("/api/eligibility", h.handleEligibility)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/access-requests", h.handleListPending)
			r.Get("/whitelisted-users", h.handleListAllowed)
			r.Get("/rejected-users", h.handleListRejected)
			r.Get("/overview", h.handleOverview)
			r.Post("/approve-request", h.decision(h.workflow.Approve, "approve"))
			r.Post("/reject-request", h.decision(h.workflow.Reject, "reject"))
			r.Post("/approve-rejected", h.decision(h.workflow.ApproveRejected, "approve_rejected"))
			r.Post("/reject-whitelisted", h.decision(h.workflow.RejectAllowed, "reject_allowed"))
			r.Post("/dedupe-requests", h.handleDedupe)
		})
	})
}

func (h *Handler) handleDistribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	identity := requestcontext.Handle(ctx)

	req, ok := httputil.DecodeAndPrepare[models.DistributeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.distributor.Distribute(ctx, identity, req.WalletAddress, req.Anonymous)
	if err != nil {
		h.logger.InfoContext(ctx, "distribution refused",
			"request_id", requestID,
			"identity", identity,
			"browser", device.FromContext(ctx).Label(),
			"error", err,
		)
		writeDistributeError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.DistributeResponse{
		Message:     models.MsgDistributed,
		TxID:        record.TxID,
		Destination: record.Destination,
		CompletedAt: record.CompletedAt,
	})
}

// writeDistributeError adds Retry-After and the remaining minutes when the
// caller is throttled.
func writeDistributeError(w http.ResponseWriter, err error) {
	var throttled *models.ThrottledError
	if errors.As(err, &throttled) {
		w.Header().Set("Retry-After", strconv.Itoa(throttled.MinutesRemaining*60))
		httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             string(dErrors.CodeThrottled),
			"error_description": throttled.Message(),
			"minutes_remaining": throttled.MinutesRemaining,
			"retry_at":          throttled.RetryAt,
		})
		return
	}
	httputil.WriteError(w, err)
}

func (h *Handler) handleSubmitAccessRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.AccessRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.workflow.SubmitRequest(ctx, requestcontext.Handle(ctx), req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to submit access request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if result.Status == models.SubmitAccepted {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, models.SubmitResponse{Status: result.Status, Message: result.Message})
}

// handleEligibility reports eligibility and cooldown together; the two
// lookups are independent and run concurrently.
func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := requestcontext.Handle(ctx)

	var (
		eligible bool
		decision models.CooldownDecision
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		eligible, err = h.eligibility.IsEligible(gctx, identity)
		return err
	})
	g.Go(func() error {
		var err error
		decision, err = h.cooldown.Check(gctx, identity)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.ErrorContext(ctx, "failed to check eligibility",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := models.EligibilityResponse{
		Identity:       identity,
		Eligible:       eligible,
		CooldownActive: !decision.Allowed,
	}
	if !decision.Allowed {
		resp.MinutesRemaining = decision.MinutesRemaining
		retryAt := decision.RetryAt
		resp.RetryAt = &retryAt
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.history.Public(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read distribution history",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	out := make([]models.PublicDistribution, 0, len(records))
	for _, rec := range records {
		out = append(out, models.NewPublicDistribution(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
