package handler

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"faucet/internal/faucet/models"
	"faucet/pkg/platform/httputil"
	"faucet/pkg/requestcontext"
)

// Overview is every admin list in one response.
type Overview struct {
	Pending  []models.PendingReview  `json:"pending"`
	Allowed  []models.AllowListEntry `json:"allowed"`
	Rejected []models.RejectedEntry  `json:"rejected"`
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, h.workflow.ListPending)
}

func (h *Handler) handleListAllowed(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, h.workflow.ListAllowed)
}

func (h *Handler) handleListRejected(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, h.workflow.ListRejected)
}

func list[T any](h *Handler, w http.ResponseWriter, r *http.Request, fn func(context.Context) ([]T, error)) {
	ctx := r.Context()
	items, err := fn(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list access records",
			"request_id", requestcontext.RequestID(ctx),
			"path", r.URL.Path,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var overview Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		overview.Pending, err = h.workflow.ListPending(gctx)
		return err
	})
	g.Go(func() (err error) {
		overview.Allowed, err = h.workflow.ListAllowed(gctx)
		return err
	})
	g.Go(func() (err error) {
		overview.Rejected, err = h.workflow.ListRejected(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.ErrorContext(ctx, "failed to load admin overview",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, overview)
}

// decision adapts a workflow transition to a POST {username} endpoint.
func (h *Handler) decision(fn func(context.Context, string) error, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)

		req, ok := httputil.DecodeAndPrepare[models.DecisionRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		if err := fn(ctx, req.Username); err != nil {
			h.logger.WarnContext(ctx, "admin decision failed",
				"request_id", requestID,
				"decision", name,
				"target", req.Username,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, models.SuccessResponse{Success: true})
	}
}

func (h *Handler) handleDedupe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.workflow.Dedupe(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to dedupe access requests",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
