// Package ports defines the interfaces the faucet services consume.
// Interfaces are placed here when consumed by multiple services to avoid duplication.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Ledger,ReferenceSource,AllowList,AuditPublisher

import (
	"context"
	"log/slog"

	"faucet/internal/kv"
	"faucet/pkg/platform/audit"
	"faucet/pkg/requestcontext"
)

// Store is the key-value contract every faucet service persists through.
type Store = kv.Store

// Ledger is the external transfer primitive.
type Ledger interface {
	// ValidAddress reports whether addr is well-formed for the ledger.
	ValidAddress(addr string) bool

	// Transfer sends the configured amount to addr from the funding account
	// and returns the transaction ID once the transfer is confirmed.
	Transfer(ctx context.Context, addr string) (string, error)
}

// ReferenceSource fetches the raw reference-set document.
type ReferenceSource interface {
	// Handles returns the owner handles listed by the reference document.
	Handles(ctx context.Context) ([]string, error)
}

// AllowList answers membership of the admin-managed allow-list.
type AllowList interface {
	IsAllowed(ctx context.Context, identity string) (bool, error)
}

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit is a shared helper for logging audit events across faucet services.
// It logs to both the structured logger and the audit publisher if available.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Action, attrs ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}

	args := append(attrs, "event", string(event), "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}

	if publisher == nil {
		return
	}
	ev := audit.NewEvent(ctx, event, attrs...)
	if err := publisher.Emit(ctx, ev); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}
