// Package audit defines the faucet's audit events and the sinks they are
// published to.
package audit

import (
	"context"
	"time"

	"faucet/pkg/platform/attrs"
	"faucet/pkg/platform/middleware/device"
	"faucet/pkg/requestcontext"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers admin decisions on who may use the faucet.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers refused or suspicious requests.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as completed transfers.
	CategoryOperations EventCategory = "operations"
)

// Action names an audited occurrence.
type Action string

const (
	// Distribution events
	ActionDistributed          Action = "distribution_completed"
	ActionDistributionFailed   Action = "distribution_failed"
	ActionDistributionDenied   Action = "distribution_denied"
	ActionDistributionThrottle Action = "distribution_throttled"

	// Workflow events
	ActionAccessRequested  Action = "access_requested"
	ActionRequestApproved  Action = "access_request_approved"
	ActionRequestRejected  Action = "access_request_rejected"
	ActionRejectedApproved Action = "rejected_identity_approved"
	ActionAllowedRevoked   Action = "allowed_identity_revoked"
	ActionRequestsDeduped  Action = "access_requests_deduped"

	// Access events
	ActionAdminDenied Action = "admin_access_denied"
)

// actionCategories maps each action to its category.
var actionCategories = map[Action]EventCategory{
	ActionRequestApproved:  CategoryCompliance,
	ActionRequestRejected:  CategoryCompliance,
	ActionRejectedApproved: CategoryCompliance,
	ActionAllowedRevoked:   CategoryCompliance,
	ActionRequestsDeduped:  CategoryCompliance,

	ActionDistributionDenied:   CategorySecurity,
	ActionDistributionThrottle: CategorySecurity,
	ActionAdminDenied:          CategorySecurity,

	ActionDistributed:        CategoryOperations,
	ActionDistributionFailed: CategoryOperations,
	ActionAccessRequested:    CategoryOperations,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`
	// Subject is the identity the action concerns.
	Subject string `json:"subject,omitempty"`
	// ActorID is who performed the action when it differs from Subject,
	// e.g. the admin deciding on a request.
	ActorID   string `json:"actor_id,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// NewEvent builds an Event for action from the request context and the same
// key/value attributes passed to the structured logger.
func NewEvent(ctx context.Context, action Action, attrList ...any) Event {
	userAgent := attrs.FirstString(attrList, "browser", "user_agent")
	if userAgent == "" {
		userAgent = device.FromContext(ctx).Label()
	}
	if userAgent == "" {
		userAgent = requestcontext.UserAgent(ctx)
	}
	return Event{
		Category:  action.Category(),
		Timestamp: requestcontext.Now(ctx),
		Action:    action,
		Subject:   attrs.FirstString(attrList, "identity", "target"),
		ActorID:   attrs.FirstString(attrList, "actor", "admin"),
		Decision:  attrs.ExtractString(attrList, "decision"),
		Reason:    attrs.FirstString(attrList, "reason", "error_code"),
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: userAgent,
	}
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
