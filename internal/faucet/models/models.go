package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "faucet/pkg/domain-errors"
	"faucet/pkg/platform/middleware/auth"
)

// Record bounds.
const (
	MaxPendingRequests = 100
	MaxHistoryRecords  = 100
)

// PendingRequest is a user's justification awaiting an admin decision.
type PendingRequest struct {
	ID          string    `json:"id"`
	Identity    string    `json:"identity"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewPendingRequest validates and builds a PendingRequest. The reason is
// stored trimmed.
func NewPendingRequest(identity, reason string, at time.Time) (*PendingRequest, error) {
	if identity == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity cannot be empty")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, MsgReasonRequired)
	}
	if at.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requested at cannot be zero")
	}
	return &PendingRequest{
		ID:          uuid.NewString(),
		Identity:    identity,
		Reason:      reason,
		RequestedAt: at,
	}, nil
}

// AllowListEntry marks an identity as always eligible.
type AllowListEntry struct {
	Identity   string    `json:"identity"`
	ApprovedAt time.Time `json:"approved_at"`
}

func NewAllowListEntry(identity string, at time.Time) (*AllowListEntry, error) {
	if identity == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity cannot be empty")
	}
	if at.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "approved at cannot be zero")
	}
	return &AllowListEntry{Identity: identity, ApprovedAt: at}, nil
}

// RejectedEntry marks an identity whose access was refused.
type RejectedEntry struct {
	Identity   string    `json:"identity"`
	RejectedAt time.Time `json:"rejected_at"`
}

func NewRejectedEntry(identity string, at time.Time) (*RejectedEntry, error) {
	if identity == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity cannot be empty")
	}
	if at.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "rejected at cannot be zero")
	}
	return &RejectedEntry{Identity: identity, RejectedAt: at}, nil
}

// DistributionRecord is one completed transfer.
type DistributionRecord struct {
	Identity    string    `json:"identity"`
	Destination string    `json:"destination"`
	TxID        string    `json:"tx_id"`
	CompletedAt time.Time `json:"completed_at"`
	Anonymous   bool      `json:"anonymous"`
}

func NewDistributionRecord(identity, destination, txID string, at time.Time, anonymous bool) (*DistributionRecord, error) {
	if identity == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity cannot be empty")
	}
	if destination == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "destination cannot be empty")
	}
	if txID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "transaction id cannot be empty")
	}
	if at.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "completed at cannot be zero")
	}
	return &DistributionRecord{
		Identity:    identity,
		Destination: destination,
		TxID:        txID,
		CompletedAt: at,
		Anonymous:   anonymous,
	}, nil
}

// CooldownDecision is the outcome of a cooldown check.
type CooldownDecision struct {
	Allowed          bool
	MinutesRemaining int
	RetryAt          time.Time
}

// DedupeResult reports what a dedupe pass removed.
type DedupeResult struct {
	OriginalCount int `json:"original_count"`
	DedupedCount  int `json:"deduped_count"`
	RemovedCount  int `json:"removed_count"`
}

// SubmitStatus is the outcome of an access request submission.
type SubmitStatus string

const (
	SubmitAccepted       SubmitStatus = "submitted"
	SubmitAlreadyAllowed SubmitStatus = "already_allowed"
	SubmitAlreadyPending SubmitStatus = "already_pending"
)

// SubmitResult is returned to the requester; non-accepted outcomes are
// informational, not faults.
type SubmitResult struct {
	Status  SubmitStatus
	Message string
	Request *PendingRequest
}

// PendingReview is a pending request annotated with the identity's previous
// rejection instants, oldest first.
type PendingReview struct {
	PendingRequest
	PreviousRejections []time.Time `json:"previous_rejections"`
}

// User-visible messages.
const (
	MsgDistributed     = "Airdrop successful"
	MsgTransferFailed  = "Airdrop failed"
	MsgInvalidAddress  = "Invalid address format"
	MsgNotEligible     = "NO_REPO_FOUND"
	MsgSignInRequired  = auth.MsgSignInRequired
	MsgInProgress      = "A distribution for this account is already in progress"
	MsgReasonRequired  = "Please provide a reason for requesting access"
	MsgAlreadyAllowed  = "You are already whitelisted"
	MsgAlreadyPending  = "You already have a pending request"
	MsgRequestAccepted = "Access request submitted successfully"

	MsgUnverifiedAccount = auth.MsgUnverifiedAccount
)
