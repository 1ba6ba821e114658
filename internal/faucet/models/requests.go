package models

import (
	"strings"

	dErrors "faucet/pkg/domain-errors"
)

const (
	maxAddressLength  = 128
	maxReasonLength   = 1000
	maxIdentityLength = 64
)

// DistributeRequest is the body of POST /api/airdrop.
type DistributeRequest struct {
	WalletAddress string `json:"wallet_address"`
	Anonymous     bool   `json:"anonymous"`
}

func (r *DistributeRequest) Normalize() {
	if r == nil {
		return
	}
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
}

// Follows validation order: Size -> Required. Address syntax is checked by
// the ledger.
func (r *DistributeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.WalletAddress) > maxAddressLength {
		return dErrors.New(dErrors.CodeInvalidInput, MsgInvalidAddress)
	}
	if r.WalletAddress == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "wallet_address is required")
	}
	return nil
}

// AccessRequest is the body of POST /api/access-requests.
type AccessRequest struct {
	Reason string `json:"reason"`
}

func (r *AccessRequest) Normalize() {
	if r == nil {
		return
	}
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *AccessRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be 1000 characters or less")
	}
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, MsgReasonRequired)
	}
	return nil
}

// DecisionRequest is the body of the admin transition endpoints.
type DecisionRequest struct {
	Username string `json:"username"`
}

func (r *DecisionRequest) Normalize() {
	if r == nil {
		return
	}
	r.Username = strings.TrimSpace(r.Username)
}

func (r *DecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.Username) > maxIdentityLength {
		return dErrors.New(dErrors.CodeValidation, "username must be 64 characters or less")
	}
	if r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	return nil
}
