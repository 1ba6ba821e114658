package models

import "time"

// DistributeResponse is returned after a successful transfer.
type DistributeResponse struct {
	Message     string    `json:"message"`
	TxID        string    `json:"tx_id"`
	Destination string    `json:"destination"`
	CompletedAt time.Time `json:"completed_at"`
}

// SubmitResponse is returned for every access request submission.
type SubmitResponse struct {
	Status  SubmitStatus `json:"status"`
	Message string       `json:"message"`
}

// EligibilityResponse reports the caller's standing without side effects.
type EligibilityResponse struct {
	Identity         string     `json:"identity"`
	Eligible         bool       `json:"eligible"`
	CooldownActive   bool       `json:"cooldown_active"`
	MinutesRemaining int        `json:"minutes_remaining,omitempty"`
	RetryAt          *time.Time `json:"retry_at,omitempty"`
}

// PublicDistribution is the public view of a history record.
type PublicDistribution struct {
	Identity    string    `json:"identity"`
	Destination string    `json:"destination"`
	TxID        string    `json:"tx_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func NewPublicDistribution(r DistributionRecord) PublicDistribution {
	return PublicDistribution{
		Identity:    r.Identity,
		Destination: r.Destination,
		TxID:        r.TxID,
		CompletedAt: r.CompletedAt,
	}
}

// SuccessResponse acknowledges an admin transition.
type SuccessResponse struct {
	Success bool `json:"success"`
}
