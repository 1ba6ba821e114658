package models

import (
	"slices"
	"sort"
	"time"

	dErrors "faucet/pkg/domain-errors"
)

// WorkflowDocument holds the pending, allowed and rejected sets together so
// a single compare-and-swap moves an identity between them atomically.
//
// An identity is in at most one of Allowed and Rejected. Rejections records
// every rejection instant per identity and is never pruned.
type WorkflowDocument struct {
	Pending    []PendingRequest       `json:"pending"`
	Allowed    []AllowListEntry       `json:"allowed"`
	Rejected   []RejectedEntry        `json:"rejected"`
	Rejections map[string][]time.Time `json:"rejections,omitempty"`
}

func (d *WorkflowDocument) IsAllowed(identity string) bool {
	return slices.ContainsFunc(d.Allowed, func(e AllowListEntry) bool { return e.Identity == identity })
}

func (d *WorkflowDocument) IsPending(identity string) bool {
	return slices.ContainsFunc(d.Pending, func(r PendingRequest) bool { return r.Identity == identity })
}

func (d *WorkflowDocument) IsRejected(identity string) bool {
	return slices.ContainsFunc(d.Rejected, func(e RejectedEntry) bool { return e.Identity == identity })
}

// Submit appends req unless the identity is already allowed or pending.
// Only the most recent MaxPendingRequests requests are kept.
func (d *WorkflowDocument) Submit(req PendingRequest) SubmitStatus {
	if d.IsAllowed(req.Identity) {
		return SubmitAlreadyAllowed
	}
	if d.IsPending(req.Identity) {
		return SubmitAlreadyPending
	}
	d.Pending = append(d.Pending, req)
	if len(d.Pending) > MaxPendingRequests {
		d.Pending = slices.Clone(d.Pending[len(d.Pending)-MaxPendingRequests:])
	}
	return SubmitAccepted
}

// Approve moves a pending identity to the allow-list and clears any earlier
// rejection entry.
func (d *WorkflowDocument) Approve(identity string, at time.Time) error {
	if !d.IsPending(identity) {
		return notInState(identity, "pending request")
	}
	d.removePending(identity)
	d.removeRejected(identity)
	d.addAllowed(identity, at)
	return nil
}

// Reject moves a pending identity to the rejected set.
func (d *WorkflowDocument) Reject(identity string, at time.Time) error {
	if !d.IsPending(identity) {
		return notInState(identity, "pending request")
	}
	d.removePending(identity)
	d.addRejected(identity, at)
	return nil
}

// ApproveRejected moves a rejected identity straight to the allow-list and
// drops any request it resubmitted meanwhile.
func (d *WorkflowDocument) ApproveRejected(identity string, at time.Time) error {
	if !d.IsRejected(identity) {
		return notInState(identity, "rejected entry")
	}
	d.removePending(identity)
	d.removeRejected(identity)
	d.addAllowed(identity, at)
	return nil
}

// RejectAllowed revokes an allow-list entry.
func (d *WorkflowDocument) RejectAllowed(identity string, at time.Time) error {
	if !d.IsAllowed(identity) {
		return notInState(identity, "allow-list entry")
	}
	d.removePending(identity)
	d.addRejected(identity, at)
	return nil
}

// Dedupe keeps the earliest request per identity and orders the survivors by
// RequestedAt ascending. Running it twice removes nothing the second time.
func (d *WorkflowDocument) Dedupe() DedupeResult {
	original := len(d.Pending)
	earliest := make(map[string]PendingRequest, original)
	for _, req := range d.Pending {
		if cur, ok := earliest[req.Identity]; !ok || req.RequestedAt.Before(cur.RequestedAt) {
			earliest[req.Identity] = req
		}
	}
	out := make([]PendingRequest, 0, len(earliest))
	for _, req := range earliest {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].Identity < out[j].Identity
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	d.Pending = out
	return DedupeResult{
		OriginalCount: original,
		DedupedCount:  len(out),
		RemovedCount:  original - len(out),
	}
}

// Reviews returns the pending requests with each identity's prior rejections.
func (d *WorkflowDocument) Reviews() []PendingReview {
	out := make([]PendingReview, 0, len(d.Pending))
	for _, req := range d.Pending {
		out = append(out, PendingReview{
			PendingRequest:     req,
			PreviousRejections: slices.Clone(d.Rejections[req.Identity]),
		})
	}
	return out
}

func (d *WorkflowDocument) removePending(identity string) {
	d.Pending = slices.DeleteFunc(d.Pending, func(r PendingRequest) bool { return r.Identity == identity })
}

func (d *WorkflowDocument) removeAllowed(identity string) {
	d.Allowed = slices.DeleteFunc(d.Allowed, func(e AllowListEntry) bool { return e.Identity == identity })
}

func (d *WorkflowDocument) removeRejected(identity string) {
	d.Rejected = slices.DeleteFunc(d.Rejected, func(e RejectedEntry) bool { return e.Identity == identity })
}

func (d *WorkflowDocument) addAllowed(identity string, at time.Time) {
	if d.IsAllowed(identity) {
		return
	}
	d.Allowed = append(d.Allowed, AllowListEntry{Identity: identity, ApprovedAt: at})
}

func (d *WorkflowDocument) addRejected(identity string, at time.Time) {
	d.removeAllowed(identity)
	d.removeRejected(identity)
	d.Rejected = append(d.Rejected, RejectedEntry{Identity: identity, RejectedAt: at})
	if d.Rejections == nil {
		d.Rejections = make(map[string][]time.Time)
	}
	d.Rejections[identity] = append(d.Rejections[identity], at)
}

func notInState(identity, state string) error {
	return dErrors.New(dErrors.CodeNotFound, "no "+state+" for "+identity)
}
