package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and adapters return these
// (optionally wrapped) so services can translate them into domain errors.
//
// - ErrNotFound: key or record does not exist (or its TTL elapsed)
// - ErrConflict: a conditional write lost against a concurrent writer
// - ErrInvalidState: record is not in the state an operation requires
// - ErrUnavailable: backend temporarily unreachable
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
