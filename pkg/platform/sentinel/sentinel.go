package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the blob layer, and the
// workflow instance store return these (optionally wrapped) so services can
// translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity or workflow instance does not exist
// - ErrConflict: a version or instance with this key already exists
// - ErrLeaseHeld: blob lease is owned by another writer
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrLeaseHeld    = errors.New("lease held")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
