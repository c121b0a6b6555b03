// Package orchestration hosts durable, single-logical-thread-per-instance
// workflows. Each instance is keyed by a deterministic id; completed steps
// are persisted to a step log and replayed instead of re-executed when an
// instance is re-driven, so side effects happen at most once per run.
package orchestration

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of one workflow instance.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// IsLive reports whether the instance admits no concurrent start: an
// instance that is Pending or Running must not be started again.
func (s RunStatus) IsLive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Instance is the persisted record of one workflow run.
type Instance struct {
	ID        string
	Workflow  string
	Input     []byte
	Status    RunStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InstanceStore persists workflow instances and their step logs.
type InstanceStore interface {
	// Get returns the instance, or sentinel.ErrNotFound.
	Get(ctx context.Context, id string) (*Instance, error)

	// Create registers a new run. When an instance with this id already
	// exists: if it is live, Create fails with sentinel.ErrConflict (the
	// at-most-one-live-execution invariant); if it is terminal, the
	// instance is reset to a fresh run and its step log cleared.
	Create(ctx context.Context, inst *Instance) error

	// SetStatus transitions the instance's run status.
	SetStatus(ctx context.Context, id string, status RunStatus) error

	// RecordStep appends a completed step and its result to the step log.
	RecordStep(ctx context.Context, id, step string, result []byte) error

	// CompletedSteps returns the step log as a step-name -> result map.
	CompletedSteps(ctx context.Context, id string) (map[string][]byte, error)

	// ListByStatus returns instance ids currently in the given status,
	// oldest first. Used to resume interrupted runs after a restart.
	ListByStatus(ctx context.Context, status RunStatus) ([]string, error)
}
