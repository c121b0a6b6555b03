// Package models holds the user-data processing aggregate. Records are
// versioned append-only: every mutation becomes a new version and the
// current state is the highest version for a processing id.
package models

import (
	"fmt"
	"time"

	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
)

// Request is one citizen's user-data processing request at one version.
//
// Invariants:
//   - ProcessingID == MakeProcessingID(FiscalCode, Choice)
//   - Status only moves along the monotonic path of the state machine
//   - Version starts at 0 and increases by exactly 1 per mutation
//   - FailureReason is set only when Status is FAILED
type Request struct {
	ProcessingID  id.ProcessingID `json:"processing_id"`
	FiscalCode    id.FiscalCode   `json:"fiscal_code"`
	Choice        id.Choice       `json:"choice"`
	Status        id.Status       `json:"status"`
	Version       int             `json:"version"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewRequest builds the version-0 PENDING record for a citizen's request.
func NewRequest(fiscalCode id.FiscalCode, choice id.Choice, now time.Time) (*Request, error) {
	if !fiscalCode.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid fiscal code")
	}
	if !choice.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid choice")
	}
	return &Request{
		ProcessingID: id.MakeProcessingID(fiscalCode, choice),
		FiscalCode:   fiscalCode,
		Choice:       choice,
		Status:       id.StatusPending,
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CanTransitionTo reports whether the record may move to target.
func (r *Request) CanTransitionTo(target id.Status) bool {
	return r.Status.CanTransitionTo(target)
}

// WithStatus returns the next version of the record in the target status.
// The receiver is not modified. Moving out of FAILED clears FailureReason.
func (r *Request) WithStatus(target id.Status, now time.Time) (*Request, error) {
	if !r.CanTransitionTo(target) {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"cannot transition %s from %s to %s", r.ProcessingID, r.Status, target)
	}
	next := *r
	next.Status = target
	next.Version = r.Version + 1
	next.UpdatedAt = now
	if target != id.StatusFailed {
		next.FailureReason = ""
	}
	return &next, nil
}

// WithFailure returns the next version marked FAILED with the descriptor as
// its reason.
func (r *Request) WithFailure(desc FailureDescriptor, now time.Time) (*Request, error) {
	next, err := r.WithStatus(id.StatusFailed, now)
	if err != nil {
		return nil, err
	}
	next.FailureReason = desc.String()
	return next, nil
}

// FailureDescriptor captures where and why a processing run failed. Its
// rendering is persisted as the FAILED record's reason, so operators can
// tell a poison request from a transient outage.
type FailureDescriptor struct {
	Activity string
	Reason   string
	Extra    string
}

func (d FailureDescriptor) String() string {
	s := fmt.Sprintf("ACTIVITY=%s REASON=%s", d.Activity, d.Reason)
	if d.Extra != "" {
		s += " EXTRA=" + d.Extra
	}
	return s
}

const recoverySuffix = "FAILED-USER-DATA-PROCESSING-RECOVERY"

// MakeRecoveryOrchestratorID derives the deterministic workflow instance id
// used when re-driving a FAILED record. It differs from the primary
// processing id so a recovery run never collides with a live first run, yet
// stays stable so repeated sweeps converge on one instance.
func MakeRecoveryOrchestratorID(choice id.Choice, fiscalCode id.FiscalCode) string {
	return fmt.Sprintf("%s-%s-%s", choice, fiscalCode, recoverySuffix)
}
