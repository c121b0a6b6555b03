package domain

import dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"

// Status is the lifecycle state of a user-data processing request.
//
// Transitions are monotonic along PENDING -> WIP -> {CLOSED | FAILED}.
// FAILED may be retried, which re-enters at WIP. CLOSED is terminal.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusWIP     Status = "WIP"
	StatusClosed  Status = "CLOSED"
	StatusFailed  Status = "FAILED"
)

var validStatuses = map[Status]bool{
	StatusPending: true,
	StatusWIP:     true,
	StatusClosed:  true,
	StatusFailed:  true,
}

// allowedTransitions is the single source of truth for the state machine.
var allowedTransitions = map[Status][]Status{
	// PENDING -> FAILED covers the case where the workflow could not even
	// record WIP before a step exhausted its retries.
	StatusPending: {StatusWIP, StatusFailed},
	StatusWIP:     {StatusClosed, StatusFailed},
	StatusFailed:  {StatusWIP, StatusClosed},
	StatusClosed:  {},
}

// ParseStatus constructs a Status from external input.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "status cannot be empty")
	}
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid status")
	}
	return st, nil
}

func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether no further automatic transition may occur.
func (s Status) IsTerminal() bool {
	return s == StatusClosed
}

// CanTransitionTo reports whether the state machine permits moving from s
// to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }
