package job

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending indicates the job was accepted but has not started.
	StatusPending Status = "pending"

	// StatusRunning indicates the workflow runner is executing phases.
	StatusRunning Status = "running"

	// StatusPendingHITL indicates the runner paused and is preparing a
	// human-in-the-loop prompt.
	StatusPendingHITL Status = "pending_hitl"

	// StatusPendingUserInput indicates the job is blocked on a human response.
	StatusPendingUserInput Status = "pending_user_input"

	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the job finished with an error.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsPendingInput returns true if the job is waiting for a human response.
func (s Status) IsPendingInput() bool {
	return s == StatusPendingHITL || s == StatusPendingUserInput
}

// Valid returns true if the status is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusPendingHITL,
		StatusPendingUserInput, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal
// state-machine transition. Terminal states accept no transitions.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusPendingHITL || next == StatusPendingUserInput ||
			next == StatusCompleted || next == StatusFailed
	case StatusPendingHITL:
		return next == StatusPendingUserInput || next == StatusRunning || next == StatusFailed
	case StatusPendingUserInput:
		return next == StatusRunning || next == StatusFailed
	default:
		return false
	}
}

// DefaultOwner is the anonymous identity assigned when a job is submitted
// without an owner. Jobs owned by it are readable by any caller.
const DefaultOwner = "anonymous"

// ResolvedKey is the sentinel key set on HITLData once a response has been
// accepted. A payload carrying it must never be treated as pending again.
const ResolvedKey = "_resolved"

// Record is the canonical representation of a job across the cache and the
// durable store.
type Record struct {
	// ID is the globally unique job identifier. Immutable after creation.
	ID string `json:"id"`

	// Owner is the identity the job belongs to (DefaultOwner if anonymous).
	Owner string `json:"owner"`

	// Task is the original task description submitted by the client.
	Task string `json:"task"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// CurrentPhase names the workflow phase being executed.
	CurrentPhase string `json:"current_phase,omitempty"`

	// ProgressMessage is a low-stakes, human-readable progress line.
	// It is flushed best-effort and may lag the durable store.
	ProgressMessage string `json:"progress_message,omitempty"`

	// HITLType tags the kind of pending interaction (see HITLKind).
	HITLType string `json:"hitl_type,omitempty"`

	// HITLData is the opaque prompt payload. It may carry the ResolvedKey
	// sentinel once the interaction has been answered.
	HITLData map[string]any `json:"hitl_data,omitempty"`

	// Result is the opaque output payload of a completed job.
	Result any `json:"result,omitempty"`

	// Error is the failure message of a failed job.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HITLResolved returns true if the record's HITLData carries the resolved
// sentinel.
func (r *Record) HITLResolved() bool {
	if r.HITLData == nil {
		return false
	}
	v, ok := r.HITLData[ResolvedKey]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// HITLPendingUnresolved returns true if the record carries hitl data that has
// not been answered yet. Used by the prompt-read self-healing rule.
func (r *Record) HITLPendingUnresolved() bool {
	return len(r.HITLData) > 0 && !r.HITLResolved()
}

// OwnedBy reports whether identity may access this record. Jobs owned by the
// default identity are open; everything else requires an exact match.
func (r *Record) OwnedBy(identity string) bool {
	if r.Owner == "" || r.Owner == DefaultOwner {
		return true
	}
	return r.Owner == identity
}

// Clone returns a deep copy of the record. Map-valued fields are copied so
// callers can mutate the clone without aliasing store-internal state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.HITLData != nil {
		cp.HITLData = make(map[string]any, len(r.HITLData))
		for k, v := range r.HITLData {
			cp.HITLData[k] = v
		}
	}
	return &cp
}

// Validate checks the invariants required before a record enters the store.
func (r *Record) Validate() error {
	if r == nil {
		return errors.New("record is nil")
	}
	if r.ID == "" {
		return errors.New("record id is empty")
	}
	if r.Status != "" && !r.Status.Valid() {
		return errors.New("unknown status: " + string(r.Status))
	}
	return nil
}
