package events

import "time"

// Type identifies the kind of progress event a producer pushed.
type Type string

const (
	TypePhaseStart      Type = "phase_start"
	TypeReasoningUpdate Type = "reasoning_update"
	TypeHITLRequired    Type = "hitl_required"
	TypeStatusChange    Type = "status_change"
	TypeError           Type = "error"
	// TypeDone is the terminal sentinel. Consumers stop reading when they
	// see it; producers push nothing after it.
	TypeDone Type = "done"
)

// Event is one item on a job's progress stream.
type Event struct {
	Type      Type           `json:"type"`
	JobID     string         `json:"job_id"`
	Phase     string         `json:"phase,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeDone
}

// PhaseStart builds a phase-start event.
func PhaseStart(jobID, phase string) Event {
	return Event{Type: TypePhaseStart, JobID: jobID, Phase: phase, Timestamp: time.Now()}
}

// ReasoningUpdate builds a reasoning-update event carrying a progress message.
func ReasoningUpdate(jobID, phase, message string) Event {
	return Event{Type: TypeReasoningUpdate, JobID: jobID, Phase: phase, Message: message, Timestamp: time.Now()}
}

// HITLRequired builds an event announcing that the job paused for input.
func HITLRequired(jobID, phase string, data map[string]any) Event {
	return Event{Type: TypeHITLRequired, JobID: jobID, Phase: phase, Data: data, Timestamp: time.Now()}
}

// StatusChange builds a status-transition event.
func StatusChange(jobID, status string) Event {
	return Event{Type: TypeStatusChange, JobID: jobID, Message: status, Timestamp: time.Now()}
}

// Errorf builds an error event with a human-readable message.
func Errorf(jobID, message string) Event {
	return Event{Type: TypeError, JobID: jobID, Message: message, Timestamp: time.Now()}
}

// Done builds the terminal sentinel for a job's stream.
func Done(jobID string) Event {
	return Event{Type: TypeDone, JobID: jobID, Timestamp: time.Now()}
}
