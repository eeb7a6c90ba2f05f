package hitl

import "time"

// CheckpointType identifies the kind of interaction a checkpoint captures.
type CheckpointType string

const (
	CheckpointTypeClarification CheckpointType = "clarification"
	CheckpointTypePreview       CheckpointType = "preview"
	CheckpointTypeConfirmation  CheckpointType = "confirmation"
)

// CheckpointStatus represents the resolution state of a checkpoint.
type CheckpointStatus string

const (
	CheckpointStatusPending  CheckpointStatus = "pending"
	CheckpointStatusApproved CheckpointStatus = "approved"
	CheckpointStatusRejected CheckpointStatus = "rejected"
)

// Checkpoint is a captured suspension point in a workflow awaiting external
// resolution. Created pending, resolved exactly once, immutable afterward.
type Checkpoint struct {
	ID           string           `json:"id"`
	JobID        string           `json:"job_id"`
	Phase        string           `json:"phase"`
	Type         CheckpointType   `json:"type"`
	Status       CheckpointStatus `json:"status"`
	Data         map[string]any   `json:"data,omitempty"`
	UserResponse map[string]any   `json:"user_response,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty"`
}

// Resolved returns true once the checkpoint has left the pending state.
func (c *Checkpoint) Resolved() bool {
	return c.Status != CheckpointStatusPending
}

// clone returns a copy safe for callers to hold across manager mutations.
func (c *Checkpoint) clone() *Checkpoint {
	cp := *c
	if c.Data != nil {
		cp.Data = make(map[string]any, len(c.Data))
		for k, v := range c.Data {
			cp.Data[k] = v
		}
	}
	if c.UserResponse != nil {
		cp.UserResponse = make(map[string]any, len(c.UserResponse))
		for k, v := range c.UserResponse {
			cp.UserResponse[k] = v
		}
	}
	return &cp
}
