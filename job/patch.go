package job

import "time"

// Patch is a partial-merge update to a Record. Nil fields leave the prior
// value untouched; Apply on an empty patch changes nothing but UpdatedAt is
// only bumped when at least one field is present, so an empty patch is a
// true no-op.
type Patch struct {
	Status          *Status        `json:"status,omitempty"`
	CurrentPhase    *string        `json:"current_phase,omitempty"`
	ProgressMessage *string        `json:"progress_message,omitempty"`
	HITLType        *string        `json:"hitl_type,omitempty"`
	HITLData        map[string]any `json:"hitl_data,omitempty"`

	// Result is merged when non-nil. There is no way to patch a result back
	// to nil; completed output is never retracted.
	Result any `json:"result,omitempty"`

	Error *string `json:"error,omitempty"`
}

// IsZero returns true if the patch carries no fields.
func (p Patch) IsZero() bool {
	return p.Status == nil &&
		p.CurrentPhase == nil &&
		p.ProgressMessage == nil &&
		p.HITLType == nil &&
		p.HITLData == nil &&
		p.Result == nil &&
		p.Error == nil
}

// Critical returns true if the patch touches fields whose loss on crash would
// break recovery: status transitions, hitl state, results, and errors. These
// must reach the durable store before the originating call returns.
// Progress-only patches are not critical and may be flushed best-effort.
func (p Patch) Critical() bool {
	return p.Status != nil || p.HITLType != nil || p.HITLData != nil ||
		p.Result != nil || p.Error != nil
}

// Apply merges the patch into the record in place and bumps UpdatedAt when
// anything was present. The HITLData map is replaced wholesale, not merged
// key-by-key; exactly one writer mutates a job's hitl data at a time.
func (p Patch) Apply(r *Record) {
	if p.IsZero() {
		return
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.CurrentPhase != nil {
		r.CurrentPhase = *p.CurrentPhase
	}
	if p.ProgressMessage != nil {
		r.ProgressMessage = *p.ProgressMessage
	}
	if p.HITLType != nil {
		r.HITLType = *p.HITLType
	}
	if p.HITLData != nil {
		data := make(map[string]any, len(p.HITLData))
		for k, v := range p.HITLData {
			data[k] = v
		}
		r.HITLData = data
	}
	if p.Result != nil {
		r.Result = p.Result
	}
	if p.Error != nil {
		r.Error = *p.Error
	}
	r.UpdatedAt = time.Now()
}

// StatusPatch is a convenience constructor for a status-only patch.
func StatusPatch(s Status) Patch {
	return Patch{Status: &s}
}

// ProgressPatch is a convenience constructor for a progress-only patch.
func ProgressPatch(phase, message string) Patch {
	return Patch{CurrentPhase: &phase, ProgressMessage: &message}
}

// StrPtr returns a pointer to s. Handy when building patches literally.
func StrPtr(s string) *string { return &s }
