package job

import "fmt"

// HITLKind identifies the kind of human interaction a paused job is waiting
// for. Unknown kinds decode to OpaquePayload for forward compatibility.
type HITLKind string

const (
	HITLKindClarify HITLKind = "clarify"
	HITLKindConfirm HITLKind = "confirm"
	HITLKindPreview HITLKind = "preview"
)

// HITLPayload is the tagged union over known prompt producers. Consumers must
// not assume payload shape beyond what the kind declares.
type HITLPayload interface {
	Kind() HITLKind

	// DataMap renders the payload as the opaque hitl_data map stored on the
	// job record.
	DataMap() map[string]any
}

// ClarifyPayload asks the user free-form questions before the workflow can
// continue.
type ClarifyPayload struct {
	Questions []string `json:"questions"`
}

func (ClarifyPayload) Kind() HITLKind { return HITLKindClarify }

func (p ClarifyPayload) DataMap() map[string]any {
	qs := make([]any, len(p.Questions))
	for i, q := range p.Questions {
		qs[i] = q
	}
	return map[string]any{"questions": qs}
}

// ConfirmPayload asks the user to approve or reject a summarized plan.
type ConfirmPayload struct {
	Summary string `json:"summary"`
}

func (ConfirmPayload) Kind() HITLKind { return HITLKindConfirm }

func (p ConfirmPayload) DataMap() map[string]any {
	return map[string]any{"summary": p.Summary}
}

// PreviewPayload shows the user produced content for review.
type PreviewPayload struct {
	Content string `json:"content"`
}

func (PreviewPayload) Kind() HITLKind { return HITLKindPreview }

func (p PreviewPayload) DataMap() map[string]any {
	return map[string]any{"content": p.Content}
}

// OpaquePayload is the fallback variant carrying an arbitrary JSON object for
// producers this version does not know about.
type OpaquePayload struct {
	Tag  HITLKind
	Data map[string]any
}

func (p OpaquePayload) Kind() HITLKind { return p.Tag }

func (p OpaquePayload) DataMap() map[string]any { return p.Data }

// DecodeHITLData rebuilds a typed payload from a stored hitl_type tag and
// hitl_data map. The resolved sentinel is stripped from the decoded view.
func DecodeHITLData(kind string, data map[string]any) (HITLPayload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty hitl data for kind %q", kind)
	}
	clean := make(map[string]any, len(data))
	for k, v := range data {
		if k == ResolvedKey {
			continue
		}
		clean[k] = v
	}

	switch HITLKind(kind) {
	case HITLKindClarify:
		p := ClarifyPayload{}
		if qs, ok := clean["questions"].([]any); ok {
			for _, q := range qs {
				if s, ok := q.(string); ok {
					p.Questions = append(p.Questions, s)
				}
			}
		}
		return p, nil
	case HITLKindConfirm:
		p := ConfirmPayload{}
		if s, ok := clean["summary"].(string); ok {
			p.Summary = s
		}
		return p, nil
	case HITLKindPreview:
		p := PreviewPayload{}
		if s, ok := clean["content"].(string); ok {
			p.Content = s
		}
		return p, nil
	default:
		return OpaquePayload{Tag: HITLKind(kind), Data: clean}, nil
	}
}
