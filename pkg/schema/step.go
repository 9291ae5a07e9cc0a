package schema

import (
	"bytes"
	"encoding/json"
)

// StepKind discriminates the three forms a pipeline step can take.
type StepKind string

const (
	StepKindPreset   StepKind = "preset"
	StepKindInline   StepKind = "inline"
	StepKindWorkflow StepKind = "workflow"
)

// Step is the payload of a DAG node: a reference to a stored job preset,
// an inline processor configuration, or a reference to another pipeline
// preset. Exactly one variant is populated, selected by Kind.
type Step struct {
	Kind      StepKind
	Name      string          // preset or workflow name
	Processor string          // inline processor id
	Config    json.RawMessage // inline config, opaque outside edit-time checks
}

// PresetStep returns a step referencing a stored job preset by name.
// The preset's processor and config are resolved by lookup, never stored here.
func PresetStep(name string) Step {
	return Step{Kind: StepKindPreset, Name: name}
}

// InlineStep returns a step carrying its own processor id and configuration.
func InlineStep(processor string, config json.RawMessage) Step {
	return Step{Kind: StepKindInline, Processor: processor, Config: config}
}

// WorkflowStep returns a step referencing another pipeline preset by name.
func WorkflowStep(name string) Step {
	return Step{Kind: StepKindWorkflow, Name: name}
}

// DisplayName returns the short label for the step: the preset or workflow
// name, or the processor id for inline steps.
func (s Step) DisplayName() string {
	if s.Kind == StepKindInline {
		return s.Processor
	}
	return s.Name
}

// HasInlineConfig reports whether the step carries editable configuration.
// Only inline steps do; preset and workflow steps resolve theirs by reference.
func (s Step) HasInlineConfig() bool {
	return s.Kind == StepKindInline
}

// Validate checks that the populated variant is well formed.
func (s Step) Validate() error {
	switch s.Kind {
	case StepKindPreset:
		if s.Name == "" {
			return NewError(ErrCodeInvalidStep, "preset step requires a name")
		}
	case StepKindInline:
		if s.Processor == "" {
			return NewError(ErrCodeInvalidStep, "inline step requires a processor")
		}
	case StepKindWorkflow:
		if s.Name == "" {
			return NewError(ErrCodeInvalidStep, "workflow step requires a name")
		}
	default:
		return NewErrorf(ErrCodeInvalidStep, "unknown step kind %q", string(s.Kind))
	}
	return nil
}

// stepWire is the discriminated JSON form of a Step.
type stepWire struct {
	Type      StepKind        `json:"type"`
	Name      string          `json:"name,omitempty"`
	Processor string          `json:"processor,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// MarshalJSON always emits the discriminated object form.
func (s Step) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	w := stepWire{Type: s.Kind}
	switch s.Kind {
	case StepKindPreset, StepKindWorkflow:
		w.Name = s.Name
	case StepKindInline:
		w.Processor = s.Processor
		w.Config = s.Config
		if len(w.Config) == 0 {
			w.Config = json.RawMessage(`{}`)
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the discriminated object form and, for backward
// compatibility, a bare JSON string which is upgraded to a preset reference.
// The in-memory model only ever has the one tagged shape.
func (s *Step) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return NewError(ErrCodeInvalidStep, "invalid step string").WithCause(err)
		}
		if name == "" {
			return NewError(ErrCodeInvalidStep, "preset step requires a name")
		}
		*s = PresetStep(name)
		return nil
	}

	var w stepWire
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return NewError(ErrCodeInvalidStep, "invalid step object").WithCause(err)
	}

	switch w.Type {
	case StepKindPreset:
		if w.Name == "" {
			return NewError(ErrCodeInvalidStep, "preset step requires a name")
		}
		*s = PresetStep(w.Name)
	case StepKindInline:
		if w.Processor == "" {
			return NewError(ErrCodeInvalidStep, "inline step requires a processor")
		}
		*s = InlineStep(w.Processor, w.Config)
	case StepKindWorkflow:
		if w.Name == "" {
			return NewError(ErrCodeInvalidStep, "workflow step requires a name")
		}
		*s = WorkflowStep(w.Name)
	default:
		return NewErrorf(ErrCodeInvalidStep, "unknown step type %q", string(w.Type))
	}
	return nil
}
