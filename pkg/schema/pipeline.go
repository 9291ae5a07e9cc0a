package schema

import "encoding/json"

// DagStepDefinition is a single node in the pipeline graph: an id, the step
// payload, and the ids of the steps it depends on.
type DagStepDefinition struct {
	ID        string   `json:"id"`
	Step      Step     `json:"step"`
	DependsOn []string `json:"depends_on"`
}

// MarshalJSON emits depends_on as an empty array rather than null so the
// wire form matches what the backend produces.
func (d DagStepDefinition) MarshalJSON() ([]byte, error) {
	type wire DagStepDefinition
	w := wire(d)
	if w.DependsOn == nil {
		w.DependsOn = []string{}
	}
	return json.Marshal(w)
}

// DependsOnSet returns the dependency ids as a membership set.
func (d DagStepDefinition) DependsOnSet() map[string]bool {
	set := make(map[string]bool, len(d.DependsOn))
	for _, dep := range d.DependsOn {
		set[dep] = true
	}
	return set
}

// Clone returns a deep copy of the definition.
func (d DagStepDefinition) Clone() DagStepDefinition {
	out := d
	if d.DependsOn != nil {
		out.DependsOn = append([]string(nil), d.DependsOn...)
	}
	if d.Step.Config != nil {
		out.Step.Config = append(json.RawMessage(nil), d.Step.Config...)
	}
	return out
}

// Validate checks the definition's own fields. Cross-step invariants
// (id uniqueness, dependency resolution, acyclicity) are graph-level
// concerns and are reported by the structural analyzer instead.
func (d DagStepDefinition) Validate() error {
	if d.ID == "" {
		return NewError(ErrCodeInvalidStep, "step id must not be empty")
	}
	if err := d.Step.Validate(); err != nil {
		if pe, ok := err.(*PipelineError); ok {
			return pe.WithStep(d.ID)
		}
		return err
	}
	return nil
}

// DagPipelineDefinition is the wire wrapper for a pipeline: a name plus the
// ordered step array. Array order matters only for list display and the
// chain-by-default convenience; execution order comes from the dependencies.
type DagPipelineDefinition struct {
	Name  string              `json:"name"`
	Steps []DagStepDefinition `json:"steps"`
}

// NewDagPipelineDefinition builds a definition from a name and steps.
func NewDagPipelineDefinition(name string, steps []DagStepDefinition) DagPipelineDefinition {
	if steps == nil {
		steps = []DagStepDefinition{}
	}
	return DagPipelineDefinition{Name: name, Steps: steps}
}

// GetStep returns the step with the given id, or false when absent.
func (p DagPipelineDefinition) GetStep(id string) (DagStepDefinition, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return DagStepDefinition{}, false
}

// StepIDs returns the step ids in array order.
func (p DagPipelineDefinition) StepIDs() []string {
	ids := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		ids = append(ids, s.ID)
	}
	return ids
}

// CloneSteps returns a deep copy of a step array. Editor operations use it
// to honor the replace-wholesale contract without sharing backing slices.
func CloneSteps(steps []DagStepDefinition) []DagStepDefinition {
	if steps == nil {
		return nil
	}
	out := make([]DagStepDefinition, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}
