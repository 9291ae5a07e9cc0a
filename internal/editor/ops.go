// Package editor implements the pipeline editing operations and the session
// state behind the list and graph views. Every operation takes the current
// step array and returns a new one; inputs are never mutated, so callers can
// treat arrays as immutable snapshots.
package editor

import (
	"encoding/json"

	"github.com/srec-tools/pipectl/pkg/schema"
)

// AddOptions tunes AddStep. The zero value generates an id from the step's
// display name and chains the new step onto the current last one.
type AddOptions struct {
	ID        string   // explicit id; generated when empty
	DependsOn []string // explicit dependencies; overrides chaining
	NoChain   bool     // start with no dependencies instead of chaining
}

// AddStep appends a new definition for s and returns the new array plus the
// definition that was added. By default the step depends on the previous
// last step so linear pipelines build up without manual wiring.
func AddStep(steps []schema.DagStepDefinition, s schema.Step, opts AddOptions) ([]schema.DagStepDefinition, schema.DagStepDefinition, error) {
	var zero schema.DagStepDefinition

	if err := s.Validate(); err != nil {
		return nil, zero, err
	}

	existing := make(map[string]bool, len(steps))
	for _, d := range steps {
		existing[d.ID] = true
	}

	id := opts.ID
	if id == "" {
		id = GenerateStepID(s.DisplayName(), existing)
	} else if existing[id] {
		return nil, zero, schema.NewErrorf(schema.ErrCodeConflict, "step id %q already exists", id)
	}

	var deps []string
	switch {
	case len(opts.DependsOn) > 0:
		seen := make(map[string]bool, len(opts.DependsOn))
		for _, dep := range opts.DependsOn {
			if !existing[dep] {
				return nil, zero, schema.NewErrorf(schema.ErrCodeNotFound, "dependency %q does not exist", dep)
			}
			if !seen[dep] {
				seen[dep] = true
				deps = append(deps, dep)
			}
		}
	case opts.NoChain || len(steps) == 0:
		// No dependencies.
	default:
		deps = []string{steps[len(steps)-1].ID}
	}

	added := schema.DagStepDefinition{ID: id, Step: s, DependsOn: deps}
	out := append(schema.CloneSteps(steps), added.Clone())
	return out, added, nil
}

// RemoveStep removes the step with the given id and bridges around it:
// every remaining step that depended on it inherits its dependencies
// instead (set union, first-seen order), so transitive reachability through
// the removed step survives. Steps that did not reference it are untouched.
func RemoveStep(steps []schema.DagStepDefinition, id string) ([]schema.DagStepDefinition, error) {
	var bridge []string
	found := false
	for _, d := range steps {
		if d.ID == id {
			bridge = d.DependsOn
			found = true
			break
		}
	}
	if !found {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "step %q does not exist", id)
	}

	out := make([]schema.DagStepDefinition, 0, len(steps)-1)
	for _, d := range steps {
		if d.ID == id {
			continue
		}
		if !d.DependsOnSet()[id] {
			out = append(out, d.Clone())
			continue
		}

		next := d.Clone()
		deps := make([]string, 0, len(d.DependsOn)+len(bridge))
		seen := make(map[string]bool, cap(deps))
		for _, dep := range d.DependsOn {
			if dep == id {
				for _, b := range bridge {
					// Bridging never introduces a self-dependency.
					if b == d.ID || seen[b] {
						continue
					}
					seen[b] = true
					deps = append(deps, b)
				}
				continue
			}
			if !seen[dep] {
				seen[dep] = true
				deps = append(deps, dep)
			}
		}
		next.DependsOn = deps
		out = append(out, next)
	}
	return out, nil
}

// Connect adds a dependency edge from source to target. Self-loops,
// duplicate edges, and unknown ids are silently rejected: the input array
// is returned unchanged. The graph view treats these as no-ops rather than
// errors.
func Connect(steps []schema.DagStepDefinition, source, target string) []schema.DagStepDefinition {
	if source == target {
		return steps
	}

	sourceExists := false
	targetIdx := -1
	for i, d := range steps {
		if d.ID == source {
			sourceExists = true
		}
		if d.ID == target {
			targetIdx = i
		}
	}
	if !sourceExists || targetIdx < 0 {
		return steps
	}
	if steps[targetIdx].DependsOnSet()[source] {
		return steps
	}

	out := schema.CloneSteps(steps)
	out[targetIdx].DependsOn = append(out[targetIdx].DependsOn, source)
	return out
}

// Disconnect removes the dependency edge from source to target. Unknown
// edges are silent no-ops.
func Disconnect(steps []schema.DagStepDefinition, source, target string) []schema.DagStepDefinition {
	targetIdx := -1
	for i, d := range steps {
		if d.ID == target && d.DependsOnSet()[source] {
			targetIdx = i
			break
		}
	}
	if targetIdx < 0 {
		return steps
	}

	out := schema.CloneSteps(steps)
	deps := make([]string, 0, len(out[targetIdx].DependsOn)-1)
	for _, dep := range out[targetIdx].DependsOn {
		if dep != source {
			deps = append(deps, dep)
		}
	}
	out[targetIdx].DependsOn = deps
	return out
}

// Reorder moves the step with the given id to a new array index. Order is
// cosmetic for the list view; dependencies are untouched. The index is
// clamped into range.
func Reorder(steps []schema.DagStepDefinition, id string, toIndex int) ([]schema.DagStepDefinition, error) {
	from := -1
	for i, d := range steps {
		if d.ID == id {
			from = i
			break
		}
	}
	if from < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "step %q does not exist", id)
	}

	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > len(steps)-1 {
		toIndex = len(steps) - 1
	}

	out := schema.CloneSteps(steps)
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	rest := append([]schema.DagStepDefinition{}, out[toIndex:]...)
	out = append(out[:toIndex], moved)
	out = append(out, rest...)
	return out, nil
}

// ReplaceStep writes a full replacement definition at the edited step's
// index. When the id changes, every other step's reference to the old id is
// rewritten so no dependency dangles. The replacement's dependency list is
// sanitized the way the edit dialog builds it: self excluded, unknown ids
// dropped, duplicates collapsed.
func ReplaceStep(steps []schema.DagStepDefinition, id string, repl schema.DagStepDefinition) ([]schema.DagStepDefinition, error) {
	idx := -1
	for i, d := range steps {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "step %q does not exist", id)
	}

	if err := repl.Validate(); err != nil {
		return nil, err
	}

	if repl.ID != id {
		for _, d := range steps {
			if d.ID == repl.ID {
				return nil, schema.NewErrorf(schema.ErrCodeConflict, "step id %q already exists", repl.ID)
			}
		}
	}

	valid := make(map[string]bool, len(steps))
	for _, d := range steps {
		if d.ID != id {
			valid[d.ID] = true
		}
	}
	deps := make([]string, 0, len(repl.DependsOn))
	seen := make(map[string]bool, len(repl.DependsOn))
	for _, dep := range repl.DependsOn {
		if dep == repl.ID || !valid[dep] || seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}

	out := schema.CloneSteps(steps)
	next := repl.Clone()
	next.DependsOn = deps
	out[idx] = next

	if repl.ID != id {
		for i := range out {
			if i == idx {
				continue
			}
			for j, dep := range out[i].DependsOn {
				if dep == id {
					out[i].DependsOn[j] = repl.ID
				}
			}
		}
	}
	return out, nil
}

// DetachStep converts a preset step into an independent inline step using
// the preset's resolved processor and configuration. The copy happens at
// the moment of detachment; later edits to the preset do not propagate.
// Resolution is the caller's job since this package does no I/O.
func DetachStep(steps []schema.DagStepDefinition, id, processor string, config json.RawMessage) ([]schema.DagStepDefinition, error) {
	idx := -1
	for i, d := range steps {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "step %q does not exist", id)
	}
	if steps[idx].Step.Kind != schema.StepKindPreset {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidStep, "only preset steps can be detached").WithStep(id)
	}
	if processor == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidStep, "detach requires the preset's processor").WithStep(id)
	}

	out := schema.CloneSteps(steps)
	out[idx].Step = schema.InlineStep(processor, append(json.RawMessage(nil), config...))
	return out, nil
}

// GraphEdge is one derived dependency edge for the graph view.
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Edges derives the edge list from the step array, one edge per
// (dependency, step) pair, in array order. Edges carry no state of their
// own and are regenerated on every change.
func Edges(steps []schema.DagStepDefinition) []GraphEdge {
	var edges []GraphEdge
	for _, d := range steps {
		for _, dep := range d.DependsOn {
			edges = append(edges, GraphEdge{
				ID:     dep + "->" + d.ID,
				Source: dep,
				Target: d.ID,
			})
		}
	}
	return edges
}
