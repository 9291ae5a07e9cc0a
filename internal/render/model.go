// Package render turns a pipeline step array into graph views: a positioned
// ASCII canvas, a Mermaid flowchart, and Graphviz DOT/PNG exports. All
// renderers consume the same Model so the views agree on structure.
package render

import (
	"fmt"

	"github.com/srec-tools/pipectl/internal/dag"
	"github.com/srec-tools/pipectl/internal/layout"
	"github.com/srec-tools/pipectl/pkg/schema"
)

// Model is the renderer-neutral view of a pipeline graph.
type Model struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node is a single positioned step in the graph.
type Node struct {
	ID    string
	Label string
	Kind  schema.StepKind
	Root  bool
	Leaf  bool
	Level int // 0-based column in the layered arrangement
	Pos   layout.Position
}

// Edge is a dependency edge, drawn from the dependency to the dependent.
type Edge struct {
	From string
	To   string
}

// Build constructs a Model from a step array and optional stored positions.
// Steps without a stored position fall back to a fresh layout pass, so a
// partially positioned draft still renders every node. Structural problems
// do not fail the build: broken drafts are exactly the ones worth looking
// at, so duplicate ids collapse to their first occurrence and dangling or
// self dependencies are dropped from the edge list.
func Build(title string, steps []schema.DagStepDefinition, positions map[string]layout.Position) (*Model, error) {
	if len(steps) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "pipeline has no steps to render")
	}

	analysis := dag.Analyze(steps)
	roots := toSet(analysis.Report.RootSteps)
	leaves := toSet(analysis.Report.LeafSteps)

	known := make(map[string]bool, len(steps))
	ids := make([]string, 0, len(steps))
	for _, d := range steps {
		if known[d.ID] {
			continue
		}
		known[d.ID] = true
		ids = append(ids, d.ID)
	}

	var edges []Edge
	var layoutEdges []layout.Edge
	for _, d := range steps {
		for _, dep := range d.DependsOn {
			if dep == d.ID || !known[dep] {
				continue
			}
			edges = append(edges, Edge{From: dep, To: d.ID})
			layoutEdges = append(layoutEdges, layout.Edge{Source: dep, Target: d.ID})
		}
	}

	levels := layout.Levels(ids, layoutEdges)

	// Fresh layout is computed lazily, only when some node has no stored
	// position.
	var computed map[string]layout.Position

	nodes := make([]*Node, 0, len(ids))
	placed := make(map[string]bool, len(ids))
	for _, d := range steps {
		if placed[d.ID] {
			continue
		}
		placed[d.ID] = true

		pos, ok := positions[d.ID]
		if !ok {
			if computed == nil {
				computed = layout.Compute(ids, layoutEdges)
			}
			pos = computed[d.ID]
		}

		label := d.Step.DisplayName()
		if label == "" {
			label = d.ID
		}
		nodes = append(nodes, &Node{
			ID:    d.ID,
			Label: label,
			Kind:  d.Step.Kind,
			Root:  roots[d.ID],
			Leaf:  leaves[d.ID],
			Level: levels[d.ID],
			Pos:   pos,
		})
	}

	return &Model{Title: title, Nodes: nodes, Edges: edges}, nil
}

// SummaryRow is one table row of the list view.
type SummaryRow struct {
	ID        string
	Kind      schema.StepKind
	Name      string
	DependsOn []string
	Level     int // DAG depth, roots are 1
}

// Summarize produces one row per step in array order. Level is the DAG
// depth of the step; steps trapped in a cycle report 0.
func Summarize(steps []schema.DagStepDefinition) []SummaryRow {
	analysis := dag.Analyze(steps)
	rows := make([]SummaryRow, 0, len(steps))
	for _, d := range steps {
		name := d.Step.DisplayName()
		if name == "" {
			name = d.ID
		}
		rows = append(rows, SummaryRow{
			ID:        d.ID,
			Kind:      d.Step.Kind,
			Name:      name,
			DependsOn: d.DependsOn,
			Level:     analysis.Depths[d.ID],
		})
	}
	return rows
}

// caption is the one-line form of a node used by the Mermaid and Graphviz
// renderers: display name, id when it differs, and the root/leaf badges.
func caption(n *Node) string {
	c := n.Label
	if n.ID != n.Label {
		c = fmt.Sprintf("%s (%s)", n.Label, n.ID)
	}
	if n.Root {
		c = "# " + c
	}
	if n.Leaf {
		c = c + " *"
	}
	return c
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
