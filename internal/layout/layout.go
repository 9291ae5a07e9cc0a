// Package layout computes positions for the pipeline graph view using
// longest-path layering: each node's level is the longest dependency chain
// ending at it, levels become columns left to right, and layers are
// vertically centered against the tallest one.
package layout

// Spacing constants for the layered arrangement.
const (
	LevelSpacing = 280.0 // horizontal distance between levels
	NodeSpacing  = 150.0 // vertical distance between nodes in a layer
	Margin       = 50.0  // left margin before the first level
)

// Position is a node's placement on the layout canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge is a directed dependency edge from Source to Target.
type Edge struct {
	Source string
	Target string
}

// Compute assigns a position to every node id. It is a pure function of
// (nodeIDs, edges): full relayout on every call, no dependence on previous
// positions, identical output for identical input. Node order breaks ties
// within a layer.
func Compute(nodeIDs []string, edges []Edge) map[string]Position {
	positions := make(map[string]Position, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return positions
	}

	levels := Levels(nodeIDs, edges)

	// Group into layers, preserving input order within each.
	maxLevel := 0
	for _, lvl := range levels {
		if lvl > maxLevel {
			maxLevel = lvl
		}
	}
	layers := make([][]string, maxLevel+1)
	for _, id := range nodeIDs {
		lvl := levels[id]
		layers[lvl] = append(layers[lvl], id)
	}

	maxPerLevel := 0
	for _, layer := range layers {
		if len(layer) > maxPerLevel {
			maxPerLevel = len(layer)
		}
	}
	canvasHeight := float64(maxPerLevel) * NodeSpacing

	for lvl, layer := range layers {
		layerHeight := float64(len(layer)) * NodeSpacing
		yOffset := (canvasHeight - layerHeight) / 2
		for i, id := range layer {
			positions[id] = Position{
				X: float64(lvl)*LevelSpacing + Margin,
				Y: yOffset + float64(i)*NodeSpacing,
			}
		}
	}

	return positions
}

// Levels computes the layer index for every node id: 0 for nodes with no
// incoming edge, otherwise one more than the deepest source feeding it.
// Cycles are defused rather than rejected: when the recursion meets a node
// that is still being resolved, every node in the open chain from it onward
// is forced to level 0.
func Levels(nodeIDs []string, edges []Edge) map[string]int {
	known := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		known[id] = true
	}

	incoming := make(map[string][]string, len(nodeIDs))
	for _, e := range edges {
		if !known[e.Source] || !known[e.Target] {
			continue // dangling reference, irrelevant to placement
		}
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}

	r := &resolver{
		incoming:   incoming,
		levels:     make(map[string]int, len(nodeIDs)),
		inProgress: make(map[string]bool),
	}
	for _, id := range nodeIDs {
		r.resolve(id)
	}
	return r.levels
}

type resolver struct {
	incoming   map[string][]string
	levels     map[string]int // memo; also holds cycle-forced zeros
	inProgress map[string]bool
	stack      []string
}

func (r *resolver) resolve(id string) int {
	if lvl, ok := r.levels[id]; ok {
		return lvl
	}
	if r.inProgress[id] {
		// Revisited while still being resolved: the open chain from this
		// node onward is a cycle. Pin all of it at level 0.
		for i := len(r.stack) - 1; i >= 0; i-- {
			r.levels[r.stack[i]] = 0
			if r.stack[i] == id {
				break
			}
		}
		return 0
	}

	r.inProgress[id] = true
	r.stack = append(r.stack, id)

	level := 0
	for _, src := range r.incoming[id] {
		if d := r.resolve(src); d+1 > level {
			level = d + 1
		}
	}

	r.stack = r.stack[:len(r.stack)-1]
	delete(r.inProgress, id)

	// A cycle force may have pinned this node while its frame was open.
	if pinned, ok := r.levels[id]; ok {
		return pinned
	}
	r.levels[id] = level
	return level
}
