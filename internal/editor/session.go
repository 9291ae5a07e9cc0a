package editor

import (
	"github.com/srec-tools/pipectl/internal/layout"
	"github.com/srec-tools/pipectl/pkg/schema"
)

// Session keeps the two views of a draft consistent: the canonical step
// array (list view) and the positioned graph projection (graph view). The
// array is the single source of truth; positions are the only state that
// survives independently, and only for ids that still exist.
type Session struct {
	steps     []schema.DagStepDefinition
	positions map[string]layout.Position
	laidOut   bool
	dirty     bool
}

// GraphNode is one node of the graph projection.
type GraphNode struct {
	ID       string          `json:"id"`
	Step     schema.Step     `json:"step"`
	Position layout.Position `json:"position"`
}

// Graph is the derived graph projection: nodes in array order plus the
// regenerated edge list.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{positions: make(map[string]layout.Position)}
}

// Restore rebuilds a session from persisted draft state. Stored positions
// are kept for ids that still exist; anything else starts at the origin.
func Restore(steps []schema.DagStepDefinition, positions map[string]layout.Position, laidOut, dirty bool) *Session {
	s := NewSession()
	s.steps = schema.CloneSteps(steps)
	for _, d := range s.steps {
		s.positions[d.ID] = positions[d.ID]
	}
	s.laidOut = laidOut
	s.dirty = dirty
	return s
}

// Load replaces the array from a structural load: a new empty pipeline or a
// preset fetched from the backend. fresh says so explicitly; a fresh load
// (or a session that has never been laid out) triggers auto-layout once.
// Loading clears the dirty flag.
func (s *Session) Load(steps []schema.DagStepDefinition, fresh bool) {
	s.merge(steps)
	s.dirty = false
	if fresh || !s.laidOut {
		s.Relayout()
	}
}

// Apply replaces the array after a local edit and marks the session dirty.
// Positions of surviving nodes are preserved; new nodes start at the origin
// until the user moves them or asks for a relayout. A session that has never
// been laid out arranges itself once.
func (s *Session) Apply(steps []schema.DagStepDefinition) {
	s.merge(steps)
	s.dirty = true
	if !s.laidOut {
		s.Relayout()
	}
}

// merge installs the new array and reconciles positions by id: surviving
// ids keep their position, new ids get (0,0), removed ids are dropped.
func (s *Session) merge(steps []schema.DagStepDefinition) {
	next := make(map[string]layout.Position, len(steps))
	for _, d := range steps {
		next[d.ID] = s.positions[d.ID]
	}
	s.positions = next
	s.steps = schema.CloneSteps(steps)
}

// Relayout recomputes every position from scratch and overwrites any manual
// adjustments. This is the manual "auto layout" action and the structural
// load trigger.
func (s *Session) Relayout() {
	ids := make([]string, 0, len(s.steps))
	for _, d := range s.steps {
		ids = append(ids, d.ID)
	}
	edges := make([]layout.Edge, 0)
	for _, e := range Edges(s.steps) {
		edges = append(edges, layout.Edge{Source: e.Source, Target: e.Target})
	}
	s.positions = layout.Compute(ids, edges)
	s.laidOut = true
}

// MoveNode records a manual position for a node, the CLI stand-in for a
// graph-view drag. Positions are draft-local state, so moving a node does
// not dirty the pipeline itself. Returns false for unknown ids.
func (s *Session) MoveNode(id string, x, y float64) bool {
	if _, ok := s.positions[id]; !ok {
		return false
	}
	s.positions[id] = layout.Position{X: x, Y: y}
	return true
}

// Steps returns a copy of the canonical array.
func (s *Session) Steps() []schema.DagStepDefinition {
	return schema.CloneSteps(s.steps)
}

// Positions returns a copy of the current position map.
func (s *Session) Positions() map[string]layout.Position {
	out := make(map[string]layout.Position, len(s.positions))
	for id, p := range s.positions {
		out[id] = p
	}
	return out
}

// Graph derives the graph projection from the current state.
func (s *Session) Graph() Graph {
	g := Graph{Nodes: make([]GraphNode, 0, len(s.steps)), Edges: Edges(s.steps)}
	for _, d := range s.steps {
		g.Nodes = append(g.Nodes, GraphNode{ID: d.ID, Step: d.Step, Position: s.positions[d.ID]})
	}
	return g
}

// Dirty reports whether the array changed since the last load or save.
func (s *Session) Dirty() bool { return s.dirty }

// LaidOut reports whether auto-layout has run for this session.
func (s *Session) LaidOut() bool { return s.laidOut }

// MarkSaved clears the dirty flag after a successful save.
func (s *Session) MarkSaved() { s.dirty = false }
