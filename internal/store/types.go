package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/srec-tools/pipectl/internal/layout"
	"github.com/srec-tools/pipectl/pkg/schema"
)

// Draft is a locally persisted pipeline editing session. Steps hold the
// definition being edited; Positions and LaidOut carry the graph view
// state so a reopened draft looks exactly as it was left.
type Draft struct {
	ID          string
	Name        string
	Description string
	// RemoteID is the backend preset id this draft was opened from, or ""
	// for a draft that has never been saved.
	RemoteID  string
	Steps     []schema.DagStepDefinition
	Positions map[string]layout.Position
	LaidOut   bool
	// Dirty means the definition diverged from its saved form.
	Dirty     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDraft creates an empty draft with a fresh id.
func NewDraft(name string) *Draft {
	now := time.Now().UTC()
	return &Draft{
		ID:        uuid.NewString(),
		Name:      name,
		Steps:     []schema.DagStepDefinition{},
		Positions: map[string]layout.Position{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Definition returns the draft's steps as a pipeline definition named after
// the draft.
func (d *Draft) Definition() schema.DagPipelineDefinition {
	return schema.NewDagPipelineDefinition(d.Name, d.Steps)
}

// DraftUpdate is a partial update: nil fields are left unchanged. To clear
// all steps pass an empty non-nil slice.
type DraftUpdate struct {
	Name        *string
	Description *string
	RemoteID    *string
	Steps       []schema.DagStepDefinition
	Positions   map[string]layout.Position
	LaidOut     *bool
	Dirty       *bool
}

// DraftFilter narrows draft listings.
type DraftFilter struct {
	// Search matches against name and description.
	Search string
	Limit  int
	Offset int
}

// Journal operation tags recorded with each edit.
const (
	EditOpAdd        = "add"
	EditOpRemove     = "remove"
	EditOpConnect    = "connect"
	EditOpDisconnect = "disconnect"
	EditOpReorder    = "reorder"
	EditOpEdit       = "edit"
	EditOpDetach     = "detach"
	EditOpMove       = "move"
	EditOpLayout     = "layout"
)

// EditEvent is one journal entry: the operation applied to a draft plus the
// draft state immediately before it, so undo can restore that state.
type EditEvent struct {
	DraftID   string
	Sequence  int64
	Op        string
	Summary   string
	Steps     []schema.DagStepDefinition
	Positions map[string]layout.Position
	LaidOut   bool
	Dirty     bool
	CreatedAt time.Time
}
