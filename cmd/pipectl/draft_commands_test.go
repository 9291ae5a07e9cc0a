package main

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srec-tools/pipectl/internal/client"
	"github.com/srec-tools/pipectl/internal/editor"
	"github.com/srec-tools/pipectl/internal/layout"
	"github.com/srec-tools/pipectl/pkg/schema"
)

// draftJSON mirrors the JSON projection the draft commands emit.
type draftJSON struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	RemoteID  string                     `json:"remote_id"`
	Steps     []schema.DagStepDefinition `json:"steps"`
	Positions map[string]layout.Position `json:"positions"`
	Edges     []editor.GraphEdge         `json:"edges"`
	LaidOut   bool                       `json:"laid_out"`
	Dirty     bool                       `json:"dirty"`
}

func showDraft(t *testing.T, ref string) draftJSON {
	t.Helper()
	stdout, _, err := runCLI(t, "draft", "show", ref, "--json")
	require.NoError(t, err)
	var state draftJSON
	decodeInto(t, stdout, &state)
	return state
}

// --- Lifecycle ---

func TestDraftLifecycle(t *testing.T) {
	setupWorkspace(t)

	stdout, _, err := runCLI(t, "draft", "new", "vod-archive", "--description", "nightly vod archive")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Created draft "vod-archive"`)

	stdout, _, err = runCLI(t, "draft", "add", "vod-archive", "--preset", "hq_remux", "--id", "remux")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Added step "remux"`)

	stdout, _, err = runCLI(t, "draft", "add", "vod-archive",
		"--processor", "thumbnail", "--config", `{"width": 320}`, "--id", "thumbs")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Added step "thumbs" (depends on remux)`)

	_, _, err = runCLI(t, "draft", "add", "vod-archive",
		"--preset", "drive_upload", "--id", "upload", "--depends-on", "thumbs")
	require.NoError(t, err)

	state := showDraft(t, "vod-archive")
	require.Len(t, state.Steps, 3)
	assert.True(t, state.Dirty)
	assert.True(t, state.LaidOut)
	assert.Equal(t, schema.StepKindInline, state.Steps[1].Step.Kind)
	assert.Equal(t, []string{"thumbs"}, state.Steps[2].DependsOn)
	assert.Len(t, state.Edges, 2)

	// Removing the middle step bridges upload back to remux.
	_, _, err = runCLI(t, "draft", "remove", "vod-archive", "thumbs")
	require.NoError(t, err)
	state = showDraft(t, "vod-archive")
	require.Len(t, state.Steps, 2)
	assert.Equal(t, []string{"remux"}, state.Steps[1].DependsOn)

	stdout, _, err = runCLI(t, "draft", "validate", "vod-archive", "--offline")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Pipeline is valid.")

	stdout, _, err = runCLI(t, "draft", "discard", "vod-archive")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Discarded draft "vod-archive"`)

	_, _, err = runCLI(t, "draft", "show", "vod-archive")
	require.Error(t, err)
}

func TestDraftNewDuplicateName(t *testing.T) {
	setupWorkspace(t)

	_, _, err := runCLI(t, "draft", "new", "twin")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "new", "twin")
	require.Error(t, err)
	assert.ErrorContains(t, err, "already in use")
}

func TestDraftResolvesByIDToo(t *testing.T) {
	setupWorkspace(t)

	stdout, _, err := runCLI(t, "draft", "new", "by-id", "--json")
	require.NoError(t, err)
	var state draftJSON
	decodeInto(t, stdout, &state)

	byID := showDraft(t, state.ID)
	assert.Equal(t, "by-id", byID.Name)
}

func TestDraftListFilters(t *testing.T) {
	setupWorkspace(t)

	for _, name := range []string{"clips-daily", "clips-weekly", "podcast"} {
		_, _, err := runCLI(t, "draft", "new", name)
		require.NoError(t, err)
	}

	stdout, _, err := runCLI(t, "draft", "list", "--search", "clips", "--json")
	require.NoError(t, err)
	var rows []struct {
		Name string `json:"name"`
	}
	decodeInto(t, stdout, &rows)
	require.Len(t, rows, 2)

	stdout, _, err = runCLI(t, "draft", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "podcast")
}

// --- Step edits ---

func TestDraftAddRequiresExactlyOneForm(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "forms")
	require.NoError(t, err)

	_, _, err = runCLI(t, "draft", "add", "forms")
	require.Error(t, err)
	assert.ErrorContains(t, err, "exactly one of")

	_, _, err = runCLI(t, "draft", "add", "forms", "--preset", "a", "--processor", "remux")
	require.Error(t, err)
	assert.ErrorContains(t, err, "exactly one of")

	_, _, err = runCLI(t, "draft", "add", "forms", "--preset", "a", "--config", "{}")
	require.Error(t, err)
	assert.ErrorContains(t, err, "--config requires --processor")
}

func TestDraftAddRejectsBadConfig(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "cfg")
	require.NoError(t, err)

	_, _, err = runCLI(t, "draft", "add", "cfg",
		"--processor", "thumbnail", "--config", `{"width": 0}`)
	require.Error(t, err)
	assert.ErrorContains(t, err, "thumbnail config")

	_, _, err = runCLI(t, "draft", "add", "cfg", "--processor", "hologram")
	require.Error(t, err)
	assert.ErrorContains(t, err, "no config schema for processor")

	// Nothing was persisted.
	assert.Empty(t, showDraft(t, "cfg").Steps)
}

func TestDraftAddDuplicateID(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "dupe")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "dupe", "--preset", "x", "--id", "one")
	require.NoError(t, err)

	_, _, err = runCLI(t, "draft", "add", "dupe", "--preset", "y", "--id", "one")
	require.Error(t, err)
	assert.ErrorContains(t, err, `step id "one" already exists`)
}

func TestDraftAddGeneratesIDs(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "gen")
	require.NoError(t, err)

	_, _, err = runCLI(t, "draft", "add", "gen", "--preset", "HQ Remux")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "gen", "--preset", "HQ Remux")
	require.NoError(t, err)

	state := showDraft(t, "gen")
	require.Len(t, state.Steps, 2)
	assert.Equal(t, "hq-remux", state.Steps[0].ID)
	assert.Equal(t, "hq-remux-2", state.Steps[1].ID)
}

func TestDraftConnectDisconnect(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "wiring")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "wiring", "--preset", "x", "--id", "a")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "wiring", "--preset", "y", "--id", "b")
	require.NoError(t, err)

	// Chaining already created a -> b; the duplicate is a silent no-op.
	stdout, _, err := runCLI(t, "draft", "connect", "wiring", "a", "b")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No change.")

	stdout, _, err = runCLI(t, "draft", "connect", "wiring", "a", "a")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No change.")

	stdout, _, err = runCLI(t, "draft", "connect", "wiring", "ghost", "b")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No change.")

	stdout, _, err = runCLI(t, "draft", "disconnect", "wiring", "b", "a")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No change.")

	stdout, _, err = runCLI(t, "draft", "disconnect", "wiring", "a", "b")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Disconnected a -> b")
	assert.Empty(t, showDraft(t, "wiring").Edges)

	stdout, _, err = runCLI(t, "draft", "connect", "wiring", "b", "a")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Connected b -> a")
	state := showDraft(t, "wiring")
	require.Len(t, state.Edges, 1)
	assert.Equal(t, "b", state.Edges[0].Source)
	assert.Equal(t, "a", state.Edges[0].Target)
}

func TestDraftReorder(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "order")
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		_, _, err = runCLI(t, "draft", "add", "order", "--preset", id, "--id", id, "--no-chain")
		require.NoError(t, err)
	}

	stdout, _, err := runCLI(t, "draft", "reorder", "order", "c", "0")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Moved step "c" to position 0`)

	state := showDraft(t, "order")
	assert.Equal(t, "c", state.Steps[0].ID)
	assert.Equal(t, "a", state.Steps[1].ID)

	// Out-of-range indexes clamp instead of failing.
	_, _, err = runCLI(t, "draft", "reorder", "order", "c", "99")
	require.NoError(t, err)
	assert.Equal(t, "c", showDraft(t, "order").Steps[2].ID)

	_, _, err = runCLI(t, "draft", "reorder", "order", "c", "soon")
	require.Error(t, err)
	assert.ErrorContains(t, err, "index must be an integer")
}

func TestDraftEditRenameRewritesReferences(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "chain")
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		_, _, err = runCLI(t, "draft", "add", "chain", "--preset", id, "--id", id)
		require.NoError(t, err)
	}

	stdout, _, err := runCLI(t, "draft", "edit", "chain", "b", "--id", "mid")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Updated step "mid"`)

	state := showDraft(t, "chain")
	assert.Equal(t, "mid", state.Steps[1].ID)
	assert.Equal(t, []string{"mid"}, state.Steps[2].DependsOn)
}

func TestDraftEditPayloadAndDeps(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "payloads")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "payloads", "--preset", "src", "--id", "src")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "payloads", "--preset", "old", "--id", "work")
	require.NoError(t, err)

	// Convert the preset step into an inline one.
	_, _, err = runCLI(t, "draft", "edit", "payloads", "work",
		"--processor", "thumbnail", "--config", `{"width": 640}`)
	require.NoError(t, err)
	state := showDraft(t, "payloads")
	assert.Equal(t, schema.StepKindInline, state.Steps[1].Step.Kind)
	assert.Equal(t, "thumbnail", state.Steps[1].Step.Processor)

	// Config-only edits need an inline step.
	_, _, err = runCLI(t, "draft", "edit", "payloads", "src", "--config", `{}`)
	require.Error(t, err)
	assert.ErrorContains(t, err, "only inline steps carry a config")

	// Replace the dependency list; unknown ids are dropped.
	_, _, err = runCLI(t, "draft", "edit", "payloads", "work", "--depends-on", "src,ghost")
	require.NoError(t, err)
	assert.Equal(t, []string{"src"}, showDraft(t, "payloads").Steps[1].DependsOn)

	_, _, err = runCLI(t, "draft", "edit", "payloads", "work", "--clear-deps")
	require.NoError(t, err)
	assert.Empty(t, showDraft(t, "payloads").Steps[1].DependsOn)
}

// --- Graph state ---

func TestDraftMoveAndLayout(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "canvas")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "canvas", "--preset", "x", "--id", "a")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "canvas", "--preset", "y", "--id", "b")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "draft", "move", "canvas", "a", "42.5", "-7")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Moved a to (42.5, -7)")
	state := showDraft(t, "canvas")
	assert.Equal(t, layout.Position{X: 42.5, Y: -7}, state.Positions["a"])

	_, _, err = runCLI(t, "draft", "move", "canvas", "ghost", "1", "1")
	require.Error(t, err)
	assert.ErrorContains(t, err, `step "ghost" does not exist`)

	// Layout recomputes from structure and overwrites the manual move.
	stdout, _, err = runCLI(t, "draft", "layout", "canvas")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Laid out 2 nodes")
	state = showDraft(t, "canvas")
	assert.Equal(t, layout.Position{X: 50, Y: 0}, state.Positions["a"])
	assert.Equal(t, layout.Position{X: 330, Y: 0}, state.Positions["b"])
}

// --- Validation ---

func TestDraftValidateCycleFailsExit(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "loop")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "loop", "--preset", "x", "--id", "a")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "loop", "--preset", "y", "--id", "b")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "connect", "loop", "b", "a")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "draft", "validate", "loop", "--offline")
	require.Error(t, err)
	assert.ErrorContains(t, err, "pipeline is invalid")
	assert.Contains(t, stdout, "Pipeline is INVALID.")
	assert.Contains(t, stdout, "Cycle detected involving:")
	assert.Contains(t, stdout, "no root steps")
}

func TestDraftValidateEmptyDraft(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "empty")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "draft", "validate", "empty", "--offline")
	require.Error(t, err)
	assert.Contains(t, stdout, "DAG must have at least one step")
}

// --- Backend round trips ---

func TestDraftOpenFromPreset(t *testing.T) {
	setupWorkspace(t)
	setupBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pipeline/presets/pp-7", r.URL.Path)
		writeResponse(t, w, client.PipelinePreset{
			ID:   "pp-7",
			Name: "clip flow",
			Dag: schema.NewDagPipelineDefinition("clip flow", []schema.DagStepDefinition{
				{ID: "remux", Step: schema.PresetStep("hq_remux")},
				{ID: "upload", Step: schema.PresetStep("drive_upload"), DependsOn: []string{"remux"}},
			}),
		})
	})

	stdout, _, err := runCLI(t, "draft", "open", "pp-7")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Opened preset "clip flow" as draft "clip flow"`)

	state := showDraft(t, "clip flow")
	assert.Equal(t, "pp-7", state.RemoteID)
	assert.False(t, state.Dirty)
	assert.True(t, state.LaidOut)
	require.Len(t, state.Steps, 2)
	// A fresh open lays the graph out.
	assert.Equal(t, layout.Position{X: 50, Y: 0}, state.Positions["remux"])
	assert.Equal(t, layout.Position{X: 330, Y: 0}, state.Positions["upload"])
}

func TestDraftSaveCreateThenUpdate(t *testing.T) {
	setupWorkspace(t)

	var created, updated bool
	var createReq client.SavePipelineRequest
	setupBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/pipeline/presets":
			created = true
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createReq))
			writeResponse(t, w, client.PipelinePreset{ID: "pp-1", Name: createReq.Name, Dag: createReq.Dag})
		case r.Method == http.MethodPut && r.URL.Path == "/api/pipeline/presets/pp-1":
			updated = true
			var req client.SavePipelineRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			writeResponse(t, w, client.PipelinePreset{ID: "pp-1", Name: req.Name, Dag: req.Dag})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	_, _, err := runCLI(t, "draft", "new", "publishable")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "publishable", "--preset", "hq_remux", "--id", "remux")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "draft", "save", "publishable")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Saved pipeline preset "publishable" (pp-1)`)
	assert.True(t, created)
	assert.Equal(t, "publishable", createReq.Dag.Name)
	require.Len(t, createReq.Dag.Steps, 1)

	state := showDraft(t, "publishable")
	assert.Equal(t, "pp-1", state.RemoteID)
	assert.False(t, state.Dirty)

	// A further edit dirties the draft; saving again updates in place.
	_, _, err = runCLI(t, "draft", "add", "publishable", "--preset", "drive_upload", "--id", "upload")
	require.NoError(t, err)
	assert.True(t, showDraft(t, "publishable").Dirty)

	_, _, err = runCLI(t, "draft", "save", "publishable")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.False(t, showDraft(t, "publishable").Dirty)
}

func TestDraftSaveFailureKeepsDraftDirty(t *testing.T) {
	setupWorkspace(t)
	setupBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeResponse(t, w, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "DAG has no root steps (all steps have dependencies)",
		})
	})

	_, _, err := runCLI(t, "draft", "new", "doomed")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "doomed", "--preset", "x", "--id", "a")
	require.NoError(t, err)

	_, _, err = runCLI(t, "draft", "save", "doomed")
	require.Error(t, err)
	assert.ErrorContains(t, err, "DAG has no root steps")

	state := showDraft(t, "doomed")
	assert.True(t, state.Dirty)
	assert.Empty(t, state.RemoteID)
	require.Len(t, state.Steps, 1)
}

func TestDraftDetach(t *testing.T) {
	setupWorkspace(t)
	setupBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/job/presets", r.URL.Path)
		require.Equal(t, "hq_remux", r.URL.Query().Get("search"))
		writeResponse(t, w, client.JobPresetList{
			Presets: []client.JobPreset{
				{ID: "jp-1", Name: "hq_remux_v2", Processor: "remux", Config: `{"crf": 17}`},
				{ID: "jp-2", Name: "hq_remux", Processor: "remux", Config: `{"crf": 18}`},
			},
			Total: 2,
		})
	})

	_, _, err := runCLI(t, "draft", "new", "detachable")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "detachable", "--preset", "hq_remux", "--id", "remux")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "draft", "detach", "detachable", "remux")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Detached "remux" into an inline remux step`)

	state := showDraft(t, "detachable")
	step := state.Steps[0].Step
	assert.Equal(t, schema.StepKindInline, step.Kind)
	assert.Equal(t, "remux", step.Processor)
	assert.JSONEq(t, `{"crf": 18}`, string(step.Config))

	// Only preset steps detach.
	_, _, err = runCLI(t, "draft", "detach", "detachable", "remux")
	require.Error(t, err)
	assert.ErrorContains(t, err, "only preset steps can be detached")
}

func TestDraftDetachUnknownPreset(t *testing.T) {
	setupWorkspace(t)
	setupBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(t, w, client.JobPresetList{})
	})

	_, _, err := runCLI(t, "draft", "new", "unresolved")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "unresolved", "--preset", "vanished", "--id", "v")
	require.NoError(t, err)

	_, _, err = runCLI(t, "draft", "detach", "unresolved", "v")
	require.Error(t, err)
	assert.ErrorContains(t, err, `job preset "vanished" not found`)

	// The step is untouched.
	assert.Equal(t, schema.StepKindPreset, showDraft(t, "unresolved").Steps[0].Step.Kind)
}

// --- Edit journal ---

func draftHistory(t *testing.T, ref string) []editEntry {
	t.Helper()
	stdout, _, err := runCLI(t, "draft", "history", ref, "--json")
	require.NoError(t, err)
	var rows []editEntry
	decodeInto(t, stdout, &rows)
	return rows
}

func TestDraftHistoryNewestFirst(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "journal")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "journal", "--preset", "x", "--id", "a")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "journal", "--preset", "y", "--id", "b")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "reorder", "journal", "b", "0")
	require.NoError(t, err)

	rows := draftHistory(t, "journal")
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows[0].Sequence)
	assert.Equal(t, "reorder", rows[0].Op)
	assert.Equal(t, `Moved step "b" to position 0`, rows[0].Summary)
	assert.Equal(t, `Added step "b" (depends on a)`, rows[1].Summary)
	assert.Equal(t, `Added step "a"`, rows[2].Summary)
	assert.False(t, rows[0].CreatedAt.IsZero())

	stdout, _, err := runCLI(t, "draft", "history", "journal", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Moved step "b" to position 0`)
	assert.NotContains(t, stdout, `Added step "a"`)
}

func TestDraftHistoryEmpty(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "blank")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "draft", "history", "blank")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No recorded edits.")
}

func TestDraftUndoWalksBack(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "rewind")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "rewind", "--preset", "x", "--id", "a")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "rewind", "--preset", "y", "--id", "b")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "draft", "undo", "rewind")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Undid edit #2: Added step "b" (depends on a)`)

	state := showDraft(t, "rewind")
	require.Len(t, state.Steps, 1)
	assert.Equal(t, "a", state.Steps[0].ID)
	assert.True(t, state.Dirty)

	stdout, _, err = runCLI(t, "draft", "undo", "rewind")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Undid edit #1: Added step "a"`)

	state = showDraft(t, "rewind")
	assert.Empty(t, state.Steps)
	// The first snapshot predates every edit, so the draft is clean again.
	assert.False(t, state.Dirty)

	_, _, err = runCLI(t, "draft", "undo", "rewind")
	require.Error(t, err)
	assert.ErrorContains(t, err, "no recorded edits")
}

func TestDraftUndoRestoresPositions(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "nudge")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "nudge", "--preset", "x", "--id", "a")
	require.NoError(t, err)

	_, _, err = runCLI(t, "draft", "move", "nudge", "a", "400", "120")
	require.NoError(t, err)
	assert.Equal(t, layout.Position{X: 400, Y: 120}, showDraft(t, "nudge").Positions["a"])

	_, _, err = runCLI(t, "draft", "undo", "nudge")
	require.NoError(t, err)
	assert.Equal(t, layout.Position{X: 50, Y: 0}, showDraft(t, "nudge").Positions["a"])
}

func TestDraftNoChangeEditsNotJournaled(t *testing.T) {
	setupWorkspace(t)
	_, _, err := runCLI(t, "draft", "new", "idempotent")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "idempotent", "--preset", "x", "--id", "a")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "idempotent", "--preset", "y", "--id", "b")
	require.NoError(t, err)

	// Chaining already created a -> b; the duplicate no-op leaves no trace.
	_, _, err = runCLI(t, "draft", "connect", "idempotent", "a", "b")
	require.NoError(t, err)

	rows := draftHistory(t, "idempotent")
	require.Len(t, rows, 2)
	assert.Equal(t, "add", rows[0].Op)
}

func TestDraftSaveNotJournaled(t *testing.T) {
	setupWorkspace(t)
	setupBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var req client.SavePipelineRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeResponse(t, w, client.PipelinePreset{ID: "pp-9", Name: req.Name, Dag: req.Dag})
	})

	_, _, err := runCLI(t, "draft", "new", "published")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "add", "published", "--preset", "x", "--id", "a")
	require.NoError(t, err)
	_, _, err = runCLI(t, "draft", "save", "published")
	require.NoError(t, err)

	rows := draftHistory(t, "published")
	require.Len(t, rows, 1)

	// Undo reverts the add, not the save; the remote binding survives.
	_, _, err = runCLI(t, "draft", "undo", "published")
	require.NoError(t, err)
	state := showDraft(t, "published")
	assert.Empty(t, state.Steps)
	assert.Equal(t, "pp-9", state.RemoteID)
}
