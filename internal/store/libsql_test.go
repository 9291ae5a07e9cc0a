package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srec-tools/pipectl/internal/layout"
	"github.com/srec-tools/pipectl/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "drafts.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedDraft(t *testing.T, s *LibSQLStore, name string) *Draft {
	t.Helper()
	d := NewDraft(name)
	d.Steps = []schema.DagStepDefinition{
		{ID: "remux", Step: schema.PresetStep("hq_remux")},
		{ID: "upload", Step: schema.PresetStep("drive_upload"), DependsOn: []string{"remux"}},
	}
	d.Positions = map[string]layout.Position{
		"remux":  {X: 50, Y: 75},
		"upload": {X: 330, Y: 75},
	}
	d.LaidOut = true
	require.NoError(t, s.CreateDraft(context.Background(), d))
	return d
}

// --- Draft CRUD ---

func TestCreateAndGetDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := seedDraft(t, s, "vod archive")

	got, err := s.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, "vod archive", got.Name)
	assert.Equal(t, d.Steps, got.Steps)
	assert.Equal(t, d.Positions, got.Positions)
	assert.True(t, got.LaidOut)
	assert.False(t, got.Dirty)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetDraft_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetDraft(context.Background(), "nonexistent")
	require.Error(t, err)

	var perr *schema.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeNotFound, perr.Code)
}

func TestGetDraftByName(t *testing.T) {
	s := newTestStore(t)
	d := seedDraft(t, s, "vod archive")

	got, err := s.GetDraftByName(context.Background(), "vod archive")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	_, err = s.GetDraftByName(context.Background(), "missing")
	require.Error(t, err)
}

func TestCreateDraft_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	seedDraft(t, s, "vod archive")

	err := s.CreateDraft(context.Background(), NewDraft("vod archive"))
	require.Error(t, err)

	var perr *schema.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeConflict, perr.Code)
}

func TestUpdateDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDraft(t, s, "vod archive")

	steps := append(d.Steps, schema.DagStepDefinition{
		ID:        "cleanup",
		Step:      schema.PresetStep("tidy"),
		DependsOn: []string{"upload"},
	})
	name := "vod archive v2"
	dirty := true
	require.NoError(t, s.UpdateDraft(ctx, d.ID, DraftUpdate{
		Name:  &name,
		Steps: steps,
		Dirty: &dirty,
	}))

	got, err := s.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "vod archive v2", got.Name)
	assert.Len(t, got.Steps, 3)
	assert.True(t, got.Dirty)
	// Untouched fields survive.
	assert.Equal(t, d.Positions, got.Positions)
	assert.True(t, got.LaidOut)
	assert.False(t, got.UpdatedAt.Before(d.UpdatedAt))
}

func TestUpdateDraft_NoFieldsIsNoop(t *testing.T) {
	s := newTestStore(t)
	d := seedDraft(t, s, "vod archive")

	require.NoError(t, s.UpdateDraft(context.Background(), d.ID, DraftUpdate{}))
}

func TestUpdateDraft_NotFound(t *testing.T) {
	s := newTestStore(t)

	dirty := true
	err := s.UpdateDraft(context.Background(), "nonexistent", DraftUpdate{Dirty: &dirty})
	require.Error(t, err)

	var perr *schema.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeNotFound, perr.Code)
}

func TestUpdateDraft_RenameConflict(t *testing.T) {
	s := newTestStore(t)
	seedDraft(t, s, "vod archive")
	other := seedDraft(t, s, "clip export")

	name := "vod archive"
	err := s.UpdateDraft(context.Background(), other.ID, DraftUpdate{Name: &name})
	require.Error(t, err)

	var perr *schema.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeConflict, perr.Code)
}

func TestListDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedDraft(t, s, "vod archive")
	b := seedDraft(t, s, "clip export")
	seedDraft(t, s, "audio only")

	// Touching a draft moves it to the front of the listing.
	dirty := true
	require.NoError(t, s.UpdateDraft(ctx, b.ID, DraftUpdate{Dirty: &dirty}))

	drafts, err := s.ListDrafts(ctx, DraftFilter{})
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	assert.Equal(t, b.ID, drafts[0].ID)

	filtered, err := s.ListDrafts(ctx, DraftFilter{Search: "archive"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "vod archive", filtered[0].Name)

	limited, err := s.ListDrafts(ctx, DraftFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDeleteDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDraft(t, s, "vod archive")

	require.NoError(t, s.DeleteDraft(ctx, d.ID))

	_, err := s.GetDraft(ctx, d.ID)
	require.Error(t, err)

	err = s.DeleteDraft(ctx, d.ID)
	require.Error(t, err)

	var perr *schema.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeNotFound, perr.Code)
}

// --- Persistence across reopen ---

func TestDraftSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "drafts.db")
	ctx := context.Background()

	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	d := seedDraft(t, s, "vod archive")
	d2 := NewDraft("untouched")
	require.NoError(t, s.CreateDraft(ctx, d2))
	require.NoError(t, s.Close())

	reopened, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Migrate(ctx))

	got, err := reopened.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Steps, got.Steps)
	assert.Equal(t, d.Positions, got.Positions)
	assert.True(t, got.LaidOut)

	// A draft stored with no steps comes back as empty, not nil.
	empty, err := reopened.GetDraft(ctx, d2.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty.Steps)
	assert.Empty(t, empty.Steps)
	assert.NotNil(t, empty.Positions)
}
