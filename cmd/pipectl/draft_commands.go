package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/srec-tools/pipectl/internal/editor"
	"github.com/srec-tools/pipectl/internal/layout"
	"github.com/srec-tools/pipectl/internal/render"
	"github.com/srec-tools/pipectl/internal/store"
	"github.com/srec-tools/pipectl/pkg/schema"
)

func newDraftCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Edit pipeline drafts in the local workspace",
	}

	cmd.AddCommand(newDraftNewCommand(ctx))
	cmd.AddCommand(newDraftOpenCommand(ctx))
	cmd.AddCommand(newDraftListCommand(ctx))
	cmd.AddCommand(newDraftShowCommand(ctx))
	cmd.AddCommand(newDraftAddCommand(ctx))
	cmd.AddCommand(newDraftRemoveCommand(ctx))
	cmd.AddCommand(newDraftConnectCommand(ctx))
	cmd.AddCommand(newDraftDisconnectCommand(ctx))
	cmd.AddCommand(newDraftReorderCommand(ctx))
	cmd.AddCommand(newDraftEditCommand(ctx))
	cmd.AddCommand(newDraftDetachCommand(ctx))
	cmd.AddCommand(newDraftMoveCommand(ctx))
	cmd.AddCommand(newDraftLayoutCommand(ctx))
	cmd.AddCommand(newDraftHistoryCommand(ctx))
	cmd.AddCommand(newDraftUndoCommand(ctx))
	cmd.AddCommand(newDraftValidateCommand(ctx))
	cmd.AddCommand(newDraftSaveCommand(ctx))
	cmd.AddCommand(newDraftDiscardCommand(ctx))

	return cmd
}

func newDraftNewCommand(ctx *commandContext) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create an empty draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(st *store.LibSQLStore) error {
				draft := store.NewDraft(args[0])
				draft.Description = description
				if err := st.CreateDraft(cmd.Context(), draft); err != nil {
					return err
				}
				return ctx.emit(cmd, draftPayload(draft), func(out io.Writer) {
					fmt.Fprintf(out, "Created draft %q (%s)\n", draft.Name, draft.ID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Draft description")

	return cmd
}

func newDraftOpenCommand(ctx *commandContext) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "open <preset-id>",
		Short: "Open a backend pipeline preset as a new draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			preset, err := api.GetPipelinePreset(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			draftName := name
			if draftName == "" {
				draftName = preset.Name
			}

			return ctx.withStore(cmd, func(st *store.LibSQLStore) error {
				draft := store.NewDraft(draftName)
				draft.Description = preset.Description
				draft.RemoteID = preset.ID

				session := editor.NewSession()
				session.Load(preset.Dag.Steps, true)
				draft.Steps = session.Steps()
				draft.Positions = session.Positions()
				draft.LaidOut = session.LaidOut()
				draft.Dirty = session.Dirty()

				if err := st.CreateDraft(cmd.Context(), draft); err != nil {
					return err
				}
				return ctx.emit(cmd, draftPayload(draft), func(out io.Writer) {
					fmt.Fprintf(out, "Opened preset %q as draft %q (%s)\n", preset.Name, draft.Name, draft.ID)
					writeStepTable(out, draft.Steps)
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Draft name (defaults to the preset name)")

	return cmd
}

func newDraftListCommand(ctx *commandContext) *cobra.Command {
	var search string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(st *store.LibSQLStore) error {
				drafts, err := st.ListDrafts(cmd.Context(), store.DraftFilter{
					Search: search,
					Limit:  limit,
					Offset: offset,
				})
				if err != nil {
					return err
				}

				payload := make([]draftSummary, 0, len(drafts))
				for _, d := range drafts {
					payload = append(payload, summarizeDraft(d))
				}

				return ctx.emit(cmd, payload, func(out io.Writer) {
					if len(drafts) == 0 {
						fmt.Fprintln(out, "No drafts.")
						return
					}
					rows := make([][]string, 0, len(drafts))
					for _, d := range drafts {
						rows = append(rows, []string{
							d.ID,
							d.Name,
							strconv.Itoa(len(d.Steps)),
							boolMark(d.Dirty),
							d.RemoteID,
							formatDisplayTime(d.UpdatedAt),
						})
					}
					fmt.Fprintln(out, renderTable(out,
						[]string{"ID", "Name", "Steps", "Dirty", "Remote", "Updated"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
					))
				})
			})
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Filter by name or description substring")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum drafts to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Drafts to skip before the first result")

	return cmd
}

func newDraftShowCommand(ctx *commandContext) *cobra.Command {
	var view string

	cmd := &cobra.Command{
		Use:   "show <draft>",
		Short: "Show a draft's steps or its graph view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(st *store.LibSQLStore) error {
				draft, err := resolveDraft(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}

				return ctx.emit(cmd, draftPayload(draft), func(out io.Writer) {
					switch view {
					case "graph", "mermaid", "dot":
						if len(draft.Steps) == 0 {
							fmt.Fprintln(out, "No steps.")
							return
						}
						model, err := render.Build(draft.Name, draft.Steps, draft.Positions)
						if err != nil {
							fmt.Fprintf(out, "render failed: %v\n", err)
							return
						}
						switch view {
						case "graph":
							fmt.Fprintln(out, render.RenderASCII(model))
						case "mermaid":
							fmt.Fprintln(out, render.RenderMermaid(model))
						case "dot":
							dot, err := render.RenderDOT(model)
							if err != nil {
								fmt.Fprintf(out, "render failed: %v\n", err)
								return
							}
							fmt.Fprintln(out, dot)
						}
					default:
						fmt.Fprintf(out, "ID:      %s\n", draft.ID)
						fmt.Fprintf(out, "Name:    %s\n", draft.Name)
						if draft.Description != "" {
							fmt.Fprintf(out, "Desc:    %s\n", draft.Description)
						}
						if draft.RemoteID != "" {
							fmt.Fprintf(out, "Remote:  %s\n", draft.RemoteID)
						}
						fmt.Fprintf(out, "Dirty:   %s\n", yesNo(draft.Dirty))
						fmt.Fprintf(out, "Updated: %s\n", formatDisplayTime(draft.UpdatedAt))
						writeStepTable(out, draft.Steps)
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&view, "view", "table", "View: table, graph, mermaid, or dot")

	return cmd
}

func newDraftDiscardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <draft>",
		Short: "Delete a draft from the local workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(st *store.LibSQLStore) error {
				draft, err := resolveDraft(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}
				if err := st.DeleteDraft(cmd.Context(), draft.ID); err != nil {
					return err
				}
				return ctx.emit(cmd, map[string]string{"discarded": draft.ID}, func(out io.Writer) {
					fmt.Fprintf(out, "Discarded draft %q (%s)\n", draft.Name, draft.ID)
				})
			})
		},
	}
}

// errNoChange marks an edit that left the draft untouched, so nothing is
// persisted and the draft stays in its current dirty state.
var errNoChange = errors.New("no change")

// updateDraft resolves the draft, restores its editing session, runs the
// edit, and persists the session state back. The edit mutates the session
// and returns a one-line summary; position and dirty bookkeeping follow the
// session's own rules. The pre-edit state goes into the edit journal so the
// operation can be undone. On errNoChange the draft is returned as-is
// without a write or a journal entry.
func (c *commandContext) updateDraft(cmd *cobra.Command, ref, op string, edit func(*store.Draft, *editor.Session) (string, error)) (*store.Draft, string, error) {
	var draft *store.Draft
	var summary string
	err := c.withStore(cmd, func(st *store.LibSQLStore) error {
		var err error
		draft, err = resolveDraft(cmd.Context(), st, ref)
		if err != nil {
			return err
		}

		before := store.EditEvent{
			DraftID:   draft.ID,
			Op:        op,
			Steps:     draft.Steps,
			Positions: draft.Positions,
			LaidOut:   draft.LaidOut,
			Dirty:     draft.Dirty,
		}

		session := editor.Restore(draft.Steps, draft.Positions, draft.LaidOut, draft.Dirty)
		summary, err = edit(draft, session)
		if err != nil {
			return err
		}

		laidOut := session.LaidOut()
		dirty := session.Dirty()
		if err := st.UpdateDraft(cmd.Context(), draft.ID, store.DraftUpdate{
			Steps:     session.Steps(),
			Positions: session.Positions(),
			LaidOut:   &laidOut,
			Dirty:     &dirty,
		}); err != nil {
			return err
		}

		before.Summary = summary
		if err := store.NewEditLog(st).AppendEdit(cmd.Context(), &before); err != nil {
			// The edit itself persisted; losing one undo entry is not worth
			// failing the command over.
			c.logger().Warn("edit journal append failed", "draft", draft.ID, "error", err)
		}

		draft.Steps = session.Steps()
		draft.Positions = session.Positions()
		draft.LaidOut = laidOut
		draft.Dirty = dirty
		draft.UpdatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, errNoChange) {
		return draft, "", errNoChange
	}
	if err != nil {
		return nil, "", err
	}
	return draft, summary, nil
}

// emitDraftEdit prints the outcome of an edit: the message plus the
// resulting step table, or the full draft state in JSON mode.
func (c *commandContext) emitDraftEdit(cmd *cobra.Command, draft *store.Draft, message string, withTable bool) error {
	return c.emit(cmd, draftPayload(draft), func(out io.Writer) {
		fmt.Fprintln(out, message)
		if withTable {
			writeStepTable(out, draft.Steps)
		}
	})
}

// draftState is the JSON projection of a draft.
type draftState struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	RemoteID    string                     `json:"remote_id,omitempty"`
	Steps       []schema.DagStepDefinition `json:"steps"`
	Positions   map[string]layout.Position `json:"positions"`
	Edges       []editor.GraphEdge         `json:"edges"`
	LaidOut     bool                       `json:"laid_out"`
	Dirty       bool                       `json:"dirty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

func draftPayload(d *store.Draft) draftState {
	return draftState{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		RemoteID:    d.RemoteID,
		Steps:       d.Steps,
		Positions:   d.Positions,
		Edges:       editor.Edges(d.Steps),
		LaidOut:     d.LaidOut,
		Dirty:       d.Dirty,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// draftSummary is the JSON row of the draft listing.
type draftSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Steps     int       `json:"steps"`
	Dirty     bool      `json:"dirty"`
	RemoteID  string    `json:"remote_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func summarizeDraft(d *store.Draft) draftSummary {
	return draftSummary{
		ID:        d.ID,
		Name:      d.Name,
		Steps:     len(d.Steps),
		Dirty:     d.Dirty,
		RemoteID:  d.RemoteID,
		UpdatedAt: d.UpdatedAt,
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
