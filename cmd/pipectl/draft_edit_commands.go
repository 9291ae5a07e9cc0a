package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srec-tools/pipectl/internal/client"
	"github.com/srec-tools/pipectl/internal/editor"
	"github.com/srec-tools/pipectl/internal/store"
	"github.com/srec-tools/pipectl/pkg/schema"
)

func newDraftAddCommand(ctx *commandContext) *cobra.Command {
	var preset string
	var workflow string
	var processor string
	var config string
	var configFile string
	var id string
	var dependsOn []string
	var noChain bool

	cmd := &cobra.Command{
		Use:   "add <draft>",
		Short: "Add a step to a draft",
		Long: `Add a step to a draft. The step is one of three forms: --preset references
a stored job preset by name, --workflow references another pipeline preset,
and --processor carries an inline processor configuration. New steps depend
on the current last step unless --depends-on or --no-chain says otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forms := 0
			for _, v := range []string{preset, workflow, processor} {
				if v != "" {
					forms++
				}
			}
			if forms != 1 {
				return errors.New("exactly one of --preset, --workflow, or --processor is required")
			}
			if (config != "" || configFile != "") && processor == "" {
				return errors.New("--config requires --processor")
			}

			var step schema.Step
			switch {
			case preset != "":
				step = schema.PresetStep(preset)
			case workflow != "":
				step = schema.WorkflowStep(workflow)
			default:
				cfg, err := readConfigFlag(config, configFile)
				if err != nil {
					return err
				}
				if err := ctx.schemas().Validate(processor, cfg); err != nil {
					return err
				}
				step = schema.InlineStep(processor, cfg)
			}

			draft, message, err := ctx.updateDraft(cmd, args[0], store.EditOpAdd, func(_ *store.Draft, session *editor.Session) (string, error) {
				next, added, err := editor.AddStep(session.Steps(), step, editor.AddOptions{
					ID:        id,
					DependsOn: dependsOn,
					NoChain:   noChain,
				})
				if err != nil {
					return "", err
				}
				session.Apply(next)

				summary := fmt.Sprintf("Added step %q", added.ID)
				if len(added.DependsOn) > 0 {
					summary += fmt.Sprintf(" (depends on %s)", strings.Join(added.DependsOn, ", "))
				}
				return summary, nil
			})
			if err != nil {
				return err
			}
			return ctx.emitDraftEdit(cmd, draft, message, true)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Reference a job preset by name")
	cmd.Flags().StringVar(&workflow, "workflow", "", "Reference a pipeline preset by name")
	cmd.Flags().StringVar(&processor, "processor", "", "Inline processor type")
	cmd.Flags().StringVar(&config, "config", "", "Inline processor config as JSON")
	cmd.Flags().StringVar(&configFile, "config-file", "", "Inline processor config from a JSON file")
	cmd.Flags().StringVar(&id, "id", "", "Explicit step id (generated from the name when omitted)")
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "Dependency step ids (overrides chaining)")
	cmd.Flags().BoolVar(&noChain, "no-chain", false, "Start with no dependencies instead of chaining")

	return cmd
}

func newDraftRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <draft> <step-id>",
		Short: "Remove a step, bridging its dependents to its dependencies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, message, err := ctx.updateDraft(cmd, args[0], store.EditOpRemove, func(_ *store.Draft, session *editor.Session) (string, error) {
				next, err := editor.RemoveStep(session.Steps(), args[1])
				if err != nil {
					return "", err
				}
				session.Apply(next)
				return fmt.Sprintf("Removed step %q", args[1]), nil
			})
			if err != nil {
				return err
			}
			return ctx.emitDraftEdit(cmd, draft, message, true)
		},
	}
}

func newDraftConnectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <draft> <source> <target>",
		Short: "Add a dependency edge from source to target",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, message, err := ctx.updateDraft(cmd, args[0], store.EditOpConnect, func(_ *store.Draft, session *editor.Session) (string, error) {
				steps := session.Steps()
				next := editor.Connect(steps, args[1], args[2])
				if len(editor.Edges(next)) == len(editor.Edges(steps)) {
					return "", errNoChange
				}
				session.Apply(next)
				return fmt.Sprintf("Connected %s -> %s", args[1], args[2]), nil
			})
			if errors.Is(err, errNoChange) {
				return ctx.emitDraftEdit(cmd, draft, "No change.", false)
			}
			if err != nil {
				return err
			}
			return ctx.emitDraftEdit(cmd, draft, message, false)
		},
	}
}

func newDraftDisconnectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <draft> <source> <target>",
		Short: "Remove the dependency edge from source to target",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, message, err := ctx.updateDraft(cmd, args[0], store.EditOpDisconnect, func(_ *store.Draft, session *editor.Session) (string, error) {
				steps := session.Steps()
				next := editor.Disconnect(steps, args[1], args[2])
				if len(editor.Edges(next)) == len(editor.Edges(steps)) {
					return "", errNoChange
				}
				session.Apply(next)
				return fmt.Sprintf("Disconnected %s -> %s", args[1], args[2]), nil
			})
			if errors.Is(err, errNoChange) {
				return ctx.emitDraftEdit(cmd, draft, "No change.", false)
			}
			if err != nil {
				return err
			}
			return ctx.emitDraftEdit(cmd, draft, message, false)
		},
	}
}

func newDraftReorderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <draft> <step-id> <index>",
		Short: "Move a step to a new list position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("index must be an integer: %q", args[2])
			}
			draft, message, err := ctx.updateDraft(cmd, args[0], store.EditOpReorder, func(_ *store.Draft, session *editor.Session) (string, error) {
				next, err := editor.Reorder(session.Steps(), args[1], index)
				if err != nil {
					return "", err
				}
				session.Apply(next)

				final := 0
				for i, s := range next {
					if s.ID == args[1] {
						final = i
						break
					}
				}
				return fmt.Sprintf("Moved step %q to position %d", args[1], final), nil
			})
			if err != nil {
				return err
			}
			return ctx.emitDraftEdit(cmd, draft, message, true)
		},
	}
}

func newDraftEditCommand(ctx *commandContext) *cobra.Command {
	var newID string
	var preset string
	var workflow string
	var processor string
	var config string
	var configFile string
	var dependsOn []string
	var clearDeps bool

	cmd := &cobra.Command{
		Use:   "edit <draft> <step-id>",
		Short: "Edit a step in place",
		Long: `Edit a step in place. Unset flags leave the corresponding part of the step
alone. Renaming with --id rewrites every dependency reference to the step, so
nothing dangles. --depends-on replaces the dependency list wholesale; unknown
ids, duplicates, and self references are dropped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()

			draft, message, err := ctx.updateDraft(cmd, args[0], store.EditOpEdit, func(_ *store.Draft, session *editor.Session) (string, error) {
				steps := session.Steps()
				var current schema.DagStepDefinition
				found := false
				for _, s := range steps {
					if s.ID == args[1] {
						current = s
						found = true
						break
					}
				}
				if !found {
					return "", schema.NewErrorf(schema.ErrCodeNotFound, "step %q does not exist", args[1])
				}

				repl := current.Clone()
				if flags.Changed("id") {
					repl.ID = newID
				}

				switch {
				case flags.Changed("preset"):
					repl.Step = schema.PresetStep(preset)
				case flags.Changed("workflow"):
					repl.Step = schema.WorkflowStep(workflow)
				case flags.Changed("processor"):
					cfg, err := readConfigFlag(config, configFile)
					if err != nil {
						return "", err
					}
					if err := ctx.schemas().Validate(processor, cfg); err != nil {
						return "", err
					}
					repl.Step = schema.InlineStep(processor, cfg)
				case flags.Changed("config") || flags.Changed("config-file"):
					if !current.Step.HasInlineConfig() {
						return "", schema.NewError(schema.ErrCodeInvalidStep,
							"only inline steps carry a config; pass --processor to convert").WithStep(args[1])
					}
					cfg, err := readConfigFlag(config, configFile)
					if err != nil {
						return "", err
					}
					if err := ctx.schemas().Validate(current.Step.Processor, cfg); err != nil {
						return "", err
					}
					repl.Step = schema.InlineStep(current.Step.Processor, cfg)
				}

				if flags.Changed("depends-on") {
					repl.DependsOn = dependsOn
				}
				if clearDeps {
					repl.DependsOn = nil
				}

				next, err := editor.ReplaceStep(steps, args[1], repl)
				if err != nil {
					return "", err
				}
				session.Apply(next)
				return fmt.Sprintf("Updated step %q", repl.ID), nil
			})
			if err != nil {
				return err
			}
			return ctx.emitDraftEdit(cmd, draft, message, true)
		},
	}

	cmd.Flags().StringVar(&newID, "id", "", "Rename the step; references are rewritten")
	cmd.Flags().StringVar(&preset, "preset", "", "Replace the payload with a job preset reference")
	cmd.Flags().StringVar(&workflow, "workflow", "", "Replace the payload with a pipeline preset reference")
	cmd.Flags().StringVar(&processor, "processor", "", "Replace the payload with an inline processor")
	cmd.Flags().StringVar(&config, "config", "", "Inline processor config as JSON")
	cmd.Flags().StringVar(&configFile, "config-file", "", "Inline processor config from a JSON file")
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "Replace the dependency list")
	cmd.Flags().BoolVar(&clearDeps, "clear-deps", false, "Remove all dependencies")

	return cmd
}

func newDraftDetachCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <draft> <step-id>",
		Short: "Convert a preset step into an independent inline step",
		Long: `Convert a preset step into an independent inline step. The preset's
processor and configuration are resolved from the backend and copied into the
step at the moment of detachment; later edits to the preset do not propagate.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}

			draft, message, err := ctx.updateDraft(cmd, args[0], store.EditOpDetach, func(_ *store.Draft, session *editor.Session) (string, error) {
				steps := session.Steps()
				var current schema.DagStepDefinition
				found := false
				for _, s := range steps {
					if s.ID == args[1] {
						current = s
						found = true
						break
					}
				}
				if !found {
					return "", schema.NewErrorf(schema.ErrCodeNotFound, "step %q does not exist", args[1])
				}
				if current.Step.Kind != schema.StepKindPreset {
					return "", schema.NewErrorf(schema.ErrCodeInvalidStep, "only preset steps can be detached").WithStep(args[1])
				}

				resolved, err := resolveJobPreset(cmd.Context(), api, current.Step.Name)
				if err != nil {
					return "", err
				}
				next, err := editor.DetachStep(steps, args[1], resolved.Processor, json.RawMessage(resolved.Config))
				if err != nil {
					return "", err
				}
				session.Apply(next)
				return fmt.Sprintf("Detached %q into an inline %s step", args[1], resolved.Processor), nil
			})
			if err != nil {
				return err
			}
			return ctx.emitDraftEdit(cmd, draft, message, true)
		},
	}
}

func newDraftMoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "move <draft> <step-id> <x> <y>",
		Short: "Record a manual graph position for a step",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("x must be a number: %q", args[2])
			}
			y, err := strconv.ParseFloat(args[3], 64)
			if err != nil {
				return fmt.Errorf("y must be a number: %q", args[3])
			}

			draft, message, err := ctx.updateDraft(cmd, args[0], store.EditOpMove, func(_ *store.Draft, session *editor.Session) (string, error) {
				if !session.MoveNode(args[1], x, y) {
					return "", schema.NewErrorf(schema.ErrCodeNotFound, "step %q does not exist", args[1])
				}
				return fmt.Sprintf("Moved %s to (%g, %g)", args[1], x, y), nil
			})
			if err != nil {
				return err
			}
			return ctx.emitDraftEdit(cmd, draft, message, false)
		},
	}
}

func newDraftLayoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "layout <draft>",
		Short: "Recompute every node position from the dependency structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, message, err := ctx.updateDraft(cmd, args[0], store.EditOpLayout, func(d *store.Draft, session *editor.Session) (string, error) {
				session.Relayout()
				return fmt.Sprintf("Laid out %d nodes", len(d.Steps)), nil
			})
			if err != nil {
				return err
			}
			return ctx.emitDraftEdit(cmd, draft, message, false)
		},
	}
}

func newDraftHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <draft>",
		Short: "List a draft's recent edits, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(st *store.LibSQLStore) error {
				draft, err := resolveDraft(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}
				edits, err := store.NewEditLog(st).ListEdits(cmd.Context(), draft.ID, limit)
				if err != nil {
					return err
				}

				payload := make([]editEntry, 0, len(edits))
				for _, e := range edits {
					payload = append(payload, editEntry{
						Sequence:  e.Sequence,
						Op:        e.Op,
						Summary:   e.Summary,
						CreatedAt: e.CreatedAt,
					})
				}

				return ctx.emit(cmd, payload, func(out io.Writer) {
					if len(edits) == 0 {
						fmt.Fprintln(out, "No recorded edits.")
						return
					}
					rows := make([][]string, 0, len(edits))
					for _, e := range edits {
						rows = append(rows, []string{
							strconv.FormatInt(e.Sequence, 10),
							e.Op,
							e.Summary,
							formatDisplayTime(e.CreatedAt),
						})
					}
					fmt.Fprintln(out, renderTable(out,
						[]string{"Seq", "Op", "Summary", "When"},
						rows,
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
					))
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")

	return cmd
}

func newDraftUndoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <draft>",
		Short: "Revert the most recent edit",
		Long: `Revert the most recent edit. Every edit records the draft state it
replaced; undo restores that state and drops the journal entry, so repeated
undos walk back through the history. Saves to the backend are not undone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var draft *store.Draft
			var undone *store.EditEvent
			err := ctx.withStore(cmd, func(st *store.LibSQLStore) error {
				var err error
				draft, err = resolveDraft(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}

				journal := store.NewEditLog(st)
				undone, err = journal.LatestEdit(cmd.Context(), draft.ID)
				if err != nil {
					return err
				}

				laidOut := undone.LaidOut
				dirty := undone.Dirty
				if err := st.UpdateDraft(cmd.Context(), draft.ID, store.DraftUpdate{
					Steps:     undone.Steps,
					Positions: undone.Positions,
					LaidOut:   &laidOut,
					Dirty:     &dirty,
				}); err != nil {
					return err
				}
				if err := journal.DeleteEdit(cmd.Context(), draft.ID, undone.Sequence); err != nil {
					return err
				}

				draft.Steps = undone.Steps
				draft.Positions = undone.Positions
				draft.LaidOut = laidOut
				draft.Dirty = dirty
				draft.UpdatedAt = time.Now().UTC()
				return nil
			})
			if err != nil {
				return err
			}
			return ctx.emitDraftEdit(cmd, draft,
				fmt.Sprintf("Undid edit #%d: %s", undone.Sequence, undone.Summary), true)
		},
	}
}

// editEntry is the JSON row of the history listing.
type editEntry struct {
	Sequence  int64     `json:"sequence"`
	Op        string    `json:"op"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

func newDraftValidateCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "validate <draft>",
		Short: "Validate a draft's structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var report *schema.ValidateReport
			err := ctx.withStore(cmd, func(st *store.LibSQLStore) error {
				draft, err := resolveDraft(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}
				report, err = runValidation(ctx, cmd, draft.Name, draft.Steps, offline)
				return err
			})
			if err != nil {
				return err
			}
			return emitReport(ctx, cmd, report)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Validate locally without calling the backend")

	return cmd
}

func newDraftSaveCommand(ctx *commandContext) *cobra.Command {
	var name string
	var description string

	cmd := &cobra.Command{
		Use:   "save <draft>",
		Short: "Save a draft to the backend as a pipeline preset",
		Long: `Save a draft to the backend as a pipeline preset. A draft opened from a
preset updates it; a fresh draft creates one and remembers the new preset id.
When the save fails the draft keeps its steps and stays dirty for a retry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}

			var preset *client.PipelinePreset
			var draftID string
			err = ctx.withStore(cmd, func(st *store.LibSQLStore) error {
				draft, err := resolveDraft(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}
				draftID = draft.ID

				saveName := draft.Name
				if cmd.Flags().Changed("name") {
					saveName = name
				}
				saveDesc := draft.Description
				if cmd.Flags().Changed("description") {
					saveDesc = description
				}

				req := client.SavePipelineRequest{
					Name:        saveName,
					Description: saveDesc,
					Dag:         schema.NewDagPipelineDefinition(saveName, draft.Steps),
				}
				if draft.RemoteID == "" {
					preset, err = api.CreatePipelinePreset(cmd.Context(), req)
				} else {
					preset, err = api.UpdatePipelinePreset(cmd.Context(), draft.RemoteID, req)
				}
				if err != nil {
					// The draft is untouched and stays dirty for a retry.
					return err
				}

				dirty := false
				update := store.DraftUpdate{RemoteID: &preset.ID, Dirty: &dirty}
				if cmd.Flags().Changed("name") {
					update.Name = &saveName
				}
				if cmd.Flags().Changed("description") {
					update.Description = &saveDesc
				}
				return st.UpdateDraft(cmd.Context(), draft.ID, update)
			})
			if err != nil {
				return err
			}

			payload := struct {
				Preset  *client.PipelinePreset `json:"preset"`
				DraftID string                 `json:"draft_id"`
				Dirty   bool                   `json:"dirty"`
			}{preset, draftID, false}

			return ctx.emit(cmd, payload, func(out io.Writer) {
				fmt.Fprintf(out, "Saved pipeline preset %q (%s)\n", preset.Name, preset.ID)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Preset name (defaults to the draft name)")
	cmd.Flags().StringVar(&description, "description", "", "Preset description (defaults to the draft description)")

	return cmd
}

// readConfigFlag loads an inline config from --config or --config-file.
// Returns nil when neither is set; syntax is checked later by the schema
// registry.
func readConfigFlag(config, configFile string) (json.RawMessage, error) {
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", configFile, err)
		}
		return json.RawMessage(bytes.TrimSpace(data)), nil
	}
	if config != "" {
		return json.RawMessage(config), nil
	}
	return nil, nil
}

// resolveJobPreset finds a job preset by exact name. The listing search is a
// substring match, so the name is re-checked against each hit.
func resolveJobPreset(ctx context.Context, api *client.Client, name string) (*client.JobPreset, error) {
	list, err := api.ListJobPresets(ctx, client.JobPresetFilter{Search: name})
	if err != nil {
		return nil, err
	}
	for _, p := range list.Presets {
		if p.Name == name {
			match := p
			return &match, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "job preset %q not found on the backend", name)
}
