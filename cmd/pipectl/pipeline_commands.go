package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srec-tools/pipectl/internal/client"
	"github.com/srec-tools/pipectl/internal/dag"
	"github.com/srec-tools/pipectl/internal/render"
	"github.com/srec-tools/pipectl/pkg/schema"
)

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage saved pipeline presets on the backend",
	}

	cmd.AddCommand(newPipelineListCommand(ctx))
	cmd.AddCommand(newPipelineShowCommand(ctx))
	cmd.AddCommand(newPipelineValidateCommand(ctx))
	cmd.AddCommand(newPipelinePreviewCommand(ctx))
	cmd.AddCommand(newPipelineDeleteCommand(ctx))

	return cmd
}

func newPipelineListCommand(ctx *commandContext) *cobra.Command {
	var search string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipeline presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			list, err := api.ListPipelinePresets(cmd.Context(), client.PipelinePresetFilter{
				Search: search,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}

			return ctx.emit(cmd, list, func(out io.Writer) {
				if len(list.Presets) == 0 {
					fmt.Fprintln(out, "No pipeline presets found.")
					return
				}
				rows := make([][]string, 0, len(list.Presets))
				for _, p := range list.Presets {
					rows = append(rows, []string{
						p.ID, p.Name, strconv.Itoa(len(p.Dag.Steps)), formatDisplayTime(p.UpdatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Name", "Steps", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintf(out, "%d of %d presets\n", len(list.Presets), list.Total)
			})
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Filter by name or description substring")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum presets to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Presets to skip before the first result")

	return cmd
}

func newPipelineShowCommand(ctx *commandContext) *cobra.Command {
	var view string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one pipeline preset",
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

			return ctx.emit(cmd, preset, func(out io.Writer) {
				writePipelineView(out, view, preset.Name, preset.Dag.Steps, func(w io.Writer) {
					fmt.Fprintf(w, "ID:      %s\n", preset.ID)
					fmt.Fprintf(w, "Name:    %s\n", preset.Name)
					if preset.Description != "" {
						fmt.Fprintf(w, "Desc:    %s\n", preset.Description)
					}
					fmt.Fprintf(w, "Updated: %s\n", formatDisplayTime(preset.UpdatedAt))
				})
			})
		},
	}

	cmd.Flags().StringVar(&view, "view", "table", "View: table, graph, mermaid, or dot")

	return cmd
}

func newPipelineValidateCommand(ctx *commandContext) *cobra.Command {
	var file string
	var offline bool
	var name string

	cmd := &cobra.Command{
		Use:   "validate [id]",
		Short: "Validate a pipeline's structure",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var steps []schema.DagStepDefinition
			pipelineName := name

			switch {
			case file != "":
				fileName, fileSteps, err := readStepsFile(file)
				if err != nil {
					return err
				}
				steps = fileSteps
				if pipelineName == "" {
					pipelineName = fileName
				}
			case len(args) == 1:
				api, err := ctx.apiClient()
				if err != nil {
					return err
				}
				preset, err := api.GetPipelinePreset(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				steps = preset.Dag.Steps
				if pipelineName == "" {
					pipelineName = preset.Name
				}
			default:
				return errors.New("provide a preset id or --file")
			}
			if pipelineName == "" {
				pipelineName = "pipeline"
			}

			report, err := runValidation(ctx, cmd, pipelineName, steps, offline)
			if err != nil {
				return err
			}
			return emitReport(ctx, cmd, report)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the step array from a JSON file instead of the backend")
	cmd.Flags().BoolVar(&offline, "offline", false, "Validate locally without calling the backend")
	cmd.Flags().StringVar(&name, "name", "", "Pipeline name for the validation request")

	return cmd
}

func newPipelinePreviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <id>",
		Short: "Show the jobs a pipeline preset would enqueue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			preview, err := api.PreviewPipelinePreset(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return ctx.emit(cmd, preview, func(out io.Writer) {
				fmt.Fprintf(out, "Preset: %s (%s)\n", preview.PresetName, preview.PresetID)
				rows := make([][]string, 0, len(preview.Jobs))
				for _, job := range preview.Jobs {
					rows = append(rows, []string{
						job.StepID,
						job.Processor,
						strings.Join(job.DependsOn, ", "),
						boolMark(job.IsRoot),
						boolMark(job.IsLeaf),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Step", "Processor", "Depends On", "Root", "Leaf"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				if len(preview.ExecutionOrder) > 0 {
					fmt.Fprintf(out, "Execution order: %s\n", strings.Join(preview.ExecutionOrder, " -> "))
				}
			})
		},
	}
}

func newPipelineDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a pipeline preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := api.DeletePipelinePreset(cmd.Context(), args[0]); err != nil {
				return err
			}
			return ctx.emit(cmd, map[string]string{"deleted": args[0]}, func(out io.Writer) {
				fmt.Fprintf(out, "Deleted pipeline preset %s\n", args[0])
			})
		},
	}
}

// writePipelineView renders steps in the requested view. The header callback
// prints identity lines and only applies to the table view.
func writePipelineView(out io.Writer, view, title string, steps []schema.DagStepDefinition, header func(io.Writer)) {
	switch view {
	case "graph", "mermaid", "dot":
		model, err := render.Build(title, steps, nil)
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
		if header != nil {
			header(out)
		}
		writeStepTable(out, steps)
	}
}

// writeStepTable prints the step summary rows: one row per step in array
// order with the DAG depth in the last column.
func writeStepTable(out io.Writer, steps []schema.DagStepDefinition) {
	if len(steps) == 0 {
		fmt.Fprintln(out, "No steps.")
		return
	}
	rows := make([][]string, 0, len(steps))
	for _, row := range render.Summarize(steps) {
		rows = append(rows, []string{
			row.ID,
			string(row.Kind),
			row.Name,
			strings.Join(row.DependsOn, ", "),
			strconv.Itoa(row.Level),
		})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"ID", "Kind", "Name", "Depends On", "Level"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
}

// runValidation produces a structural report for the steps, either from the
// local analyzer or from the backend validation endpoint.
func runValidation(ctx *commandContext, cmd *cobra.Command, name string, steps []schema.DagStepDefinition, offline bool) (*schema.ValidateReport, error) {
	if offline {
		analysis := dag.Analyze(steps)
		return &analysis.Report, nil
	}
	api, err := ctx.apiClient()
	if err != nil {
		return nil, err
	}
	report, err := api.ValidatePipeline(cmd.Context(), schema.NewDagPipelineDefinition(name, steps))
	if err != nil {
		var perr *schema.PipelineError
		if errors.As(err, &perr) && (perr.Code == schema.ErrCodeTransport || perr.Code == schema.ErrCodeUnavailable) {
			return nil, fmt.Errorf("validation service unavailable (try --offline): %w", err)
		}
		return nil, err
	}
	return report, nil
}

// emitReport prints the report and converts an invalid result into a
// non-zero exit. The full report is always emitted first; the trailing
// error only sets the exit code.
func emitReport(ctx *commandContext, cmd *cobra.Command, report *schema.ValidateReport) error {
	if err := ctx.emit(cmd, report, func(out io.Writer) {
		writeReport(out, report)
	}); err != nil {
		return err
	}
	if !report.Valid {
		return schema.NewError(schema.ErrCodeValidation, "pipeline is invalid")
	}
	return nil
}

// writeReport prints a validation report in the human form.
func writeReport(out io.Writer, report *schema.ValidateReport) {
	if report.Valid {
		fmt.Fprintln(out, "Pipeline is valid.")
	} else {
		fmt.Fprintln(out, "Pipeline is INVALID.")
	}
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	if len(report.RootSteps) > 0 {
		fmt.Fprintf(out, "Roots:  %s\n", strings.Join(report.RootSteps, ", "))
	}
	if len(report.LeafSteps) > 0 {
		fmt.Fprintf(out, "Leaves: %s\n", strings.Join(report.LeafSteps, ", "))
	}
	fmt.Fprintf(out, "Depth:  %d\n", report.MaxDepth)
}

// readStepsFile loads a step array from a JSON file. The file holds either a
// bare step array or a full definition object with name and steps.
func readStepsFile(path string) (string, []schema.DagStepDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var steps []schema.DagStepDefinition
		if err := json.Unmarshal(trimmed, &steps); err != nil {
			return "", nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return "", steps, nil
	}
	var def schema.DagPipelineDefinition
	if err := json.Unmarshal(trimmed, &def); err != nil {
		return "", nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return def.Name, def.Steps, nil
}

func boolMark(v bool) string {
	if v {
		return "yes"
	}
	return ""
}
