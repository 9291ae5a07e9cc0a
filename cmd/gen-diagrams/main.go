// gen-diagrams renders the example pipelines into docs/assets for README
// documentation. Run: go run ./cmd/gen-diagrams
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/srec-tools/pipectl/internal/render"
	"github.com/srec-tools/pipectl/pkg/schema"
)

func main() {
	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", outDir, err)
		os.Exit(1)
	}

	entries, err := filepath.Glob(filepath.Join("examples", "*.json"))
	if err != nil || len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no example pipelines under examples/")
		os.Exit(1)
	}

	for _, path := range entries {
		if err := renderExample(path, outDir); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func renderExample(path, outDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var def schema.DagPipelineDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	model, err := render.Build(def.Name, def.Steps, nil)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(path), ".json")

	ascii := render.RenderASCII(model)
	if err := os.WriteFile(filepath.Join(outDir, base+"-ascii.txt"), []byte(ascii), 0o644); err != nil {
		return err
	}
	fmt.Printf("=== %s (ASCII) ===\n%s\n", def.Name, ascii)

	mermaid := render.RenderMermaid(model)
	md := "```mermaid\n" + mermaid + "\n```\n"
	if err := os.WriteFile(filepath.Join(outDir, base+"-mermaid.md"), []byte(md), 0o644); err != nil {
		return err
	}
	fmt.Printf("=== %s (Mermaid) ===\n%s\n", def.Name, mermaid)

	// PNG needs the graphviz layout pass; failures are reported but do not
	// block the text renders.
	png, err := render.RenderImage(model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: image render: %v\n", path, err)
		return nil
	}
	pngPath := filepath.Join(outDir, base+".png")
	if err := os.WriteFile(pngPath, png, 0o644); err != nil {
		return err
	}
	fmt.Printf("=== %s (PNG) ===\nWritten: %s (%d bytes)\n", def.Name, pngPath, len(png))
	return nil
}
