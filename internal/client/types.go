package client

import (
	"net/url"
	"strconv"
	"time"

	"github.com/srec-tools/pipectl/pkg/schema"
)

// JobPreset is a reusable single-processor configuration stored by the
// backend. Config holds the processor configuration as a JSON document.
type JobPreset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Processor   string    `json:"processor"`
	Config      string    `json:"config"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobPresetList is one page of job presets plus the known categories.
type JobPresetList struct {
	Presets    []JobPreset `json:"presets"`
	Categories []string    `json:"categories"`
	Total      int64       `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

// JobPresetFilter narrows a job preset listing.
type JobPresetFilter struct {
	Category  string
	Processor string
	Search    string
	Limit     int
	Offset    int
}

func (f JobPresetFilter) values() url.Values {
	params := url.Values{}
	if f.Category != "" {
		params.Set("category", f.Category)
	}
	if f.Processor != "" {
		params.Set("processor", f.Processor)
	}
	if f.Search != "" {
		params.Set("search", f.Search)
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		params.Set("offset", strconv.Itoa(f.Offset))
	}
	return params
}

// PipelinePreset is a saved pipeline definition.
type PipelinePreset struct {
	ID          string                       `json:"id"`
	Name        string                       `json:"name"`
	Description string                       `json:"description,omitempty"`
	Dag         schema.DagPipelineDefinition `json:"dag"`
	CreatedAt   time.Time                    `json:"created_at"`
	UpdatedAt   time.Time                    `json:"updated_at"`
}

// PipelinePresetList is one page of pipeline presets.
type PipelinePresetList struct {
	Presets []PipelinePreset `json:"presets"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// PipelinePresetFilter narrows a pipeline preset listing.
type PipelinePresetFilter struct {
	Search string
	Limit  int
	Offset int
}

func (f PipelinePresetFilter) values() url.Values {
	params := url.Values{}
	if f.Search != "" {
		params.Set("search", f.Search)
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		params.Set("offset", strconv.Itoa(f.Offset))
	}
	return params
}

// SavePipelineRequest creates or replaces a pipeline preset.
type SavePipelineRequest struct {
	Name        string                       `json:"name"`
	Description string                       `json:"description,omitempty"`
	Dag         schema.DagPipelineDefinition `json:"dag"`
}

// PresetPreview shows the jobs a pipeline preset would enqueue.
type PresetPreview struct {
	PresetID       string       `json:"preset_id"`
	PresetName     string       `json:"preset_name"`
	Jobs           []PreviewJob `json:"jobs"`
	ExecutionOrder []string     `json:"execution_order"`
}

// PreviewJob is one step of a preset preview.
type PreviewJob struct {
	StepID    string   `json:"step_id"`
	Processor string   `json:"processor"`
	DependsOn []string `json:"depends_on"`
	IsRoot    bool     `json:"is_root"`
	IsLeaf    bool     `json:"is_leaf"`
}

type validateDagRequest struct {
	Dag schema.DagPipelineDefinition `json:"dag"`
}

type cloneJobPresetRequest struct {
	NewName string `json:"new_name"`
}
