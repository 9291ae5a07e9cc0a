// Package client talks to the srec backend's pipeline REST API. All
// responses are decoded into local types; error bodies are mapped onto
// schema.PipelineError so callers can branch on the code.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/srec-tools/pipectl/pkg/schema"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4096
)

// Config describes the backend connection.
type Config struct {
	// BaseURL is the server root, e.g. "http://127.0.0.1:12555".
	BaseURL string
	// HTTPClient overrides the default 30s-timeout client.
	HTTPClient *http.Client
	// Tokens supplies bearer tokens. When nil, requests go out
	// unauthenticated.
	Tokens *TokenManager
}

// Client wraps the backend pipeline REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  *TokenManager
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, schema.NewError(schema.ErrCodeTransport, "server base url is required")
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTransport, "parse server base url").WithCause(err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{baseURL: baseURL, http: httpClient, tokens: cfg.Tokens}, nil
}

// ValidatePipeline submits a pipeline definition to the backend validator
// and returns its full report. A report with Valid=false is not an error.
func (c *Client) ValidatePipeline(ctx context.Context, def schema.DagPipelineDefinition) (*schema.ValidateReport, error) {
	var report schema.ValidateReport
	if err := c.do(ctx, http.MethodPost, "api/pipeline/validate", nil, validateDagRequest{Dag: def}, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListPipelinePresets returns one page of saved pipeline presets.
func (c *Client) ListPipelinePresets(ctx context.Context, filter PipelinePresetFilter) (*PipelinePresetList, error) {
	var list PipelinePresetList
	if err := c.do(ctx, http.MethodGet, "api/pipeline/presets", filter.values(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetPipelinePreset fetches a single pipeline preset by id.
func (c *Client) GetPipelinePreset(ctx context.Context, id string) (*PipelinePreset, error) {
	var preset PipelinePreset
	if err := c.do(ctx, http.MethodGet, "api/pipeline/presets/"+url.PathEscape(id), nil, nil, &preset); err != nil {
		return nil, err
	}
	return &preset, nil
}

// CreatePipelinePreset stores a new pipeline preset.
func (c *Client) CreatePipelinePreset(ctx context.Context, req SavePipelineRequest) (*PipelinePreset, error) {
	var preset PipelinePreset
	if err := c.do(ctx, http.MethodPost, "api/pipeline/presets", nil, req, &preset); err != nil {
		return nil, err
	}
	return &preset, nil
}

// UpdatePipelinePreset replaces an existing pipeline preset.
func (c *Client) UpdatePipelinePreset(ctx context.Context, id string, req SavePipelineRequest) (*PipelinePreset, error) {
	var preset PipelinePreset
	if err := c.do(ctx, http.MethodPut, "api/pipeline/presets/"+url.PathEscape(id), nil, req, &preset); err != nil {
		return nil, err
	}
	return &preset, nil
}

// DeletePipelinePreset removes a pipeline preset.
func (c *Client) DeletePipelinePreset(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api/pipeline/presets/"+url.PathEscape(id), nil, nil, nil)
}

// PreviewPipelinePreset asks the backend which jobs a preset would enqueue
// and in what order.
func (c *Client) PreviewPipelinePreset(ctx context.Context, id string) (*PresetPreview, error) {
	var preview PresetPreview
	if err := c.do(ctx, http.MethodGet, "api/pipeline/presets/"+url.PathEscape(id)+"/preview", nil, nil, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// ListJobPresets returns one page of job presets.
func (c *Client) ListJobPresets(ctx context.Context, filter JobPresetFilter) (*JobPresetList, error) {
	var list JobPresetList
	if err := c.do(ctx, http.MethodGet, "api/job/presets", filter.values(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetJobPreset fetches a single job preset by id.
func (c *Client) GetJobPreset(ctx context.Context, id string) (*JobPreset, error) {
	var preset JobPreset
	if err := c.do(ctx, http.MethodGet, "api/job/presets/"+url.PathEscape(id), nil, nil, &preset); err != nil {
		return nil, err
	}
	return &preset, nil
}

// CloneJobPreset duplicates a job preset under a new name.
func (c *Client) CloneJobPreset(ctx context.Context, id, newName string) (*JobPreset, error) {
	var preset JobPreset
	path := "api/job/presets/" + url.PathEscape(id) + "/clone"
	if err := c.do(ctx, http.MethodPost, path, nil, cloneJobPresetRequest{NewName: newName}, &preset); err != nil {
		return nil, err
	}
	return &preset, nil
}

// do executes one API call. When the server answers 401 and a token manager
// is present, the token is refreshed and the call retried once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return schema.NewError(schema.ErrCodeTransport, "encode request body").WithCause(err)
		}
	}

	status, err := c.attempt(ctx, method, path, query, payload, out)
	if status != http.StatusUnauthorized || c.tokens == nil {
		return err
	}

	if _, rerr := c.tokens.Refresh(ctx); rerr != nil {
		return err
	}
	_, err = c.attempt(ctx, method, path, query, payload, out)
	return err
}

func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, payload []byte, out any) (int, error) {
	endpoint := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeTransport, "build request").WithCause(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeTransport, "%s %s failed", method, path).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, decodeAPIError(resp)
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, schema.NewError(schema.ErrCodeTransport, "decode response").WithCause(err)
	}
	return resp.StatusCode, nil
}

// apiErrorBody is the backend's structured error response.
type apiErrorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// decodeAPIError maps an error response onto a PipelineError, falling back
// to the raw body or HTTP status when the body is not the structured form.
func decodeAPIError(resp *http.Response) *schema.PipelineError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		perr := schema.NewError(mapErrorCode(resp.StatusCode, apiErr.Code), apiErr.Message)
		if len(apiErr.Details) > 0 {
			var details map[string]any
			if err := json.Unmarshal(apiErr.Details, &details); err == nil {
				perr = perr.WithDetails(details)
			}
		}
		return perr
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return schema.NewError(mapErrorCode(resp.StatusCode, ""), msg)
}

// mapErrorCode translates a backend error code, or failing that an HTTP
// status, into a local error code.
func mapErrorCode(status int, code string) string {
	switch code {
	case "VALIDATION_ERROR", "BAD_REQUEST":
		return schema.ErrCodeValidation
	case "NOT_FOUND":
		return schema.ErrCodeNotFound
	case "CONFLICT":
		return schema.ErrCodeConflict
	case "UNAUTHORIZED", "FORBIDDEN":
		return schema.ErrCodeUnauthorized
	case "SERVICE_UNAVAILABLE":
		return schema.ErrCodeUnavailable
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return schema.ErrCodeValidation
	case http.StatusNotFound:
		return schema.ErrCodeNotFound
	case http.StatusConflict:
		return schema.ErrCodeConflict
	case http.StatusUnauthorized, http.StatusForbidden:
		return schema.ErrCodeUnauthorized
	case http.StatusServiceUnavailable:
		return schema.ErrCodeUnavailable
	}
	return schema.ErrCodeTransport
}
