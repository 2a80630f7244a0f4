package tracehub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the TraceHub server (e.g. "http://localhost:8080").
	BaseURL string

	// APIKey is the project api key, or the admin seed when acting on
	// behalf of a project.
	APIKey string

	// ProjectID optionally pins requests to one project via the
	// x-project-id header. Required when APIKey is the admin seed.
	ProjectID string

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the TraceHub API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	projectID string
	client    *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL or APIKey is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tracehub: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tracehub: APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		projectID: cfg.ProjectID,
		client:    httpClient,
	}, nil
}

// IngestTraces applies a trace batch: trace header merge plus span upserts.
// Replaying the same span idempotency keys is safe.
func (c *Client) IngestTraces(ctx context.Context, req TraceBatchRequest) (*TraceBatchResponse, error) {
	var resp TraceBatchResponse
	if err := c.post(ctx, "/api/v1/ingest/traces", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IngestEvents appends span events and re-projects the touched spans.
func (c *Client) IngestEvents(ctx context.Context, req EventBatchRequest) (*EventBatchResponse, error) {
	var resp EventBatchResponse
	if err := c.post(ctx, "/api/v1/ingest/spans", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateEval records an evaluation against a trace or span.
func (c *Client) CreateEval(ctx context.Context, req EvalCreateRequest) (*Evaluation, error) {
	var resp Evaluation
	if err := c.post(ctx, "/api/v1/evals", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Decide runs the judge and policy pipeline for a trace. Replaying the same
// idempotency key returns the stored decision without re-judging.
func (c *Client) Decide(ctx context.Context, req DecideRequest) (*DecideResponse, error) {
	var resp DecideResponse
	if err := c.post(ctx, "/api/v1/decide", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TraceListOptions are optional filters for ListTraces.
type TraceListOptions struct {
	Page        int
	PageSize    int
	Status      string
	Tag         string
	Model       string
	Environment string
	UserID      string
	SessionID   string
	Search      string
}

// ListTraces retrieves a filtered page of traces.
func (c *Client) ListTraces(ctx context.Context, opts *TraceListOptions) (*TracePage, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Page > 0 {
			params.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			params.Set("page_size", strconv.Itoa(opts.PageSize))
		}
		setIfNonEmpty(params, "status", opts.Status)
		setIfNonEmpty(params, "tag", opts.Tag)
		setIfNonEmpty(params, "model", opts.Model)
		setIfNonEmpty(params, "environment", opts.Environment)
		setIfNonEmpty(params, "user_id", opts.UserID)
		setIfNonEmpty(params, "session_id", opts.SessionID)
		setIfNonEmpty(params, "search", opts.Search)
	}

	path := "/api/v1/traces"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp TracePage
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTrace retrieves one trace with spans, timeline, evaluations, and
// decision history. The detail shape is left as a raw map so SDK versions
// stay forward-compatible with server-side additions.
func (c *Client) GetTrace(ctx context.Context, traceID uuid.UUID) (map[string]any, error) {
	var resp map[string]any
	if err := c.get(ctx, "/api/v1/traces/"+traceID.String(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetTraceStats retrieves status counts for the last N hours (1 to 168).
func (c *Client) GetTraceStats(ctx context.Context, lastHours int) (*TraceStats, error) {
	path := "/api/v1/traces/stats/overview"
	if lastHours > 0 {
		path += "?last_hours=" + strconv.Itoa(lastHours)
	}
	var resp TraceStats
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CaseListOptions are optional filters for ListCases.
type CaseListOptions struct {
	Page       int
	PageSize   int
	Status     string
	Assignee   string
	ReasonCode string
}

// ListCases retrieves a filtered page of escalation cases.
func (c *Client) ListCases(ctx context.Context, opts *CaseListOptions) (*CaseList, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Page > 0 {
			params.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			params.Set("page_size", strconv.Itoa(opts.PageSize))
		}
		setIfNonEmpty(params, "status", opts.Status)
		setIfNonEmpty(params, "assignee", opts.Assignee)
		setIfNonEmpty(params, "reason_code", opts.ReasonCode)
	}

	path := "/api/v1/cases"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp CaseList
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AcknowledgeCase transitions a case to acknowledged.
func (c *Client) AcknowledgeCase(ctx context.Context, caseID uuid.UUID, assignee string) (*Case, error) {
	return c.caseAction(ctx, caseID, "ack", assignee)
}

// ResolveCase transitions a case to resolved.
func (c *Client) ResolveCase(ctx context.Context, caseID uuid.UUID, assignee string) (*Case, error) {
	return c.caseAction(ctx, caseID, "resolve", assignee)
}

func (c *Client) caseAction(ctx context.Context, caseID uuid.UUID, action, assignee string) (*Case, error) {
	body := map[string]any{}
	if assignee != "" {
		body["assignee"] = assignee
	}
	var resp Case
	if err := c.post(ctx, "/api/v1/cases/"+caseID.String()+"/"+action, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has an invalid key.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func setIfNonEmpty(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("tracehub: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("tracehub: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tracehub: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	req.Header.Set("x-api-key", c.apiKey)
	if c.projectID != "" {
		req.Header.Set("x-project-id", c.projectID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tracehub: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("tracehub: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("tracehub: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
