// Package remote is the HTTP facade over the repository analysis service.
// It normalizes all transport-level problems (network errors, timeouts,
// non-2xx responses, malformed bodies) into ErrUnavailable so that callers can
// tell a retryable outage apart from a well-formed "the job failed" status.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/repoinsight-dev/repoinsight/pkg/observability"
)

// ErrUnavailable wraps every transport-level failure. It is retryable on the
// next poll tick and never drives a session state transition.
var ErrUnavailable = errors.New("analysis service unavailable")

// AnalysisStatus is the remote vocabulary for analysis jobs.
type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisSuccess   AnalysisStatus = "success"
	AnalysisFailed    AnalysisStatus = "failed"
	AnalysisCancelled AnalysisStatus = "cancelled"
)

// QueryStatus is the remote vocabulary for query jobs.
type QueryStatus string

const (
	QueryPending QueryStatus = "pending"
	QuerySuccess QueryStatus = "success"
	QueryFailure QueryStatus = "failure"
	QueryRevoked QueryStatus = "revoked"
)

// JobRef is the opaque handle pair returned by the remote service.
// The task id identifies the submitted job; the session id is the correlation
// id threaded back on all subsequent calls.
type JobRef struct {
	SessionID string `json:"sessionId"`
	TaskID    string `json:"taskId"`
}

// AnalysisReport is the polled state of an analysis job.
type AnalysisReport struct {
	Status AnalysisStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// QueryReport is the polled state of a query job.
type QueryReport struct {
	Status QueryStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// Config holds remote client configuration.
type Config struct {
	// BaseURL is the analysis service endpoint.
	BaseURL string
	// Timeout bounds each request (default 30s).
	Timeout time.Duration
	// PollPerSecond caps outbound poll requests (default 20/s).
	PollPerSecond float64
	// PollBurst is the poll limiter burst (default 10).
	PollBurst int
}

// Client issues the remote operations. It is stateless apart from the
// connection pool and safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a remote client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perSecond := cfg.PollPerSecond
	if perSecond <= 0 {
		perSecond = 20
	}
	burst := cfg.PollBurst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// ProbeHealth reports whether the remote service answers. It never returns an
// error; transport failures map to false.
func (c *Client) ProbeHealth(ctx context.Context) bool {
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
	return err == nil
}

// SubmitAnalysis starts a new analysis job for a repository.
func (c *Client) SubmitAnalysis(ctx context.Context, repoURL string, embedding map[string]any) (JobRef, error) {
	body := map[string]any{"repo_url": repoURL}
	if len(embedding) > 0 {
		body["embedding_config"] = embedding
	}

	var ref JobRef
	if err := c.doJSON(ctx, http.MethodPost, "/repos/analyze", body, &ref); err != nil {
		return JobRef{}, err
	}
	if ref.SessionID == "" {
		return JobRef{}, fmt.Errorf("%w: analyze response missing session id", ErrUnavailable)
	}
	return ref, nil
}

// AnalysisStatus polls an analysis job by its correlation id.
func (c *Client) AnalysisStatus(ctx context.Context, sessionID string) (AnalysisReport, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return AnalysisReport{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rep AnalysisReport
	if err := c.doJSON(ctx, http.MethodGet, "/repos/status/"+sessionID, nil, &rep); err != nil {
		return AnalysisReport{}, err
	}
	switch rep.Status {
	case AnalysisPending, AnalysisSuccess, AnalysisFailed, AnalysisCancelled:
		return rep, nil
	}
	return AnalysisReport{}, fmt.Errorf("%w: unknown analysis status %q", ErrUnavailable, rep.Status)
}

// SubmitQuery starts a query job against an analyzed repository.
func (c *Client) SubmitQuery(ctx context.Context, sessionID, question string, llm map[string]any) (JobRef, error) {
	body := map[string]any{
		"session_id": sessionID,
		"question":   question,
	}
	if len(llm) > 0 {
		body["llm_config"] = llm
	}

	var ref JobRef
	if err := c.doJSON(ctx, http.MethodPost, "/repos/query", body, &ref); err != nil {
		return JobRef{}, err
	}
	if ref.TaskID == "" {
		return JobRef{}, fmt.Errorf("%w: query response missing task id", ErrUnavailable)
	}
	return ref, nil
}

// QueryStatus polls a query job by its task id.
func (c *Client) QueryStatus(ctx context.Context, taskID string) (QueryReport, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return QueryReport{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rep QueryReport
	if err := c.doJSON(ctx, http.MethodGet, "/repos/query/status/"+taskID, nil, &rep); err != nil {
		return QueryReport{}, err
	}
	switch rep.Status {
	case QueryPending, QuerySuccess, QueryFailure, QueryRevoked:
		return rep, nil
	}
	return QueryReport{}, fmt.Errorf("%w: unknown query status %q", ErrUnavailable, rep.Status)
}

// QueryResult fetches the answer for a completed query job. The remote service
// separates status polling from result retrieval, so this is only called after
// QueryStatus reports success.
func (c *Client) QueryResult(ctx context.Context, taskID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var out struct {
		Answer string `json:"answer"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/repos/query/result/"+taskID, nil, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

// CancelAnalysis asks the remote service to cancel an analysis job.
// Best effort: the caller resets local state regardless of the outcome.
func (c *Client) CancelAnalysis(ctx context.Context, sessionID string) bool {
	err := c.doJSON(ctx, http.MethodPost, "/repos/analyze/"+sessionID+"/cancel", nil, nil)
	return err == nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// doJSON issues one request and decodes the JSON response into out (if
// non-nil). Every failure path wraps ErrUnavailable.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	start := time.Now()
	err := c.do(ctx, method, path, in, out)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ObserveRemoteRequest(method+" "+routeLabel(path), outcome, time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned status %d", ErrUnavailable, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

// routeLabel collapses per-job path segments so metrics stay low-cardinality.
func routeLabel(path string) string {
	switch {
	case path == "/health" || path == "/repos/analyze" || path == "/repos/query":
		return path
	case len(path) > len("/repos/query/status/") && path[:len("/repos/query/status/")] == "/repos/query/status/":
		return "/repos/query/status/:id"
	case len(path) > len("/repos/query/result/") && path[:len("/repos/query/result/")] == "/repos/query/result/":
		return "/repos/query/result/:id"
	case len(path) > len("/repos/status/") && path[:len("/repos/status/")] == "/repos/status/":
		return "/repos/status/:id"
	case strings.HasPrefix(path, "/repos/analyze/") && strings.HasSuffix(path, "/cancel"):
		return "/repos/analyze/:id/cancel"
	default:
		return "other"
	}
}
