package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scribe/internal/session"
)

// SubmitOptions carries the transcription parameters sent with a job request.
type SubmitOptions struct {
	ModelID  string `json:"modelId"`
	Language string `json:"language,omitempty"`
	Diarize  bool   `json:"diarize,omitempty"`
}

// SubmitRequest is the job submission body. Exactly one of AudioData and
// AudioURL is populated on the wire; when both are set, staged wins and the
// inline field is dropped to avoid ambiguous requests.
type SubmitRequest struct {
	AudioData string        `json:"audioData,omitempty"`
	AudioURL  string        `json:"audioUrl,omitempty"`
	Options   SubmitOptions `json:"options"`
}

// JobStatus is one provider status response.
type JobStatus struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`

	// Raw preserves the full response body for the diagnostic log.
	Raw json.RawMessage `json:"-"`
}

// API defines the provider operations the orchestrator depends on.
type API interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Status(ctx context.Context, jobID string) (JobStatus, error)
}

// Client talks to the remote transcription provider.
type Client struct {
	baseURL    string
	apiKey     string
	modelID    string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a provider client.
func New(baseURL, apiKey, modelID string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("provider base url required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		modelID:    strings.TrimSpace(modelID),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ModelID returns the configured model identifier.
func (c *Client) ModelID() string {
	return c.modelID
}

// Submit creates a remote transcription job and returns its id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.AudioURL != "" {
		req.AudioData = ""
	}
	if req.AudioData == "" && req.AudioURL == "" {
		return "", errors.New("submit: payload required")
	}
	if req.Options.ModelID == "" {
		req.Options.ModelID = c.modelID
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcriptions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("submit job: %s", errorFromResponse(resp))
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode submission response: %w", err)
	}
	if payload.ID == "" {
		return "", errors.New("submission response missing job id")
	}
	return payload.ID, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (JobStatus, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobStatus{}, errors.New("job id required")
	}

	endpoint := c.baseURL + "/transcriptions/" + url.PathEscape(jobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return JobStatus{}, fmt.Errorf("build request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return JobStatus{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return JobStatus{}, fmt.Errorf("job status: %s", errorFromResponse(resp))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return JobStatus{}, fmt.Errorf("read status response: %w", err)
	}

	var status JobStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return JobStatus{}, fmt.Errorf("decode status response: %w", err)
	}
	status.Raw = raw
	return status, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// errorFromResponse extracts a structured error body, falling back to the raw
// status text.
func errorFromResponse(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(body) > 0 {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(body, &payload); jsonErr == nil {
			if payload.Error != "" {
				return payload.Error
			}
			if payload.Message != "" {
				return payload.Message
			}
		}
	}
	return resp.Status
}

// MapStatus converts a provider status string to the local session status.
// Unrecognized values map to processing so polling keeps going until the
// attempt bound fires.
func MapStatus(remote string) session.Status {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "starting", "queued", "pending":
		return session.StatusStarting
	case "processing", "running", "in_progress":
		return session.StatusProcessing
	case "succeeded", "success", "completed", "complete":
		return session.StatusSucceeded
	case "failed", "error":
		return session.StatusFailed
	case "canceled", "cancelled":
		return session.StatusCanceled
	default:
		return session.StatusProcessing
	}
}
