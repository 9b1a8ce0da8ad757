package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// Client talks to a running daemon over its HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the daemon listening on bind
// (host:port, as configured in paths.api_bind).
func NewClient(bind string) *Client {
	bind = strings.TrimSpace(bind)
	base := bind
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) error {
	var payload HealthResponse
	return c.get(ctx, "/api/health", &payload)
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var payload DaemonStatus
	if err := c.get(ctx, "/api/status", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SubmitFile streams a local audio file to the daemon for transcription.
func (c *Client) SubmitFile(ctx context.Context, filename, contentType string, data io.Reader, opts JobOptions) (*Session, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		var err error
		defer func() { _ = pw.CloseWithError(err) }()

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="audio"; filename=%q`, filename))
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		var part io.Writer
		part, err = writer.CreatePart(header)
		if err != nil {
			return
		}
		if _, err = io.Copy(part, data); err != nil {
			return
		}
		if opts.Language != "" {
			if err = writer.WriteField("language", opts.Language); err != nil {
				return
			}
		}
		if opts.Diarize {
			if err = writer.WriteField("diarize", "true"); err != nil {
				return
			}
		}
		err = writer.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/transcriptions", pr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var payload SubmitResponse
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return &payload.Session, nil
}

// SubmitURL asks the daemon to transcribe an already-hosted audio source.
func (c *Client) SubmitURL(ctx context.Context, sourceURL string, opts JobOptions) (*Session, error) {
	body, err := json.Marshal(SubmitURLRequest{
		URL:      sourceURL,
		Language: opts.Language,
		Diarize:  opts.Diarize,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/transcriptions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var payload SubmitResponse
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return &payload.Session, nil
}

// Cancel stops the active transcription, if any.
func (c *Client) Cancel(ctx context.Context) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/cancel", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	var payload CancelResponse
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return payload.Session, nil
}

// Sessions lists every stored session, newest first.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var payload SessionListResponse
	if err := c.get(ctx, "/api/sessions", &payload); err != nil {
		return nil, err
	}
	return payload.Sessions, nil
}

// Session fetches one session by id.
func (c *Client) Session(ctx context.Context, id string) (*Session, error) {
	var payload SessionResponse
	if err := c.get(ctx, "/api/sessions/"+url.PathEscape(id), &payload); err != nil {
		return nil, err
	}
	return &payload.Session, nil
}

// DeleteSession removes a session record.
func (c *Client) DeleteSession(ctx context.Context, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	var payload DeleteResponse
	if err := c.do(req, &payload); err != nil {
		return false, err
	}
	return payload.Removed, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("daemon request failed: %s", errorFromResponse(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorFromResponse(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(body) > 0 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			return payload.Error
		}
	}
	return resp.Status
}
