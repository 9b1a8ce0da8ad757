package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"scribe/internal/api"
	"scribe/internal/logging"
	"scribe/internal/orchestrator"
	"scribe/internal/services/transcriber"
	"scribe/internal/testsupport"
)

type providerStub struct {
	mu      sync.Mutex
	submits int
}

func (p *providerStub) Submit(context.Context, transcriber.SubmitRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submits++
	return fmt.Sprintf("job-%d", p.submits), nil
}

func (p *providerStub) Status(context.Context, string) (transcriber.JobStatus, error) {
	return transcriber.JobStatus{Status: "succeeded", Output: json.RawMessage(`"done"`)}, nil
}

func newTestServer(t *testing.T) (*apiServer, *Daemon) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:0"
	store := testsupport.MustOpenStore(t, cfg)
	orch := orchestrator.New(cfg, store, &providerStub{}, nil, logging.NewNop())
	t.Cleanup(orch.Close)

	d, err := New(cfg, store, orch, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d.api, d
}

func TestAPIServerHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload api.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("unexpected health status %q", payload.Status)
	}
}

func TestAPIServerSubmitURL(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(api.SubmitURLRequest{URL: "https://audio.example/a.mp3"})
	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleSubmit(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var payload api.SubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if payload.Session.ID == "" || payload.Session.JobID == "" {
		t.Fatalf("expected session and job ids, got %+v", payload.Session)
	}
}

func TestAPIServerSubmitMultipartFile(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", "clip.mp3")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("fake audio bytes")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.WriteField("language", "en"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	srv.handleSubmit(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var payload api.SubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if payload.Session.Options.Language != "en" {
		t.Fatalf("expected language recorded, got %+v", payload.Session.Options)
	}
}

func TestAPIServerSubmitRejectsUnsupportedUpload(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("audio", "notes.txt")
	_, _ = part.Write([]byte("plain text"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	srv.handleSubmit(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "error") {
		t.Fatalf("expected error payload, got %s", w.Body.String())
	}
}

func TestAPIServerSessionsListAndDelete(t *testing.T) {
	srv, d := newTestServer(t)

	body, _ := json.Marshal(api.SubmitURLRequest{URL: "https://audio.example/b.mp3"})
	submitReq := httptest.NewRequest(http.MethodPost, "/api/transcriptions", bytes.NewReader(body))
	submitReq.Header.Set("Content-Type", "application/json")
	submitW := httptest.NewRecorder()
	srv.handleSubmit(submitW, submitReq)
	if submitW.Code != http.StatusAccepted {
		t.Fatalf("seed submit failed: %d", submitW.Code)
	}
	d.orch.Close()

	listReq := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	listW := httptest.NewRecorder()
	srv.handleSessions(listW, listReq)
	if listW.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listW.Code)
	}
	var listPayload api.SessionListResponse
	if err := json.NewDecoder(listW.Body).Decode(&listPayload); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(listPayload.Sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(listPayload.Sessions))
	}

	id := listPayload.Sessions[0].ID
	delReq := httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil)
	delW := httptest.NewRecorder()
	srv.handleSession(delW, delReq)
	if delW.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", delW.Code)
	}
	var delPayload api.DeleteResponse
	if err := json.NewDecoder(delW.Body).Decode(&delPayload); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if !delPayload.Removed {
		t.Fatal("expected session removed")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)
	getW := httptest.NewRecorder()
	srv.handleSession(getW, getReq)
	if getW.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", getW.Code)
	}
}

func TestAPIServerMethodGuards(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		method string
		path   string
		call   func(http.ResponseWriter, *http.Request)
	}{
		{http.MethodPost, "/api/health", srv.handleHealth},
		{http.MethodPost, "/api/status", srv.handleStatus},
		{http.MethodGet, "/api/transcriptions", srv.handleSubmit},
		{http.MethodGet, "/api/cancel", srv.handleCancel},
		{http.MethodPost, "/api/sessions", srv.handleSessions},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		tc.call(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", tc.method, tc.path, w.Code)
		}
	}
}
