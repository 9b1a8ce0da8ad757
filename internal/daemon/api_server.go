package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/orchestrator"
	"scribe/internal/services"
	"scribe/internal/session"
)

// maxInlineFormMemory bounds how much of a multipart upload is held in
// memory before spilling to a temp file.
const maxInlineFormMemory = 32 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address required")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/transcriptions", srv.handleSubmit)
	mux.HandleFunc("/api/cancel", srv.handleCancel)
	mux.HandleFunc("/api/sessions", srv.handleSessions)
	mux.HandleFunc("/api/sessions/", srv.handleSession)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr reports the bound listen address, available once start succeeds.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		SessionDBPath: status.SessionDBPath,
		LockFilePath:  status.LockFilePath,
		Polling:       status.Polling,
		ActiveSession: api.FromSession(status.Active),
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	payload, status, err := s.decodeSubmission(r)
	if err != nil {
		s.writeError(w, status, err.Error())
		return
	}

	sess, err := s.daemon.Submit(r.Context(), payload)
	if err != nil {
		s.writeError(w, submissionStatusCode(err), services.UserMessage(err))
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{Session: *api.FromSession(sess)})
}

func (s *apiServer) decodeSubmission(r *http.Request) (orchestrator.Payload, int, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return orchestrator.Payload{}, http.StatusBadRequest, fmt.Errorf("invalid content type: %w", err)
	}

	if mediaType == "application/json" {
		var req api.SubmitURLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return orchestrator.Payload{}, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)
		}
		if strings.TrimSpace(req.URL) == "" {
			return orchestrator.Payload{}, http.StatusBadRequest, errors.New("url is required")
		}
		return orchestrator.Payload{
			URL:     req.URL,
			Options: session.Options{Language: req.Language, Diarize: req.Diarize},
		}, 0, nil
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		return orchestrator.Payload{}, http.StatusUnsupportedMediaType, errors.New("expected multipart form or json body")
	}
	if err := r.ParseMultipartForm(maxInlineFormMemory); err != nil {
		return orchestrator.Payload{}, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err)
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return orchestrator.Payload{}, http.StatusBadRequest, errors.New("audio file field is required")
	}

	return orchestrator.Payload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        file,
		Options: session.Options{
			Language: r.FormValue("language"),
			Diarize:  parseBool(r.FormValue("diarize")),
		},
	}, 0, nil
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sess, err := s.daemon.CancelActive(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.CancelResponse{Session: api.FromSession(sess)})
}

func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessions, err := s.daemon.ListSessions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: api.FromSessions(sessions)})
}

func (s *apiServer) handleSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, err := s.daemon.GetSession(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sess == nil {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.SessionResponse{Session: *api.FromSession(sess)})
	case http.MethodDelete:
		removed, err := s.daemon.DeleteSession(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.DeleteResponse{Removed: removed})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// submissionStatusCode maps the failure taxonomy onto HTTP status codes.
func submissionStatusCode(err error) int {
	switch {
	case errors.Is(err, services.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, services.ErrStaging), errors.Is(err, services.ErrSubmission):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
