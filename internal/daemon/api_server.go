package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shuttle/internal/config"
	"shuttle/internal/logging"
	"shuttle/internal/observer"
	"shuttle/internal/status"
	"shuttle/internal/version"
)

// SessionKeyHeader carries the observer session key on authenticated
// requests.
const SessionKeyHeader = "X-Shuttle-Session"

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// InitRequest is the body of POST /ui/init.
type InitRequest struct {
	Secret      string `json:"secret"`
	CallbackURL string `json:"callback_url,omitempty"`
	ClientName  string `json:"client_name,omitempty"`
}

// InitResponse returns the session key for subsequent requests.
type InitResponse struct {
	SessionKey string `json:"session_key"`
	APIVersion string `json:"api_version"`
}

// CommandResponse reports the outcome of a control command.
type CommandResponse struct {
	OK      bool   `json:"ok"`
	Applied int    `json:"applied,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ui/init", srv.handleInit)
	mux.HandleFunc("/ui/state", srv.handleState)
	mux.HandleFunc("/ui/commands/uploading/", srv.handleUploading)
	mux.HandleFunc("/ui/commands/workers/", srv.handleWorkers)
	mux.HandleFunc("/ui/commands/server/stop", srv.handleServerStop)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
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

// Addr reports the bound listen address, once start has succeeded.
func (s *apiServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.daemon.registry.Open(req.Secret, req.CallbackURL, req.ClientName)
	if err != nil {
		if errors.Is(err, observer.ErrBadSecret) {
			s.writeError(w, http.StatusUnauthorized, "secret mismatch")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log().Info("observer session opened",
		logging.String("client", session.ClientName),
		logging.Bool("callback", session.HasCallback()))
	s.writeJSON(w, http.StatusOK, InitResponse{
		SessionKey: session.Key,
		APIVersion: version.APIVersion,
	})
}

func (s *apiServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		s.writeError(w, http.StatusUnauthorized, "unknown session")
		return
	}
	snap := s.daemon.engine.Snapshot()
	payload, err := status.EncodeSnapshot(snap)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *apiServer) handleUploading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		s.writeError(w, http.StatusUnauthorized, "unknown session")
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/ui/commands/uploading/")
	var err error
	switch action {
	case "start":
		err = s.daemon.engine.StartUploading()
	case "stop":
		err = s.daemon.engine.StopUploading()
	default:
		s.writeError(w, http.StatusNotFound, "unknown command")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, CommandResponse{OK: true})
}

func (s *apiServer) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		s.writeError(w, http.StatusUnauthorized, "unknown session")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/ui/commands/workers/")
	action, countStr, ok := strings.Cut(rest, "/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown command")
		return
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 {
		s.writeError(w, http.StatusBadRequest, "invalid worker count")
		return
	}

	switch action {
	case "add":
		added, err := s.daemon.engine.AddWorkers(count)
		if err != nil && added == 0 {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		resp := CommandResponse{OK: true, Applied: added}
		if err != nil {
			resp.Detail = err.Error()
		}
		s.writeJSON(w, http.StatusOK, resp)
	case "remove":
		stopped, err := s.daemon.engine.StopWorkers(count)
		if err != nil {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, CommandResponse{OK: true, Applied: stopped})
	default:
		s.writeError(w, http.StatusNotFound, "unknown command")
	}
}

func (s *apiServer) handleServerStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		s.writeError(w, http.StatusUnauthorized, "unknown session")
		return
	}
	s.log().Info("shutdown requested over api")
	s.writeJSON(w, http.StatusOK, CommandResponse{OK: true, Detail: "shutting down"})
	s.daemon.RequestShutdown()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.daemon.store.CheckHealth(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *apiServer) authorized(r *http.Request) bool {
	key := strings.TrimSpace(r.Header.Get(SessionKeyHeader))
	if key == "" {
		return false
	}
	_, ok := s.daemon.registry.Get(key)
	return ok
}

func (s *apiServer) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.WithComponent(s.logger, "api-server")
	}
	return logging.NewNop()
}
