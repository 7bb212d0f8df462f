// Package server provides the HTTP server for the conductor daemon.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/pkg/daemon"
	"github.com/grovetools/conductor/pkg/sessions"
)

// streamBuffer is the per-client event buffer. A client that falls this
// far behind loses events rather than stalling the registry.
const streamBuffer = 64

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger   *logrus.Entry
	server   *http.Server
	service  *daemon.Service
	info     *daemon.RunningInfo
	upgrader websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a new Server backed by service.
func New(service *daemon.Service, logger *logrus.Entry) *Server {
	return &Server{
		logger:  logger,
		service: service,
		closing: make(chan struct{}),
		upgrader: websocket.Upgrader{
			// The socket is 0600; any client that can connect is trusted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetRunningInfo sets what /api/info reports about this daemon.
func (s *Server) SetRunningInfo(info *daemon.RunningInfo) {
	s.info = info
}

// Handler returns the API handler with request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/info", s.handleInfo)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleRemoveSession)
	mux.HandleFunc("POST /api/sessions/{id}/state", s.handleChangeState)
	mux.HandleFunc("POST /api/sessions/{id}/container", s.handleAttachContainer)
	mux.HandleFunc("POST /api/sessions/{id}/touch", s.handleTouch)

	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("GET /api/repos", s.handleRepoNames)
	mux.HandleFunc("POST /api/repos/refresh", s.handleRefreshRepos)
	mux.HandleFunc("GET /api/repos/{name}", s.handleGetRepo)

	mux.HandleFunc("GET /api/stream", s.handleStream)

	return s.withRequestLog(mux)
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return s.Serve(listener)
}

// Serve accepts connections on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithField("addr", listener.Addr().String()).Info("Daemon listening")
	err := s.server.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server. Open event streams are closed
// since the HTTP server does not track hijacked connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.closeOnce.Do(func() { close(s.closing) })
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if s.info == nil {
		http.Error(w, "info not initialized", http.StatusServiceUnavailable)
		return
	}
	info := *s.info
	info.Sessions, info.Active = s.service.Counts()
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	active, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	recs, err := s.service.ListSessions(r.Context(), active)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req daemon.CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.service.CreateSession(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangeState(w http.ResponseWriter, r *http.Request) {
	var req daemon.StateChangeRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.service.ChangeState(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAttachContainer(w http.ResponseWriter, r *http.Request) {
	var req daemon.ContainerRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.service.AttachContainer(r.Context(), r.PathValue("id"), req.ContainerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.Touch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req daemon.ScanRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.service.Scan(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRepoNames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, errors.InvalidInput("limit must be a non-negative integer").WithDetail("limit", v))
			return
		}
		limit = n
	}
	names, err := s.service.RepositoryNames(r.Context(), q.Get("prefix"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	meta, err := s.service.Repository(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleRefreshRepos(w http.ResponseWriter, r *http.Request) {
	if s.service.Index == nil {
		s.writeError(w, r, errors.InvalidInput("no repository root configured (scanner.root)"))
		return
	}
	if err := s.service.Index.Refresh(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStream upgrades to a websocket and forwards registry events as
// {"type","data"} text frames until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so a client sees every
	// event published after its dial returns.
	sub := s.service.Registry.Bus().Subscribe(streamBuffer)
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.logger.WithField("subscriber", sub.ID())
	log.Debug("Stream client connected")

	// Reading is required to process close and ping frames.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			log.WithField("dropped", sub.Dropped()).Debug("Stream client disconnected")
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon shutting down"),
				time.Now().Add(time.Second))
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := sessions.MarshalEvent(ev)
			if err != nil {
				log.WithError(err).Error("Failed to marshal event")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).Debug("Stream write failed")
				return
			}
		}
	}
}

// decode reads a JSON body into v. An empty body leaves v zero-valued.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return false
	}
	return true
}

// statusFor maps an error code to its HTTP status.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeAlreadyExists, errors.ErrCodeInvalidTransition:
		return http.StatusConflict
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeInvalidRepository, errors.ErrCodeRootNotFound:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeCloneFailed:
		return http.StatusBadGateway
	case errors.ErrCodeProbeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ce, ok := errors.As(err)
	if !ok {
		ce = errors.Wrap(err, errors.ErrCodeInternal, err.Error())
	}
	status := statusFor(ce.Code)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	writeJSON(w, status, ce)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// withRequestLog tags each request with an id and logs it once served.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.logger.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start),
		}).Debug("Request served")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
