package protohttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/gameproto-dashboard/internal/dashboard"
	"github.com/MJE43/gameproto-dashboard/internal/protostore"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	dashboardPrototypeLimit = 500
	dashboardEventLimit     = 100
)

// Server runs the local dashboard API backed by a protostore.Store.
type Server struct {
	store       *protostore.Store
	hub         *Hub
	token       string
	addr        string // e.g. "127.0.0.1:17888"
	httpServer  *http.Server
	listener    net.Listener
	logger      *log.Logger
	readTimeout time.Duration
	startTime   time.Time
}

// New creates a dashboard HTTP server bound to loopback at the given port.
// Port 0 picks a free port. token may be empty to disable token checks.
func New(store *protostore.Store, port int, token string) *Server {
	if port < 0 {
		port = 0
	}
	logger := log.New(os.Stdout, "[protohttp] ", log.LstdFlags)
	return &Server{
		store:       store,
		hub:         NewHub(logger),
		token:       token,
		addr:        fmt.Sprintf("127.0.0.1:%d", port),
		logger:      logger,
		readTimeout: 10 * time.Second,
		startTime:   time.Now(),
	}
}

// Hub returns the event feed hub.
func (s *Server) Hub() *Hub { return s.hub }

// Routes sets up the HTTP routes with middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequest)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/dashboard", s.handleDashboard)
		r.Post("/game-prototypes", s.handleCreatePrototype)
		r.Get("/game-prototypes/{id}", s.handleGetPrototype)
		r.Patch("/game-prototypes/{id}", s.handleUpdatePrototype)
		r.Post("/game-prototypes/{id}/events", s.handleEmitEvent)
		r.Get(dashboard.FeedPath, s.hub.ServeWS)
	})

	return r
}

// Start begins listening in a goroutine. It returns when the socket is bound.
func (s *Server) Start() error {
	// The websocket feed is long-lived, so only the header read is bounded.
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: s.readTimeout,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("serve: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown disconnects feed subscribers and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ========== Handlers ==========

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	dbStatus := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		status = "unhealthy"
		dbStatus = err.Error()
	}
	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"version":     Version,
		"uptime":      time.Since(s.startTime).Round(time.Second).String(),
		"database":    dbStatus,
		"subscribers": s.hub.Subscribers(),
		"request_id":  middleware.GetReqID(r.Context()),
	})
}

// GET /dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Dashboard(r.Context(), dashboardPrototypeLimit, dashboardEventLimit)
	if err != nil {
		s.serverError(w, r, "failed to load dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// POST /game-prototypes
func (s *Server) handleCreatePrototype(w http.ResponseWriter, r *http.Request) {
	var p dashboard.GamePrototype
	if !decodeStrict(w, r, &p) {
		return
	}
	if strings.TrimSpace(p.Name) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "name is required", "name"))
		return
	}

	created, err := s.store.CreatePrototype(r.Context(), p)
	if errors.Is(err, protostore.ErrConflict) {
		writeJSON(w, http.StatusConflict, errObj("CONFLICT", "prototype id already exists", "id"))
		return
	}
	if err != nil {
		s.serverError(w, r, "failed to create prototype", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GET /game-prototypes/{id}
func (s *Server) handleGetPrototype(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPrototype(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, protostore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errObj("NOT_FOUND", "prototype not found", ""))
		return
	}
	if err != nil {
		s.serverError(w, r, "failed to load prototype", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PATCH /game-prototypes/{id}
func (s *Server) handleUpdatePrototype(w http.ResponseWriter, r *http.Request) {
	var u dashboard.PrototypeUpdate
	if !decodeStrict(w, r, &u) {
		return
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "name cannot be blank", "name"))
		return
	}

	p, err := s.store.UpdatePrototype(r.Context(), chi.URLParam(r, "id"), u)
	if errors.Is(err, protostore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errObj("NOT_FOUND", "prototype not found", ""))
		return
	}
	if err != nil {
		s.serverError(w, r, "failed to update prototype", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// POST /game-prototypes/{id}/events
func (s *Server) handleEmitEvent(w http.ResponseWriter, r *http.Request) {
	var ev dashboard.GameEvent
	if !decodeStrict(w, r, &ev) {
		return
	}
	if !ev.Type.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "type must be UPDATE_SCORE, UPDATE_LIVES or UPDATE_LEVEL", "type"))
		return
	}
	if _, ok := ev.Value(); !ok {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "data is missing the field for "+string(ev.Type), "data"))
		return
	}
	// Server-assigned fields are never taken from the request.
	ev.GamePrototypeID = ""
	ev.EmittedAt = nil

	stored, err := s.store.AppendEvent(r.Context(), chi.URLParam(r, "id"), ev)
	if errors.Is(err, protostore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errObj("NOT_FOUND", "prototype not found", ""))
		return
	}
	if err != nil {
		s.serverError(w, r, "failed to store event", err)
		return
	}

	s.hub.Broadcast(stored)
	writeJSON(w, http.StatusCreated, stored)
}

// ========== Helpers ==========

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeJSON(w, http.StatusUnauthorized, errObj("UNAUTHORIZED", "missing or invalid bearer token", ""))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Printf("%s %s [%s]: %s: %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), msg, err)
	writeJSON(w, http.StatusInternalServerError, errObj("SERVER_ERROR", msg, ""))
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("%s %s %d %dms", r.Method, r.URL.Path, ww.Status(), time.Since(start).Milliseconds())
	}
	return http.HandlerFunc(fn)
}

func decodeStrict(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "invalid JSON: "+err.Error(), ""))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Server-Version", Version)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errObj(code, msg, field string) map[string]any {
	e := map[string]any{
		"code":    code,
		"message": msg,
	}
	if field != "" {
		e["field"] = field
	}
	return map[string]any{"error": e}
}
