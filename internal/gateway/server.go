// Package gateway exposes the dialog over HTTP and a WebSocket event stream.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/jarvis/internal/dialog"
	"github.com/dohr-michael/jarvis/internal/events"
	"github.com/dohr-michael/jarvis/internal/gateway/ws"
	"github.com/dohr-michael/jarvis/internal/intents"
	"github.com/dohr-michael/jarvis/internal/sessions"
	"github.com/dohr-michael/jarvis/internal/sweeper"
)

// Server is the Jarvis gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	registry   *sessions.Registry
	classifier *intents.Classifier
	dialog     *sessionDialog
	staleAfter time.Duration
}

// NewServer creates a new gateway server.
func NewServer(bus *events.Bus, registry *sessions.Registry, classifier *intents.Classifier, host string, port int) *Server {
	d := &sessionDialog{registry: registry}
	hub := ws.NewHub(bus, d)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{
		hub:        hub,
		bus:        bus,
		registry:   registry,
		classifier: classifier,
		dialog:     d,
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", hub.ServeWS)
	r.Get("/api/events", s.handleEvents)

	r.Get("/api/intents", s.handleIntents)
	r.Post("/api/classify", s.handleClassify)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleOpenSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(sessionScope)
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCloseSession)
			r.Post("/turns", s.handleTurn)
			r.Get("/tasks", s.handleTasks)
			r.Post("/cancel", s.handleCancel)
			r.Post("/sweep", s.handleSweep)
		})
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// SetStaleAfter sets the idle limit applied by the sweep endpoint.
func (s *Server) SetStaleAfter(d time.Duration) {
	s.staleAfter = d
}

// Handler returns the router, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("Jarvis gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, sessions.ErrSessionNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// sessionScope stores the {id} route parameter in the request context.
func sessionScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := events.ContextWithSessionID(r.Context(), chi.URLParam(r, "id"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.registry.Len()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history := s.bus.History(limit)
	if sid := r.URL.Query().Get("session_id"); sid != "" {
		filtered := history[:0:0]
		for _, e := range history {
			if e.SessionID == sid {
				filtered = append(filtered, e)
			}
		}
		history = filtered
	}
	writeJSON(w, http.StatusOK, history)
}

type intentInfo struct {
	Intent   intents.Intent    `json:"intent"`
	Required []string          `json:"required_slots"`
	Prompts  map[string]string `json:"prompts,omitempty"`
}

func (s *Server) handleIntents(w http.ResponseWriter, r *http.Request) {
	defs := intents.Definitions()
	out := make([]intentInfo, len(defs))
	for i, d := range defs {
		out[i] = intentInfo{Intent: d.Intent, Required: intents.RequiredSlots(d.Intent), Prompts: d.Prompts}
	}
	writeJSON(w, http.StatusOK, out)
}

type classifyRequest struct {
	Text   string `json:"text"`
	Intent string `json:"intent,omitempty"` // skip classification and extract for this intent
}

type classifyResponse struct {
	Intent     intents.Intent `json:"intent"`
	Confidence float64        `json:"confidence"`
	Fields     intents.Fields `json:"extracted_fields"`
	Required   []string       `json:"required_slots"`
}

// handleClassify is stateless: no session, no task.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	res := classifyResponse{}
	if req.Intent != "" {
		i, err := intents.ParseIntent(req.Intent)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res.Intent, res.Confidence = i, 1
	} else {
		res.Intent, res.Confidence = s.classifier.Classify(req.Text)
	}
	res.Fields = s.classifier.ExtractFields(req.Text, res.Intent)
	res.Required = intents.RequiredSlots(res.Intent)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, s.registry.Open())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(events.SessionIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Close(events.SessionIDFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type turnRequest struct {
	Utterance string `json:"utterance"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Utterance == "" {
		http.Error(w, "utterance required", http.StatusBadRequest)
		return
	}
	turn, err := s.dialog.turn(events.SessionIDFromContext(r.Context()), req.Utterance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.dialog.tasks(events.SessionIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	res, err := s.dialog.cancel(events.SessionIDFromContext(r.Context()), r.URL.Query().Get("reason"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	id := events.SessionIDFromContext(r.Context())
	var report sweeper.Report
	err := s.registry.Do(id, func(o *dialog.Orchestrator) error {
		report = sweeper.Sweep(o.Store(), s.staleAfter)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	report.SessionID = id
	swept := events.NewTypedEvent(events.SourceGateway, id, events.TasksSweptPayload{
		Removed:   report.Removed,
		Abandoned: report.Abandoned,
	})
	if err := s.bus.PublishAsync(r.Context(), swept); err != nil {
		slog.Warn("sweep event not published", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, report)
}
