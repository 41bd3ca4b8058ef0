// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/user/threatsight/internal/correlation"
	"github.com/user/threatsight/internal/feed"
	"github.com/user/threatsight/internal/ingest"
	"github.com/user/threatsight/internal/metrics"
	"github.com/user/threatsight/internal/proxy"
	"github.com/user/threatsight/internal/simulation"
	"github.com/user/threatsight/internal/types"
)

// Server is the HTTP surface of the correlation service: message ingest and
// queries, selection control, simulation control, the live feed upgrade
// endpoint, metrics, and the backend proxies.
type Server struct {
	store  *correlation.Store
	pipe   *ingest.Pipeline
	hub    *feed.Hub
	driver *simulation.Driver
	mux    *http.ServeMux
}

// NewServer wires the HTTP routes. hub and driver may be nil when the live
// feed or the simulation is disabled; the corresponding endpoints then report
// service unavailable.
func NewServer(store *correlation.Store, pipe *ingest.Pipeline, hub *feed.Hub, driver *simulation.Driver, proxies ...*proxy.Handler) *Server {
	s := &Server{
		store:  store,
		pipe:   pipe,
		hub:    hub,
		driver: driver,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/messages", s.handleSubmit)
	s.mux.HandleFunc("GET /api/messages", s.handleMessages)
	s.mux.HandleFunc("GET /api/messages/", s.handleMessageSub)
	s.mux.HandleFunc("DELETE /api/messages", s.handleClear)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/correlation", s.handleCorrelation)
	s.mux.HandleFunc("POST /api/selection/", s.handleSelect)
	s.mux.HandleFunc("DELETE /api/selection", s.handleClearSelection)
	s.mux.HandleFunc("POST /api/simulation/start", s.handleSimStart)
	s.mux.HandleFunc("POST /api/simulation/stop", s.handleSimStop)
	s.mux.Handle("GET /metrics", metrics.Collector.Handler())
	s.mux.HandleFunc("GET /ws", s.handleFeed)
	for _, p := range proxies {
		s.mux.Handle(p.Prefix()+"/", p)
	}
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var raw types.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if raw.SourceID == "" || raw.TargetID == "" {
		http.Error(w, `{"error":"source_id and target_id are required"}`, http.StatusBadRequest)
		return
	}

	msg, added := s.pipe.ProcessSync(&raw)
	if !added {
		http.Error(w, `{"error":"duplicate message id"}`, http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs := s.store.Messages()

	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		if n < len(msgs) {
			msgs = msgs[len(msgs)-n:]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}

// handleMessageSub serves /api/messages/{id}/related and
// /api/messages/{id}/analysis.
func (s *Server) handleMessageSub(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/messages/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	id := types.MessageID(parts[0])

	switch parts[1] {
	case "related":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.store.Related(id))
	case "analysis":
		analysis, ok := s.store.Analyze(id)
		if !ok {
			http.Error(w, `{"error":"message not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(analysis)
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.store.Clear()
	slog.Info("message log cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.Stats())
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.State())
}

// handleSelect serves POST /api/selection/node/{id} and
// POST /api/selection/message/{id}. Both return the resulting snapshot so a
// client can render the new highlight set without a second round trip.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/selection/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "node":
		s.store.SelectNode(types.AgentID(parts[1]))
	case "message":
		s.store.SelectMessage(types.MessageID(parts[1]))
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.State())
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.store.ClearSelection()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.State())
}

func (s *Server) handleSimStart(w http.ResponseWriter, r *http.Request) {
	if s.driver == nil {
		http.Error(w, `{"error":"simulation not configured"}`, http.StatusServiceUnavailable)
		return
	}
	if err := s.driver.Start(context.Background()); err != nil {
		slog.Warn("simulation start rejected", "error", err)
		code := http.StatusBadRequest
		if s.driver.Running() {
			code = http.StatusConflict
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	slog.Info("simulation started")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"running": true})
}

func (s *Server) handleSimStop(w http.ResponseWriter, r *http.Request) {
	if s.driver == nil {
		http.Error(w, `{"error":"simulation not configured"}`, http.StatusServiceUnavailable)
		return
	}
	s.driver.Stop()
	slog.Info("simulation stopped")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"running": false})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, `{"error":"live feed not configured"}`, http.StatusServiceUnavailable)
		return
	}
	s.hub.HandleUpgrade(w, r)
}
