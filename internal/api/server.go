// Package api provides the HTTP API for watching the reasoners.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/mini-reasoner/internal/engine"
	"github.com/talgya/mini-reasoner/internal/persistence"
)

const (
	maxSSEConns    = 2
	sseCatchUp     = 50
	sseHeartbeat   = 15 * time.Second
	defaultLimit   = 50
	maxEventsLimit = 500
)

// Server serves the simulation state over HTTP.
type Server struct {
	Sim         *engine.Simulation
	Eng         *engine.Engine
	DB          *persistence.DB // optional journal
	Port        int
	AdminKey    string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey    string // Bearer token for SSE stream endpoint. Empty = streaming disabled.
	CORSOrigins []string

	// Active SSE connection count.
	sseConns atomic.Int32
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	journalLimiter := NewRateLimiter(120, time.Minute)
	adminLimiter := NewRateLimiter(30, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentRoutes)
	mux.HandleFunc("/api/v1/events", s.handleEventsRoute(journalLimiter))
	mux.HandleFunc("/api/v1/stats", s.handleStats)

	// SSE streaming endpoint (GET, requires the relay key).
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints.
	mux.HandleFunc("/api/v1/speed", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleSpeed)))
	mux.HandleFunc("/api/v1/snapshot", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleSnapshot)))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins. Localhost
// dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request, key string) bool {
	auth := r.Header.Get("Authorization")
	return key != "" && strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == key
}

// adminOnly requires the admin bearer token on POST requests. GET requests
// pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no REASONER_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !bearer(r, s.AdminKey) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Stats()
	status := map[string]any{
		"name":          "mini-reasoner",
		"run_id":        st.RunID,
		"tick":          st.Tick,
		"sim_time":      st.SimTime,
		"sim_time_text": engine.FormatSimTime(st.SimTime),
		"agents":        st.Agents,
		"transitions":   st.Transitions,
		"journal":       s.DB != nil,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	writeJSON(w, status)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	type agentSummary struct {
		Name     string     `json:"name"`
		Position [2]float64 `json:"position"`
		Active   string     `json:"active"`
	}

	states := s.Sim.AgentStates()
	result := make([]agentSummary, 0, len(states))
	for _, a := range states {
		result = append(result, agentSummary{Name: a.Name, Position: a.Position, Active: a.Active})
	}
	writeJSON(w, result)
}

// handleAgentRoutes serves /api/v1/agent/{name} as JSON and
// /api/v1/agent/{name}/state as the reasoner's plain-text summary.
func (s *Server) handleAgentRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/agent/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "missing agent name", http.StatusBadRequest)
		return
	}

	state, ok := s.Sim.AgentState(parts[0])
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	if len(parts) >= 2 && parts[1] == "state" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, state.Summary)
		return
	}
	writeJSON(w, state)
}

// handleEventsRoute serves recent transitions from memory, or from the
// journal with ?source=journal. Journal reads are rate limited.
func (s *Server) handleEventsRoute(limiter *RateLimiter) http.HandlerFunc {
	fromJournal := RateLimitMiddleware(limiter, func(w http.ResponseWriter, r *http.Request) {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		events, err := s.DB.RecentTransitions(parseLimit(r))
		if err != nil {
			slog.Error("journal read failed", "error", err)
			http.Error(w, "journal read failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, filterAgent(events, r.URL.Query().Get("agent")))
	})

	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("source") == "journal" {
			fromJournal(w, r)
			return
		}
		limit := parseLimit(r)
		agent := r.URL.Query().Get("agent")
		events := filterAgent(s.Sim.RecentEvents(0), agent)
		if len(events) > limit {
			events = events[len(events)-limit:]
		}
		writeJSON(w, events)
	}
}

func parseLimit(r *http.Request) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= maxEventsLimit {
			return n
		}
	}
	return defaultLimit
}

func filterAgent(events []engine.Event, agent string) []engine.Event {
	if agent == "" {
		return events
	}
	filtered := make([]engine.Event, 0, len(events))
	for _, e := range events {
		if e.Agent == agent {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"simulation": s.Sim.Stats()}
	if s.DB != nil {
		if counts, err := s.DB.CountTransitions(); err == nil {
			out["journal_transitions"] = counts
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveSimulation(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Uses the relay key, not the admin key.
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
		return
	}
	if !bearer(r, s.RelayKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if s.sseConns.Add(1) > maxSSEConns {
		s.sseConns.Add(-1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer s.sseConns.Add(-1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(ch)

	for _, e := range s.Sim.RecentEvents(sseCatchUp) {
		writeSSEEvent(w, e)
	}
	flusher.Flush()

	slog.Info("SSE client connected", "remote", r.RemoteAddr)

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

// writeSSEEvent writes a single transition in SSE format.
func writeSSEEvent(w http.ResponseWriter, e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: transition\ndata: %s\n\n", data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
