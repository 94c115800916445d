// Package ipc exposes the minimal, read-only status surface: a health
// endpoint and a diagnostics event stream. Per the Non-goal on rich
// external control surfaces, nothing here accepts profile or parameter
// writes -- reload is signal-driven only.
package ipc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arcaluminis/ledctl/internal/diagnostics"
	"github.com/arcaluminis/ledctl/internal/scheduler"
)

// Server serves /health and /diag over plain HTTP.
type Server struct {
	Coordinator *scheduler.Coordinator
	History     *diagnostics.Ring
	start       time.Time

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewServer(coord *scheduler.Coordinator, history *diagnostics.Ring) *Server {
	return &Server{
		Coordinator: coord,
		History:     history,
		start:       time.Now(),
		clients:     make(map[*websocket.Conn]bool),
	}
}

// Handler returns the mux routing /health and /diag.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/diag", s.handleDiag)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	devices := make(map[string]any)
	for id, p := range s.Coordinator.Profiles() {
		devices[id] = map[string]any{
			"profile":    p.Name,
			"generation": p.Generation,
			"layers":     len(p.Layers),
		}
	}
	resp := map[string]any{
		"uptime_s": time.Since(s.start).Seconds(),
		"devices":  devices,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (s *Server) handleDiag(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	for _, d := range s.History.Recent() {
		_ = conn.WriteJSON(d)
	}

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Emit implements diagnostics.Sink, broadcasting d to every connected
// /diag client in addition to whatever History already recorded it.
func (s *Server) Emit(d diagnostics.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.WriteJSON(d)
	}
}
