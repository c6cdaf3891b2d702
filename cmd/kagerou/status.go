// cmd/kagerou/status.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// wsHub fans tick events out to connected websocket clients. It doubles as
// the scheduler's EventSink.
type wsHub struct {
	upgrader websocket.Upgrader
	mutex    sync.Mutex
	clients  map[*websocket.Conn]bool
}

func newWSHub() *wsHub {
	return &wsHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// Publish sends a tick event to every connected client, dropping clients
// whose writes fail.
func (h *wsHub) Publish(event TickEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		Log().Error("failed to encode tick event: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *wsHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log().Warn("websocket upgrade failed: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()

	// Reader loop exists only to observe close; events flow one way.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// StatusServer exposes health and operational state over HTTP.
type StatusServer struct {
	server   *http.Server
	hub      *wsHub
	sched    *Scheduler
	registry *SubjectRegistry
}

// NewStatusServer builds the server; the returned hub is the scheduler's
// event sink.
func NewStatusServer(port int, sched *Scheduler, registry *SubjectRegistry) *StatusServer {
	s := &StatusServer{
		hub:      newWSHub(),
		sched:    sched,
		registry: registry,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/subjects", s.handleSubjects).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.hub.handleWS)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the websocket event hub.
func (s *StatusServer) Hub() *wsHub { return s.hub }

// Start serves in the background.
func (s *StatusServer) Start() {
	go func() {
		Log().Info("status server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Log().Error("status server failed: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": VERSION})
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := GetState()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"state":    st,
		"uptime":   time.Since(st.StartupTime).Round(time.Second).String(),
		"phases":   s.sched.Phases(),
		"subjects": len(s.registry.List()),
	})
}

func (s *StatusServer) handleSubjects(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.registry.List())
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		Log().Error("failed to encode response: %v", err)
	}
}
