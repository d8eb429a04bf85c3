// Package server provides the bridge's HTTP and SSE surface.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/internal/history"
	"github.com/grovetools/bridge/internal/hub"
	"github.com/grovetools/bridge/internal/store"
	"github.com/grovetools/bridge/internal/translate"
	"github.com/grovetools/bridge/logging"
)

// Agent is the subset of the ACP client the router needs. Satisfied by
// acp.Client.
type Agent interface {
	Call(ctx context.Context, method string, params interface{}, result interface{}) error
	Notify(method string, params interface{}) error
	Respond(id int64, result interface{}) error
	SupportsLoadSession() bool
}

// Server routes HTTP requests to the session store and the agent.
type Server struct {
	logger     *logrus.Entry
	server     *http.Server
	st         *store.Store
	hub        *hub.Hub
	agent      Agent
	translator *translate.Translator
	recon      *history.Reconstructor
	cfg        config.Config
	version    string
}

// New creates a Server wired to the bridge's components.
func New(st *store.Store, h *hub.Hub, agent Agent, tr *translate.Translator, recon *history.Reconstructor, cfg config.Config, version string) *Server {
	return &Server{
		logger:     logging.NewLogger("server"),
		st:         st,
		hub:        h,
		agent:      agent,
		translator: tr,
		recon:      recon,
		cfg:        cfg,
		version:    version,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /global/event", s.handleEventStream)
	mux.HandleFunc("GET /global/ws", s.handleEventSocket)

	mux.HandleFunc("POST /session/reload", s.handleReload)
	mux.HandleFunc("GET /session", s.handleListSessions)
	mux.HandleFunc("POST /session", s.handleCreateSession)
	mux.HandleFunc("GET /session/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /session/{id}", s.handleDeleteSession)
	mux.HandleFunc("PATCH /session/{id}", s.handleRenameSession)
	mux.HandleFunc("GET /session/{id}/message", s.handleListMessages)
	mux.HandleFunc("POST /session/{id}/message", s.handleSendMessage)
	mux.HandleFunc("POST /session/{id}/cancel", s.handleCancelSession)
	mux.HandleFunc("GET /session/{id}/message/{mid}/part", s.handleListParts)

	mux.HandleFunc("GET /permission", s.handleListPermissions)
	mux.HandleFunc("POST /permission/{id}/reply", s.handlePermissionReply)

	mux.HandleFunc("GET /provider", s.handleProvider)
	mux.HandleFunc("GET /agent", s.handleAgent)
	mux.HandleFunc("GET /project", s.handleProjects)
	mux.HandleFunc("GET /project/current", s.handleCurrentProject)

	return cors(mux)
}

// ListenAndServe starts the HTTP server. Blocks until shutdown or
// failure.
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:    s.cfg.HTTP.Listen,
		Handler: h2c.NewHandler(s.Handler(), &http2.Server{}),
	}
	s.logger.WithField("listen", s.cfg.HTTP.Listen).Info("Bridge listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// cors applies permissive headers; the bridge serves a local front-end.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// envelope is the wire shape of every broadcast event.
type envelope struct {
	Payload hub.Event `json:"payload"`
}

// handleEventStream opens an SSE stream over the broadcast hub.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	// Initial empty frame confirms the connection
	fmt.Fprintf(w, "data: {}\n\n")
	flusher.Flush()

	s.logger.Debug("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(envelope{Payload: ev})
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal event")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEventSocket mirrors the event stream over a WebSocket for
// clients that cannot hold an SSE connection open.
func (s *Server) handleEventSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	// Reader detects client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("WebSocket client connected")
	for {
		select {
		case <-done:
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := conn.WriteJSON(envelope{Payload: ev}); err != nil {
				return
			}
		}
	}
}
