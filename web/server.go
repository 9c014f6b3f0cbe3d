package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/membrain/config"
	"markestedt/membrain/history"
	"markestedt/membrain/overlay"
	"markestedt/membrain/storage"
	"markestedt/membrain/update"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return isLoopbackOrigin(r.Header.Get("Origin"))
	},
}

// ErrIndexOutOfRange is returned by Backend.Select for a missing entry.
var ErrIndexOutOfRange = errors.New("history index out of range")

// SettingsView is the settings panel as the dashboard sees it
type SettingsView struct {
	Form          config.SettingsForm `json:"form"`
	Hints         []string            `json:"hints"`
	SettingsHints []string            `json:"settingsHints"`
	Keys          []config.Key        `json:"keys"`
	Update        UpdateView          `json:"update"`
}

// UpdateView exposes update settings without secrets
type UpdateView struct {
	Source            string `json:"source"`
	Configured        bool   `json:"configured"`
	HasToken          bool   `json:"hasToken"`
	IncludePrerelease bool   `json:"includePrerelease"`
}

// StateView is the overlay snapshot plus the latest status lines
type StateView struct {
	overlay.Snapshot
	Status       string `json:"status"`
	UpdateStatus string `json:"updateStatus"`
}

// SettingsRequest is the PUT /api/settings body
type SettingsRequest struct {
	config.SettingsForm
	Update *update.Form `json:"update,omitempty"`
}

// Backend is the agent as seen by HTTP handlers. Implementations must be
// safe for concurrent use.
type Backend interface {
	History() []history.Item
	Item(index int) (history.Item, bool)
	State() StateView
	Settings() SettingsView
	// CommitSettings returns a *config.FieldError when validation fails.
	CommitSettings(req SettingsRequest) error
	// StageSettings records edits for the settings save key to commit.
	StageSettings(req SettingsRequest)
	Toggle() bool
	Select(index int) error
	// Close is a window close from the dashboard; it hides the overlay.
	Close()
}

// Server represents the web server
type Server struct {
	backend Backend
	db      *storage.DB
	addr    string
	hub     *Hub
}

// NewServer creates a new web server. db may be nil, in which case
// /api/stats reports 503.
func NewServer(backend Backend, db *storage.DB, addr string) *Server {
	return &Server{
		backend: backend,
		db:      db,
		addr:    addr,
		hub:     NewHub(),
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/history/{index}/image", s.handleImage)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("PUT /api/settings/draft", s.handleDraft)
	mux.HandleFunc("POST /api/overlay/toggle", s.handleToggle)
	mux.HandleFunc("POST /api/overlay/select/{index}", s.handleSelect)
	mux.HandleFunc("POST /api/overlay/close", s.handleClose)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return loopbackOnly(mux)
}

// loopbackOnly rejects requests addressed to a non-loopback host name or
// sent from a non-loopback page. Clipboard history must not be readable by
// arbitrary sites, including through DNS rebinding.
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopbackHost(r.Host) || !isLoopbackOrigin(r.Header.Get("Origin")) {
			slog.Warn("Rejected non-local request", "host", r.Host, "origin", r.Header.Get("Origin"), "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run()
	defer s.hub.Stop()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Starting web server", "url", "http://"+ln.Addr().String())

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// URL is the dashboard base URL
func (s *Server) URL() string {
	return "http://" + s.addr
}

// BroadcastHistory pushes the current history list
func (s *Server) BroadcastHistory(items []history.Item) {
	s.hub.BroadcastMessage(Message{Type: MessageTypeHistory, Data: entriesFor(items)})
}

// BroadcastState pushes the overlay state
func (s *Server) BroadcastState(state StateView) {
	s.hub.BroadcastMessage(Message{Type: MessageTypeState, Data: state})
}

// BroadcastStatus pushes a status line
func (s *Server) BroadcastStatus(status string) {
	s.hub.BroadcastMessage(Message{Type: MessageTypeStatus, Data: StatusMessage{Status: status}})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func isLoopbackOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := parseOrigin(origin)
	if err != nil {
		return false
	}
	return isLoopbackName(u)
}

// isLoopbackHost checks a Host header value, with or without a port.
func isLoopbackHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return isLoopbackName(strings.Trim(host, "[]"))
}

func isLoopbackName(name string) bool {
	if strings.EqualFold(name, "localhost") {
		return true
	}
	ip := net.ParseIP(name)
	return ip != nil && ip.IsLoopback()
}
