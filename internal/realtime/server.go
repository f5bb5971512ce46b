package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"workspace-terminal/internal/logging"
	"workspace-terminal/internal/protocol"
	"workspace-terminal/internal/session"
	"workspace-terminal/internal/terminal"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Server exposes the terminal service over REST and WebSocket and fans
// session resets out to connected clients.
type Server struct {
	service   *terminal.Service
	logger    *slog.Logger
	staticDir string

	clients   map[*client]bool
	clientsMu sync.RWMutex
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	server *Server
}

// New creates a new realtime server. A nil logger discards output.
func New(service *terminal.Service, staticDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		service:   service,
		logger:    logger,
		staticDir: staticDir,
		clients:   make(map[*client]bool),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint.
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API endpoints.
	mux.HandleFunc("POST /api/terminal", s.handleExecute)
	mux.HandleFunc("GET /api/terminal", s.handleDiscovery)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleSessionHistory)
	mux.HandleFunc("GET /api/sessions/{id}/tree", s.handleSessionTree)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	// Static file serving.
	if s.staticDir != "" {
		fileServer := http.FileServer(http.Dir(s.staticDir))
		mux.Handle("/", fileServer)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket_upgrade_failed", "error", err)
		return
	}

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()
	s.logger.Debug("websocket_connected", "client", c.id)

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket_read_failed", "client", c.id, "error", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands data to the write pump, dropping it when the client is gone
// or its buffer is full.
func (c *client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.server.logger.Warn("websocket_buffer_full", "client", c.id)
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()

	c.once.Do(func() { close(c.done) })
	s.logger.Debug("websocket_disconnected", "client", c.id)
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, "", protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeCommandExecute:
		cmd, err := protocol.DecodeCommand(msg.Payload)
		if err != nil {
			s.sendError(c, "", protocol.ErrInvalidMessage, err.Error())
			return
		}
		// Commands may run for the full timeout; keep reading meanwhile.
		go s.handleWSExecute(c, cmd)
	}
}

func (s *Server) handleWSExecute(c *client, cmd *protocol.Command) {
	req := requestFor(cmd)
	result, err := s.service.Execute(context.Background(), req)
	if err != nil {
		s.sendError(c, cmd.RequestID, protocol.ErrInternal, err.Error())
		return
	}

	msg, err := protocol.NewMessage(protocol.TypeCommandResult, protocol.CommandResultPayload{
		RequestID:       cmd.RequestID,
		SessionID:       req.SessionID,
		ExecutionResult: executionResult(result),
	})
	if err != nil {
		return
	}
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

func (s *Server) sendError(c *client, requestID, code, message string) {
	msg, _ := protocol.NewErrorMessage(requestID, code, message)
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

// broadcast sends a message to all connected clients.
func (s *Server) broadcast(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for c := range s.clients {
		c.enqueue(data)
	}
}

// OnSessionsReset is the callback for the workspace watcher.
func (s *Server) OnSessionsReset(sessions []session.Session) {
	for _, sess := range sessions {
		s.logger.Info("session_reset", "session", sess.ID, "cwd", sess.Cwd)
		msg, err := protocol.NewMessage(protocol.TypeSessionReset, protocol.SessionResetPayload{
			SessionID: sess.ID,
			Cwd:       sess.Cwd,
		})
		if err != nil {
			continue
		}
		s.broadcast(msg)
	}
}
