package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mixer-line/internal/config"
	"mixer-line/internal/mission"
	"mixer-line/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// CommandSubmitter applies operator commands to the running mission.
type CommandSubmitter interface {
	Submit(ctx context.Context, cmd mission.Command) error
}

// SnapshotSource exposes the latest published snapshot.
type SnapshotSource interface {
	Get() (models.Snapshot, bool)
}

// Message is the envelope written to websocket clients.
type Message struct {
	Type     string           `json:"type"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
	Command  string           `json:"command,omitempty"`
	OK       bool             `json:"ok,omitempty"`
	Error    string           `json:"error,omitempty"`
}

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 16
)

// client owns a queue drained by its own writer goroutine, so a slow
// dashboard never blocks the caller of Broadcast.
type client struct {
	conn *websocket.Conn
	send chan Message
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan Message, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue queues msg without blocking and reports whether it was accepted.
func (c *client) enqueue(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

type Server struct {
	server    *http.Server
	upgrader  websocket.Upgrader
	config    *config.Config
	logger    *logrus.Logger
	source    SnapshotSource
	submitter CommandSubmitter
	metrics   http.Handler

	clients map[*client]struct{}
	mutex   sync.RWMutex
}

func NewServer(cfg *config.Config, source SnapshotSource, submitter CommandSubmitter, logger *logrus.Logger) *Server {
	return &Server{
		config:    cfg,
		logger:    logger,
		source:    source,
		submitter: submitter,
		clients:   make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// SetMetricsHandler exposes h on /metrics. Call before Start.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metrics = h
}

// Handler returns the dashboard routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	s.logger.Infof("Starting dashboard server on %s", addr)

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down dashboard server...")
		s.server.Close()
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func (s *Server) Stop() {
	if s.server != nil {
		s.logger.Info("Stopping dashboard server")
		s.server.Close()
	}
}

// Broadcast queues a snapshot for every connected dashboard. Clients whose
// queue is full miss this snapshot.
func (s *Server) Broadcast(snap models.Snapshot) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	msg := Message{Type: "snapshot", Snapshot: &snap}
	for c := range s.clients {
		if !c.enqueue(msg) {
			s.logger.Debugf("Dashboard client lagging, snapshot dropped")
		}
	}
}

func (s *Server) writePump(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				s.logger.Debugf("Dropping dashboard client: %v", err)
				s.removeClient(c)
				return
			}
		}
	}
}

func (s *Server) ClientCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}

func (s *Server) removeClient(c *client) {
	s.mutex.Lock()
	delete(s.clients, c)
	s.mutex.Unlock()
	c.close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, ok := s.source.Get()
	if !ok {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Errorf("Failed to write status: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	c := newClient(conn)
	if snap, ok := s.source.Get(); ok {
		c.enqueue(Message{Type: "snapshot", Snapshot: &snap})
	}

	s.mutex.Lock()
	s.clients[c] = struct{}{}
	s.mutex.Unlock()
	go s.writePump(c)
	s.logger.Infof("Dashboard connected from %s", r.RemoteAddr)

	defer func() {
		s.removeClient(c)
		s.logger.Infof("Dashboard %s disconnected", r.RemoteAddr)
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Errorf("Read message error for %s: %v", r.RemoteAddr, err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		s.logger.Debugf("Received from %s: %s", r.RemoteAddr, string(message))
		select {
		case c.send <- s.handleCommand(r.Context(), message):
		case <-c.done:
			return
		}
	}
}

func (s *Server) handleCommand(ctx context.Context, message []byte) Message {
	reply := Message{Type: "ack"}

	cmd, err := mission.ParseCommand(message)
	if err != nil {
		reply.Command = string(message)
		reply.Error = err.Error()
		return reply
	}
	reply.Command = cmd.String()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.submitter.Submit(ctx, cmd); err != nil {
		reply.Error = err.Error()
		return reply
	}

	reply.OK = true
	return reply
}
