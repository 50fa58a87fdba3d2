// Package monitoring streams run progress to websocket clients.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"digitlab/db"
	"digitlab/ml"
	"digitlab/search"
)

// MessageType tags a message.
type MessageType string

const (
	SearchProgress MessageType = "search_progress"
	ModelResult    MessageType = "model_result"
	RunStatus      MessageType = "run_status"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 256
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// ModelResultMessage summarises one evaluated model.
type ModelResultMessage struct {
	Model    string  `json:"model"`
	Accuracy float64 `json:"accuracy"`
	MacroF1  float64 `json:"macro_f1"`
	Error    string  `json:"error,omitempty"`
}

// RunStatusMessage marks run boundaries.
type RunStatusMessage struct {
	Status  string `json:"status"`
	Samples int    `json:"samples,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Client is one websocket connection.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// Hub fans messages out to connected clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	nextID atomic.Int64
	sent   atomic.Int64
}

// NewHub creates a hub; call Start to begin dispatching.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs the dispatch loop until Stop.
func (h *Hub) Start() {
	defer h.logger.Debug("websocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("client", client.clientID), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", zap.String("client", client.clientID), zap.Int("total", total))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends the dispatch loop and disconnects every client.
func (h *Hub) Stop() {
	h.cancel()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MessagesSent returns how many messages were queued for broadcast.
func (h *Hub) MessagesSent() int64 { return h.sent.Load() }

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		clientID: fmt.Sprintf("client-%d", h.nextID.Add(1)),
	}
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}
	go client.writePump(h.logger)
	go client.readPump(h)
}

// Broadcast queues a typed message for every client. A full queue drops it.
func (h *Hub) Broadcast(kind MessageType, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	msg, err := json.Marshal(Message{
		Type:      kind,
		Timestamp: time.Now().UTC(),
		Data:      payload,
		ID:        fmt.Sprintf("%s-%d", kind, h.sent.Add(1)),
	})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue is full, dropping message", zap.String("type", string(kind)))
	}
	return nil
}

// OnProgress forwards grid-search progress to clients.
func (h *Hub) OnProgress(p search.Progress) {
	if err := h.Broadcast(SearchProgress, p); err != nil {
		h.logger.Warn("progress broadcast failed", zap.Error(err))
	}
}

// PublishEvaluations sends one model_result message per evaluation.
func (h *Hub) PublishEvaluations(evals []*ml.Evaluation) {
	for _, e := range evals {
		if e == nil {
			continue
		}
		msg := ModelResultMessage{Model: e.Model, Accuracy: e.Accuracy, MacroF1: e.Macro.F1}
		if e.Err != nil {
			msg.Error = e.Err.Error()
		}
		if err := h.Broadcast(ModelResult, msg); err != nil {
			h.logger.Warn("result broadcast failed", zap.Error(err))
		}
	}
}

func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write failed", zap.String("client", c.clientID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and unregisters on disconnect.
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("client", c.clientID), zap.Error(err))
			}
			return
		}
	}
}

// Server exposes the hub at /ws/progress, run metrics at /metrics and a JSON
// status at /status.
type Server struct {
	hub     *Hub
	metrics *MetricsCollector
	srv     *http.Server
	logger  *zap.Logger
	started time.Time

	mu      sync.Mutex
	running bool
	addr    net.Addr
	history History
}

// History is the persisted training log served under /api/training-log.
type History interface {
	LoadTrainingLog(ctx context.Context) ([]db.TrainingLog, error)
}

// NewServer creates a server listening on addr once started.
func NewServer(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{hub: NewHub(logger), metrics: NewMetricsCollector(), logger: logger}
	mux := http.NewServeMux()
	mux.Handle("/ws/progress", s.hub)
	mux.Handle("/metrics", s.metrics)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("GET /api/training-log", s.handleTrainingLog)
	handler := Chain(RecoveryMiddleware(logger), LoggerMiddleware(logger))(mux)
	s.srv = &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Hub returns the underlying hub.
func (s *Server) Hub() *Hub { return s.hub }

// Metrics returns the run metrics collector.
func (s *Server) Metrics() *MetricsCollector { return s.metrics }

// OnProgress feeds both the hub and the metrics collector.
func (s *Server) OnProgress(p search.Progress) {
	s.metrics.OnProgress(p)
	s.hub.OnProgress(p)
}

// PublishEvaluations records and broadcasts model results.
func (s *Server) PublishEvaluations(evals []*ml.Evaluation) {
	s.metrics.ObserveEvaluations(evals)
	s.hub.PublishEvaluations(evals)
}

// PublishStatus broadcasts a run status change.
func (s *Server) PublishStatus(status RunStatusMessage) {
	if err := s.hub.Broadcast(RunStatus, status); err != nil {
		s.logger.Warn("status broadcast failed", zap.Error(err))
	}
}

// SetHistory attaches the store backing /api/training-log.
func (s *Server) SetHistory(h History) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = h
}

// Addr returns the bound address after Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("monitor is already running")
	}
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	s.addr = ln.Addr()
	s.started = time.Now()
	s.running = true

	go s.hub.Start()
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitor server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("progress monitor listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the HTTP server down and disconnects clients.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	s.hub.Stop()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := struct {
		ConnectedClients int           `json:"connected_clients"`
		MessagesSent     int64         `json:"messages_sent"`
		Uptime           time.Duration `json:"uptime"`
	}{
		ConnectedClients: s.hub.ClientCount(),
		MessagesSent:     s.hub.MessagesSent(),
		Uptime:           time.Since(s.started),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	h := s.history
	s.mu.Unlock()
	if h == nil {
		http.Error(w, `{"error":"no database configured"}`, http.StatusNotFound)
		return
	}
	logs, err := h.LoadTrainingLog(r.Context())
	if err != nil {
		s.logger.Error("load training log", zap.Error(err))
		http.Error(w, `{"error":"failed to load training log"}`, http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []db.TrainingLog{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logs)
}
