// Package events serves a live WebSocket feed of sync activity.
//
// Connected front ends receive every engine event as it happens, plus a
// status snapshot on connect. Front ends may also report connectivity
// changes back over the same socket:
//
//	{"type":"connectivity","online":true}
//
// which is applied to the shared connectivity Signal and so triggers queue
// replay on an offline to online transition.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/restreviews/restsync/internal/connectivity"
	"github.com/restreviews/restsync/internal/engine"
)

// MessageType identifies a feed message.
type MessageType string

const (
	// MessageTypeEvent carries an engine.Event.
	MessageTypeEvent MessageType = "event"

	// MessageTypeStatus carries a Status snapshot.
	MessageTypeStatus MessageType = "status"

	// MessageTypeConnectivity is sent by clients to report their network
	// state, and broadcast by the server when the state changes.
	MessageTypeConnectivity MessageType = "connectivity"
)

// Message is a feed message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is a message received from a front end.
type ClientMessage struct {
	Type   MessageType `json:"type"`
	Online *bool       `json:"online,omitempty"`
}

// Status is the snapshot sent to new clients and served on /status.
type Status struct {
	Online  bool               `json:"online"`
	Clients int                `json:"clients"`
	Queues  *engine.QueueStats `json:"queues,omitempty"`
}

// StatsFunc reports queue statistics for status snapshots.
type StatsFunc func(ctx context.Context) (engine.QueueStats, error)

// Config holds server configuration.
type Config struct {
	// Port to listen on. Zero picks a free port.
	Port int

	// Host to bind. Empty binds all interfaces.
	Host string

	// Signal receives connectivity reports from clients. Optional.
	Signal *connectivity.Signal

	// Stats supplies queue counts for status snapshots. Optional.
	Stats StatsFunc

	Logger *log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:   8090,
		Logger: log.New(os.Stderr, "[events] ", log.LstdFlags),
	}
}

// Server manages WebSocket clients and broadcasts feed messages.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	signal *connectivity.Signal
	stats  StatsFunc

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

var _ engine.Notifier = (*Server)(nil)

// NewServer creates a feed server. Call Start to begin listening.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[events] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		signal:    config.Signal,
		stats:     config.Stats,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start begins serving /ws, /health and /status.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	if s.signal != nil {
		ch, unsubscribe := s.signal.Subscribe()
		s.wg.Add(1)
		go s.relayConnectivity(ch, unsubscribe)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Event feed listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes every client and shuts the server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping event feed")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	return nil
}

// Notify implements engine.Notifier.
func (s *Server) Notify(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Printf("Failed to marshal event: %v", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeEvent, Timestamp: ev.Timestamp, Data: data})
}

// Broadcast queues msg for every connected client. It never blocks; when
// the queue is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) relayConnectivity(ch <-chan connectivity.State, unsubscribe func()) {
	defer s.wg.Done()
	defer unsubscribe()

	for {
		select {
		case <-s.ctx.Done():
			return
		case state, ok := <-ch:
			if !ok {
				return
			}
			online := state == connectivity.Online
			data, _ := json.Marshal(ClientMessage{Type: MessageTypeConnectivity, Online: &online})
			s.Broadcast(Message{Type: MessageTypeConnectivity, Data: data})
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	status, _ := json.Marshal(s.status(r.Context()))
	welcome, _ := json.Marshal(Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: status})
	_ = s.write(conn, welcome)

	go s.readLoop(conn)
}

// readLoop applies connectivity reports from a client until it disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		s.handleClientMessage(data)
	}
}

func (s *Server) handleClientMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Printf("Ignoring malformed client message: %v", err)
		return
	}

	switch msg.Type {
	case MessageTypeConnectivity:
		if msg.Online == nil {
			s.logger.Printf("Ignoring connectivity message without online field")
			return
		}
		if s.signal == nil {
			return
		}
		state := connectivity.State(*msg.Online)
		if s.signal.Set(state) {
			s.logger.Printf("Client reported %s", state)
		}
	default:
		s.logger.Printf("Ignoring client message of type %q", msg.Type)
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

func (s *Server) status(ctx context.Context) Status {
	st := Status{Online: true, Clients: s.ClientCount()}
	if s.signal != nil {
		st.Online = s.signal.Online()
	}
	if s.stats != nil {
		qs, err := s.stats(ctx)
		if err != nil {
			s.logger.Printf("Warning: failed to read queue stats: %v", err)
		} else {
			st.Queues = &qs
		}
	}
	return st
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.status(r.Context()))
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
