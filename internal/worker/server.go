package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"

	"github.com/lowline/skirmish/internal/protocol"
)

const (
	maxClientFrame = 64 * 1024
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
	pingInterval   = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	// Gameplay clients connect from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a websocket to ClientConn. Writes are mutex-serialized
// because both the event loop and the ping ticker hit the socket.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) Close() error { return c.conn.Close() }

// Server is the worker's websocket frontend. It upgrades connections, runs
// the ban gate, and forwards decoded frames onto the runtime's event loop.
type Server struct {
	runtime *Runtime
	gate    *BanGate
	log     pslog.Logger
	httpSrv *http.Server
}

func NewServer(runtime *Runtime, gate *BanGate, port int, log pslog.Logger) *Server {
	s := &Server{runtime: runtime, gate: gate, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins listening in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("worker listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("worker listener failed", "error", err)
		}
	}()
}

// Shutdown stops accepting connections. Live sockets are closed by the
// runtime's shutdown handling.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	auth := r.URL.Query().Get("player")
	if auth != "" && !s.gate.Allow(r.Context(), auth) {
		http.Error(w, "banned", http.StatusForbidden)
		return
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "error", err)
		return
	}

	sock.SetReadLimit(maxClientFrame)
	_ = sock.SetReadDeadline(time.Now().Add(readTimeout))
	sock.SetPongHandler(func(string) error {
		_ = sock.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	conn := &wsConn{conn: sock}

	// Register on the event loop and wait for the assigned id before
	// reading gameplay frames.
	idCh := make(chan string, 1)
	s.runtime.Dispatch(func() {
		idCh <- s.runtime.Connect(conn, name)
	})
	var clientID string
	select {
	case clientID = <-idCh:
	case <-s.runtime.Done():
		_ = sock.Close()
		return
	}

	done := make(chan struct{})
	go s.pingLoop(conn, done)
	s.readLoop(sock, clientID)
	close(done)

	s.runtime.Dispatch(func() {
		s.runtime.Disconnect(clientID, time.Now())
	})
}

// readLoop decodes frames off the socket and hands them to the event loop.
// Malformed frames are dropped with a log line; the connection survives.
func (s *Server) readLoop(sock *websocket.Conn, clientID string) {
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("client read error", "player", clientID, "error", err)
			}
			return
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			s.log.Warn("dropping bad client frame", "player", clientID, "error", err)
			continue
		}
		s.runtime.Dispatch(func() {
			s.runtime.HandleFrame(clientID, env, time.Now())
		})
	}
}

func (s *Server) pingLoop(conn *wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
