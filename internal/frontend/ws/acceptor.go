// Package ws accepts browser websocket connections and bridges them to the
// session protocol handler.
package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/camcookie/maze/internal/config"
	"github.com/camcookie/maze/internal/game/protocol"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds inbound frames; client messages are small.
	maxMessageSize = 4096
)

// Acceptor serves the websocket endpoint and a health check, dispatching
// each connection's messages to the protocol handler.
type Acceptor struct {
	cfg     config.ServerConfig
	handler *protocol.Handler
	logger  *zap.Logger

	upgrader websocket.Upgrader
	srv      *http.Server

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewAcceptor creates a websocket acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ServerConfig, handler *protocol.Handler, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Game clients are served cross-origin in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", a.serveWS)
	router.HandleFunc("/healthz", a.serveHealth).Methods(http.MethodGet)
	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// ListenAndServe starts the HTTP listener and serves until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := a.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// Stop gracefully stops the acceptor, closing the listener and waiting for
// all active sessions to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false

	close(a.quit)
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown did not complete cleanly", zap.Error(err))
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet
// listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Acceptor) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// serveWS upgrades the request and runs the read loop on the request
// goroutine, with a write pump draining the connection's outbox.
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	sock, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("upgrading connection",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	start := time.Now()
	conn := a.handler.NewConn()
	a.logger.Info("client connected",
		zap.String("conn", conn.ID),
		zap.String("remote_addr", r.RemoteAddr),
	)

	a.wg.Add(1)
	go a.writePump(sock, conn)

	a.readPump(sock, conn)

	a.logger.Info("session ended",
		zap.String("conn", conn.ID),
		zap.Duration("duration", time.Since(start)),
	)
}

// readPump feeds inbound frames to the protocol handler until the
// connection drops. Disconnecting closes the outbox, which in turn stops
// the write pump.
func (a *Acceptor) readPump(sock *websocket.Conn, conn *protocol.Conn) {
	defer a.handler.Disconnect(conn)

	sock.SetReadLimit(maxMessageSize)
	_ = sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Debug("read failed",
					zap.String("conn", conn.ID),
					zap.Error(err),
				)
			}
			return
		}
		a.handler.HandleMessage(conn, data)
	}
}

// writePump serializes outbox events onto the socket and keeps the
// connection alive with pings. It exits when the outbox closes.
func (a *Acceptor) writePump(sock *websocket.Conn, conn *protocol.Conn) {
	defer a.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sock.Close()
	}()

	for {
		select {
		case event, ok := <-conn.Outbox.Events():
			_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sock.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sock.WriteJSON(event); err != nil {
				a.logger.Debug("write failed",
					zap.String("conn", conn.ID),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-a.quit:
			_ = sock.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
