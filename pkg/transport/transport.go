package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sfim/ledger/pkg/agreement"
)

const (
	pingInterval   = 10 * time.Second
	pongTimeout    = 20 * time.Second
	backoffBase    = 10 * time.Second
	backoffCap     = 60 * time.Second
	maxDialRetries = 3
)

// Handler receives a decoded inbound PhaseMessage. Returned errors are
// logged, not propagated to the transport — a bad handler result must
// not tear down the connection.
type Handler func(ctx context.Context, msg *agreement.PhaseMessage) error

// Config wires a Transport's peer set and inbound handler.
type Config struct {
	NodeID     int
	ListenAddr string         // e.g. ":7000"
	Peers      map[int]string // node id -> base URL, e.g. "http://host:7001"
	Handler    Handler
	Logger     *log.Logger
}

// Transport is a websocket-based peer-to-peer fan-out satisfying
// agreement.Broadcaster. One inbound listener accepts connections from
// any peer on "/peer"; one outbound dialer goroutine per configured peer
// maintains a connection with bounded exponential backoff.
type Transport struct {
	nodeID     int
	listenAddr string
	peerURLs   map[int]string
	handler    Handler
	logger     *log.Logger
	upgrader   websocket.Upgrader

	mu    sync.RWMutex
	conns map[int]*websocket.Conn

	server *http.Server
}

func New(cfg Config) *Transport {
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Transport] ", log.LstdFlags)
	}
	return &Transport{
		nodeID:     cfg.NodeID,
		listenAddr: cfg.ListenAddr,
		peerURLs:   cfg.Peers,
		handler:    cfg.Handler,
		logger:     cfg.Logger,
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		conns:      make(map[int]*websocket.Conn),
	}
}

// Start launches the inbound listener and one outbound dialer per peer.
// It returns once the listener is bound; dialers and the accept loop run
// in background goroutines for the lifetime of ctx.
func (t *Transport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/peer", t.handlePeerConn)
	t.server = &http.Server{Addr: t.listenAddr, Handler: mux}

	ln, err := net.Listen("tcp", t.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", t.listenAddr, err)
	}

	go func() {
		if err := t.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			t.logger.Printf("peer listener stopped: %v", err)
		}
	}()

	for peerID, url := range t.peerURLs {
		if peerID == t.nodeID {
			continue
		}
		go t.dialWithBackoff(ctx, peerID, url)
	}

	return nil
}

// Close shuts down the listener and every peer connection.
func (t *Transport) Close() error {
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, c := range t.conns {
		_ = c.Close()
		delete(t.conns, id)
	}
	return nil
}

// dialWithBackoff maintains an outbound connection to one peer,
// reconnecting with bounded exponential backoff (base 10s, cap 60s) up
// to maxDialRetries consecutive failures before giving up on that peer.
func (t *Transport) dialWithBackoff(ctx context.Context, peerID int, baseURL string) {
	wsURL := toWebsocketURL(baseURL) + "/peer"
	delay := backoffBase
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			attempts++
			t.logger.Printf("dial peer %d (%s) failed (attempt %d/%d): %v", peerID, wsURL, attempts, maxDialRetries, err)
			if attempts >= maxDialRetries {
				t.logger.Printf("giving up on peer %d after %d attempts", peerID, maxDialRetries)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = minDuration(delay*2, backoffCap)
			continue
		}

		attempts = 0
		delay = backoffBase
		t.registerConn(peerID, conn)
		t.logger.Printf("connected to peer %d", peerID)
		t.keepalive(ctx, conn)
		t.readLoop(ctx, peerID, conn)
		t.unregisterConn(peerID)
	}
}

func (t *Transport) registerConn(peerID int, conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[peerID] = conn
}

func (t *Transport) unregisterConn(peerID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, peerID)
}

// keepalive arms the pong deadline and ping ticker for one connection.
func (t *Transport) keepalive(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingInterval)); err != nil {
					return
				}
			}
		}
	}()
}

// readLoop consumes inbound frames from one peer connection until it
// closes, decoding and dispatching each to the handler. A decode error
// drops the single message; it does not close the connection.
func (t *Transport) readLoop(ctx context.Context, peerID int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.logger.Printf("peer %d connection lost: %v", peerID, err)
			return
		}
		msg, err := decode(data)
		if err != nil {
			t.logger.Printf("dropping malformed message from peer %d: %v", peerID, err)
			continue
		}
		if err := t.handler(ctx, msg); err != nil {
			t.logger.Printf("handler error for message from peer %d: %v", peerID, err)
		}
	}
}

// handlePeerConn accepts an inbound peer connection on "/peer" and runs
// its read loop until disconnect.
func (t *Transport) handlePeerConn(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Printf("upgrade failed: %v", err)
		return
	}
	t.keepalive(r.Context(), conn)
	t.readLoop(r.Context(), -1, conn)
}

// Broadcast fans msg out to every connected peer. Best-effort: a send
// failure to one peer does not block sends to others. The local node
// does not self-deliver over the wire; the agreement layer applies its
// own messages directly.
func (t *Transport) Broadcast(ctx context.Context, msg *agreement.PhaseMessage) error {
	payload, err := encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for peerID, conn := range t.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			t.logger.Printf("send to peer %d failed: %v", peerID, err)
		}
	}
	return nil
}

// toWebsocketURL rewrites an http(s) peer base URL to its ws(s) equivalent,
// mirroring the source's "http://" -> "ws://" substitution in
// connect_to_peers.
func toWebsocketURL(baseURL string) string {
	switch {
	case len(baseURL) >= 8 && baseURL[:8] == "https://":
		return "wss://" + baseURL[8:]
	case len(baseURL) >= 7 && baseURL[:7] == "http://":
		return "ws://" + baseURL[7:]
	default:
		return baseURL
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
