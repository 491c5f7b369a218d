package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Hub serves a websocket endpoint that relays events between processes.
//
// Events published on the local bus by this process are written to every
// connected client. Events a client sends are delivered to the local bus and
// forwarded to the other clients.
type Hub struct {
	bus    *Bus
	logger *slog.Logger

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	listener net.Listener
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub bound to bus. Call Run or Start to begin relaying.
func NewHub(bus *Bus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		bus:     bus,
		logger:  logger.With("component", "broadcast_hub"),
		clients: make(map[*websocket.Conn]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler returns the HTTP handler with /ws and /health routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/health", h.handleHealth)
	return mux
}

// Run starts forwarding local bus events to clients. It is called by Start;
// callers serving Handler themselves must call it once.
func (h *Hub) Run() {
	events, unsubscribe := h.bus.Subscribe(100)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-h.ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Origin != h.bus.Origin() {
					continue
				}
				h.fanOut(ev, nil)
			}
		}
	}()
}

// Start listens on addr and serves the hub.
func (h *Hub) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	h.listener = ln
	h.server = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	h.Run()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.logger.Info("broadcast hub listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Warn("broadcast hub server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once Start succeeded.
func (h *Hub) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Stop disconnects clients and shuts down the server.
func (h *Hub) Stop() error {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "hub shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	var err error
	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := h.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("shutdown broadcast hub: %w", shutdownErr)
		}
	}
	h.wg.Wait()
	return err
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanOut(ev Event, except *websocket.Conn) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("marshal event", "error", err)
		return
	}

	h.clientsMu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		if conn != except {
			clients = append(clients, conn)
		}
	}
	h.clientsMu.RUnlock()

	for _, conn := range clients {
		ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.logger.Debug("drop client after write failure", "error", err)
			h.removeClient(conn)
		}
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Debug("client connected", "clients", count)

	h.readLoop(conn)
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)
	for {
		_, data, err := conn.Read(h.ctx)
		if err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			h.logger.Debug("ignore malformed event", "error", err)
			continue
		}
		if ev.Origin == h.bus.Origin() {
			continue
		}
		h.bus.deliver(ev)
		h.fanOut(ev, conn)
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	_, exists := h.clients[conn]
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()
	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug("client disconnected", "clients", count)
	}
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": h.ClientCount(),
	})
}
