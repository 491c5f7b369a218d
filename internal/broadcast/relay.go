package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Relay connects a local bus to a remote hub. Events this process publishes
// are sent to the hub; events from other origins are delivered locally.
type Relay struct {
	bus    *Bus
	conn   *websocket.Conn
	logger *slog.Logger
	done   chan struct{}
}

// Dial connects to the hub at url. Both ws:// and http:// forms are accepted.
func Dial(ctx context.Context, url string, bus *Bus, logger *slog.Logger) (*Relay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	url = strings.TrimSuffix(url, "/")
	if !strings.HasSuffix(url, "/ws") {
		url += "/ws"
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial broadcast hub %s: %w", url, err)
	}
	return &Relay{
		bus:    bus,
		conn:   conn,
		logger: logger.With("component", "broadcast_relay", "peer", url),
		done:   make(chan struct{}),
	}, nil
}

// Run relays in both directions until ctx is cancelled or the connection drops.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, unsubscribe := r.bus.Subscribe(100)
	defer unsubscribe()

	go func() {
		defer cancel()
		for {
			var ev Event
			if err := wsjson.Read(ctx, r.conn, &ev); err != nil {
				if ctx.Err() == nil {
					r.logger.Debug("relay read ended", "error", err)
				}
				return
			}
			if ev.Type == "" || ev.Origin == r.bus.Origin() {
				continue
			}
			r.bus.deliver(ev)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = r.conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				_ = r.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if ev.Origin != r.bus.Origin() {
				continue
			}
			if err := wsjson.Write(ctx, r.conn, ev); err != nil {
				r.logger.Warn("relay write failed", "error", err)
				return
			}
		}
	}
}

// Done is closed when Run returns.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Send writes one event directly to the hub. Used by short-lived commands
// that exit before Run would get a chance to forward.
func (r *Relay) Send(ctx context.Context, ev Event) error {
	if ev.Origin == "" {
		ev.Origin = r.bus.Origin()
	}
	if err := wsjson.Write(ctx, r.conn, ev); err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	return nil
}

// Close closes the connection without waiting for Run.
func (r *Relay) Close() error {
	return r.conn.Close(websocket.StatusNormalClosure, "")
}
