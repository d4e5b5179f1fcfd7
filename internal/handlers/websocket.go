package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local single-origin deployment
	},
}

// WebSocketHandler serves a firehose of every job and workflow event. Each
// connection gets its own bus subscription and progress throttler, so one
// slow client only drops its own events.
type WebSocketHandler struct {
	bus      *events.Bus
	throttle time.Duration
	logger   arbor.ILogger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewWebSocketHandler(bus *events.Bus, throttle time.Duration) *WebSocketHandler {
	return &WebSocketHandler{
		bus:      bus,
		throttle: throttle,
		logger:   common.GetLogger(),
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades the connection and streams events until the
// client disconnects.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	clients := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Int("clients", clients).Msg("WebSocket client connected")

	sub := h.bus.SubscribeAll()

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go h.writeLoop(conn, sub, done)
}

func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, sub *events.Subscriber, done chan struct{}) {
	defer func() {
		sub.Close()
		conn.Close()
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		h.logger.Debug().Msg("WebSocket client disconnected")
	}()

	ctx, cancel := contextFromDone(done)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(h.throttle), 1)
	lastState := make(map[string]string)

	for {
		ev, ok := sub.Next(ctx)
		if !ok {
			return
		}

		key := string(ev.EntityKind) + "/" + ev.EntityID
		if lastState[key] == ev.State && !limiter.Allow() {
			continue
		}
		lastState[key] = ev.State

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// contextFromDone cancels the returned context once done closes, so the
// subscriber wait unblocks when the reader sees the close frame.
func contextFromDone(done chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// CloseAll disconnects every client, for shutdown.
func (h *WebSocketHandler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}
