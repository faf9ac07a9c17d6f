package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/p2precorder/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes operator updates to every connected websocket. The most recent
// message of each type is replayed to new connections.
type Hub struct {
	readLimit  int64
	pingPeriod time.Duration

	mu    sync.RWMutex
	conns map[core.SignalConnection]struct{}
	last  map[string]core.Frame
}

func NewHub(readLimit int64, pingPeriod time.Duration) *Hub {
	return &Hub{
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
		conns:      make(map[core.SignalConnection]struct{}),
		last:       make(map[string]core.Frame),
	}
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Broadcast sends {type, data} to all connections without blocking.
func (h *Hub) Broadcast(typ string, v any) {
	b, err := json.Marshal(envelope{Type: typ, Data: v})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("broadcast marshal")
		return
	}
	h.mu.Lock()
	h.last[typ] = b
	conns := make([]core.SignalConnection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("type", typ).Msg("dropping slow ws client")
			h.drop(c)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(c core.SignalConnection) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	replay := make([]core.Frame, 0, len(h.last))
	for _, b := range h.last {
		replay = append(replay, b)
	}
	h.mu.Unlock()
	for _, b := range replay {
		if err := c.TrySend(b); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) remove(c core.SignalConnection) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// drop unregisters c and closes it; its pumps exit on their own.
func (h *Hub) drop(c core.SignalConnection) {
	h.remove(c)
	c.Close()
}

// Serve upgrades the request and runs the connection until ctx is done or
// the peer goes away.
func (h *Hub) Serve(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	log.Info().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	h.add(conn)
	go h.writePump(ctx, conn)
	go func() {
		defer cancel()
		defer h.remove(conn)
		h.readPump(ctx, conn)
	}()
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(b core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (h *Hub) writePump(ctx context.Context, c *wsConn) {
	var ping <-chan time.Time
	if h.pingPeriod > 0 {
		t := time.NewTicker(h.pingPeriod)
		defer t.Stop()
		ping = t.C
	}
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Debug().Err(err).Str("module", "adapters.http").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("writePump write error")
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *wsConn) {
	defer c.Close()
	if h.readLimit > 0 {
		c.conn.SetReadLimit(h.readLimit)
	}
	if h.pingPeriod > 0 {
		wait := h.pingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.http").Msg("readPump closing")
			return
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("bad json")
			continue
		}
		switch env.Type {
		case "ping":
			b, _ := json.Marshal(envelope{Type: "pong"})
			_ = c.TrySend(b)
		default:
			log.Warn().Str("module", "adapters.http").Str("type", env.Type).Msg("unknown ws message")
		}
	}
}
