package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mtzanidakis/swarmchat/internal/events"
)

// client is one websocket connection. gorilla connections allow a single
// concurrent writer, so every write goes through mu.
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) ID() string { return c.id }

func (c *client) Send(ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type Hub struct {
	clients   map[*client]bool
	broadcast chan events.Event
	mu        sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*client]bool),
		broadcast: make(chan events.Event, 256),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}

			var failed []*client
			h.mu.RLock()
			for c := range h.clients {
				if err := c.write(data); err != nil {
					failed = append(failed, c)
				}
			}
			h.mu.RUnlock()

			for _, c := range failed {
				h.Unregister(c)
				c.conn.Close()
			}
		}
	}
}

func (h *Hub) Broadcast(event events.Event) {
	select {
	case h.broadcast <- event:
	default:
		slog.Warn("websocket broadcast channel full, dropping event", "type", event.Type)
	}
}

func (h *Hub) Register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) Unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (s *Server) handleWebSocket(ctx context.Context) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}

		c := &client{id: uuid.NewString(), conn: conn}
		s.hub.Register(c)
		defer func() {
			s.hub.Unregister(c)
			s.gw.Disconnect(c)
			conn.Close()
		}()

		slog.Info("client connected", "conn", c.id, "remote", r.RemoteAddr)
		if err := s.gw.Connect(c); err != nil {
			slog.Error("history replay failed", "conn", c.id, "error", err)
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var env events.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				slog.Warn("invalid websocket event", "conn", c.id, "error", err)
				continue
			}
			// AI requests wait on generation; keep reading meanwhile.
			if env.Type == events.AIMessage {
				go s.handleEvent(ctx, c, env)
				continue
			}
			s.handleEvent(ctx, c, env)
		}
		slog.Info("client disconnected", "conn", c.id)
	}
}

func (s *Server) handleEvent(ctx context.Context, c *client, env events.Envelope) {
	if err := s.gw.Handle(ctx, c, env); err != nil {
		slog.Warn("websocket event failed", "conn", c.id, "type", env.Type, "error", err)
	}
}
