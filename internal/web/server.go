package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/mtzanidakis/swarmchat/internal/config"
	"github.com/mtzanidakis/swarmchat/internal/events"
	"github.com/mtzanidakis/swarmchat/internal/gateway"
	"github.com/mtzanidakis/swarmchat/internal/natsbus"
	"github.com/mtzanidakis/swarmchat/internal/store"
	"github.com/nats-io/nats.go"
)

type Server struct {
	gw        *gateway.Gateway
	store     *store.Store
	bus       *natsbus.Bus
	nats      *natsbus.Client
	metrics   http.Handler
	hub       *Hub
	cfg       config.WebConfig
	history   int
	version   string
	startedAt time.Time
}

// NewServer wires the HTTP surface. metrics may be nil to disable /metrics.
func NewServer(gw *gateway.Gateway, s *store.Store, bus *natsbus.Bus, metrics http.Handler, cfg config.WebConfig, historyLimit int, version string) *Server {
	return &Server{
		gw:        gw,
		store:     s,
		bus:       bus,
		metrics:   metrics,
		hub:       NewHub(),
		cfg:       cfg,
		history:   historyLimit,
		version:   version,
		startedAt: time.Now(),
	}
}

func (s *Server) Start(ctx context.Context) error {
	handler, err := s.Handler(ctx)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler starts the hub and event forwarding and returns the routed handler.
// Both stop when ctx is done.
func (s *Server) Handler(ctx context.Context) (http.Handler, error) {
	go s.hub.Run(ctx)

	// Subscribe to NATS events and broadcast to WebSocket
	if err := s.subscribeEvents(ctx); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	s.registerAPI(mux)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("/api/ws", s.handleWebSocket(ctx))

	return s.withMiddleware(mux), nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"status":         "ok",
		"allowedOrigins": s.cfg.AllowedOrigins,
	})
}

func (s *Server) subscribeEvents(ctx context.Context) error {
	if s.bus == nil {
		return nil
	}
	client, err := natsbus.NewClient(s.bus)
	if err != nil {
		return fmt.Errorf("web server nats client: %w", err)
	}
	s.nats = client

	// Forward all event topics to WebSocket as raw JSON
	_, err = client.Subscribe(natsbus.TopicEventsAll, func(msg *nats.Msg) {
		var event events.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("invalid NATS event payload", "error", err)
			return
		}
		s.hub.Broadcast(event)
	})
	if err != nil {
		client.Close()
		return fmt.Errorf("subscribe events: %w", err)
	}
	if err := client.Flush(); err != nil {
		client.Close()
		return fmt.Errorf("flush subscription: %w", err)
	}

	go func() {
		<-ctx.Done()
		client.Close()
	}()
	return nil
}
