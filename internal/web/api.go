package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/agents", s.listAgents)
	mux.HandleFunc("GET /api/queue", s.getQueueStatus)
	mux.HandleFunc("GET /api/history", s.getHistory)
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.gw.Orchestrator().Registry().List())
}

func (s *Server) getQueueStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.gw.Orchestrator().QueueStatus(r.URL.Query().Get("user_id")))
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.history
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, s.history)
	}

	entries, err := s.store.RecentHistory(limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		jsonResponse(w, []any{})
		return
	}
	jsonResponse(w, entries)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	orch := s.gw.Orchestrator()
	q := orch.QueueStatus("")

	jsonResponse(w, map[string]any{
		"status":           "ok",
		"agents_count":     orch.Registry().Len(),
		"available_agents": q.AvailableAgents,
		"active_chats":     q.ActiveChats,
		"queue_length":     q.QueueLength,
		"clients":          s.hub.Len(),
		"uptime":           formatUptime(time.Since(s.startedAt)),
		"timestamp":        time.Now().UTC(),
		"version":          s.version,
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
