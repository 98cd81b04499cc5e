package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Message struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	UserColor string    `json:"user_color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) SaveMessage(msg *Message) error {
	created := s.stamp(msg.CreatedAt)
	result, err := s.db.Exec(`
		INSERT INTO messages (user_id, username, content, user_color, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.UserID, msg.Username, msg.Content, msg.UserColor, created)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	msg.ID, _ = result.LastInsertId()
	msg.CreatedAt = time.UnixMilli(created)
	return nil
}

type Interaction struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	AgentID     string    `json:"agent_id"`
	AgentName   string    `json:"agent_name"`
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	UsedService string    `json:"used_service,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) SaveInteraction(in *Interaction) error {
	created := s.stamp(in.CreatedAt)
	result, err := s.db.Exec(`
		INSERT INTO ai_interactions (user_id, agent_id, agent_name, user_message, ai_response, used_service, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.UserID, in.AgentID, in.AgentName, in.UserMessage, in.AIResponse, in.UsedService, in.Error, created)
	if err != nil {
		return fmt.Errorf("save interaction: %w", err)
	}
	in.ID, _ = result.LastInsertId()
	in.CreatedAt = time.UnixMilli(created)
	return nil
}

const (
	KindUser = "user"
	KindAI   = "ai"
)

// HistoryEntry is one line of the merged chat log. For AI lines Username is
// empty and AgentName identifies the speaker.
type HistoryEntry struct {
	Kind      string    `json:"type"`
	Username  string    `json:"username,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`
	Text      string    `json:"text"`
	UserColor string    `json:"user_color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentHistory returns the last limit user messages and AI interactions
// merged in chronological order.
func (s *Store) RecentHistory(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT kind, username, agent_name, text, color, created_at FROM (
			SELECT 'user' AS kind, username, '' AS agent_name, content AS text,
				user_color AS color, created_at, id, 0 AS src
			FROM messages
			UNION ALL
			SELECT 'ai', '', agent_name, ai_response, '', created_at, id, 1
			FROM ai_interactions
		)
		ORDER BY created_at DESC, src DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e       HistoryEntry
			color   sql.NullString
			created int64
		)
		if err := rows.Scan(&e.Kind, &e.Username, &e.AgentName, &e.Text, &color, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.UserColor = color.String
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}

	// Reverse to get chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, rows.Err()
}
