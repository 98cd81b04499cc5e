package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type Agent struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	Specialization string    `json:"specialization,omitempty"`
	Personality    string    `json:"personality,omitempty"`
	DisplayName    string    `json:"display_name,omitempty"`
	Color          string    `json:"color,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *Store) SaveAgent(a *Agent) error {
	now := s.stamp(time.Time{})
	_, err := s.db.Exec(`
		INSERT INTO agents (id, name, role, specialization, personality, display_name, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			specialization = excluded.specialization,
			personality = excluded.personality,
			display_name = excluded.display_name,
			color = excluded.color,
			updated_at = excluded.updated_at`,
		a.ID, a.Name, a.Role, a.Specialization, a.Personality, a.DisplayName, a.Color, now, now)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

const agentColumns = `id, name, role, specialization, personality, display_name, color, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(sc scanner) (*Agent, error) {
	var (
		a                                           Agent
		role, spec, personality, displayName, color sql.NullString
		createdAt, updatedAt                        int64
	)
	if err := sc.Scan(&a.ID, &a.Name, &role, &spec, &personality, &displayName, &color, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Role = role.String
	a.Specialization = spec.String
	a.Personality = personality.String
	a.DisplayName = displayName.String
	a.Color = color.String
	a.CreatedAt = time.UnixMilli(createdAt)
	a.UpdatedAt = time.UnixMilli(updatedAt)
	return &a, nil
}

func (s *Store) GetAgent(id string) (*Agent, error) {
	a, err := scanAgent(s.db.QueryRow(`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.db.Query(`SELECT ` + agentColumns + ` FROM agents ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// DeleteAgentsNotIn removes agents left over from earlier runs.
func (s *Store) DeleteAgentsNotIn(ids []string) error {
	if len(ids) == 0 {
		_, err := s.db.Exec(`DELETE FROM agents`)
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec(`DELETE FROM agents WHERE id NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete stale agents: %w", err)
	}
	return nil
}
