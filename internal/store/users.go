package store

import (
	"database/sql"
	"fmt"
	"time"
)

type User struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Color    string    `json:"color,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

func (s *Store) SaveUser(u *User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, username, color, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			color = excluded.color,
			last_seen = excluded.last_seen`,
		u.ID, u.Username, u.Color, s.stamp(u.LastSeen))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(id string) (*User, error) {
	var (
		u        User
		color    sql.NullString
		lastSeen int64
	)
	err := s.db.QueryRow(`SELECT id, username, color, last_seen FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &color, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Color = color.String
	u.LastSeen = time.UnixMilli(lastSeen)
	return &u, nil
}

// TouchUser records the user's last activity. Unknown ids are ignored.
func (s *Store) TouchUser(id string) error {
	_, err := s.db.Exec(`UPDATE users SET last_seen = ? WHERE id = ?`, s.stamp(time.Time{}), id)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}
