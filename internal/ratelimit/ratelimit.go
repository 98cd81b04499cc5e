// Package ratelimit throttles chat messages per connection.
package ratelimit

import (
	"sync"
	"time"

	"github.com/mtzanidakis/swarmchat/internal/config"
)

const (
	ReasonTooFast   = "Please wait before sending another message."
	ReasonDuplicate = "Please don't send duplicate messages."
	ReasonTooMany   = "You're sending too many messages. Please slow down."
	ReasonWarning   = "Warning: You're approaching the rate limit."
)

// Decision is the result of Check. A message can be allowed and still carry a
// Reason, which is then a warning for the sender.
type Decision struct {
	Allowed bool
	Reason  string
}

type state struct {
	lastAllowed time.Time
	count       int
	warned      bool
	lastText    string
}

type Limiter struct {
	cfg config.RateLimitConfig
	now func() time.Time

	mu    sync.Mutex
	conns map[string]*state
}

func New(cfg config.RateLimitConfig, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		cfg:   cfg,
		now:   now,
		conns: make(map[string]*state),
	}
}

// Check applies, in order: minimum interval, duplicate text, and the message
// count window. The window restarts once a full window has passed since the
// last allowed message.
func (l *Limiter) Check(connID, text string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.conns[connID]
	if !ok {
		st = &state{}
		l.conns[connID] = st
	}
	seen := !st.lastAllowed.IsZero()

	if seen && now.Sub(st.lastAllowed) < l.cfg.MinInterval {
		return Decision{Reason: ReasonTooFast}
	}
	if seen && st.lastText == text && now.Sub(st.lastAllowed) < l.cfg.DuplicateWindow {
		return Decision{Reason: ReasonDuplicate}
	}

	var warning string
	if !seen || now.Sub(st.lastAllowed) > l.cfg.Window {
		st.count = 1
		st.warned = false
	} else {
		st.count++
		if st.count > l.cfg.MaxMessages {
			return Decision{Reason: ReasonTooMany}
		}
		if st.count == l.cfg.MaxMessages && !st.warned {
			st.warned = true
			warning = ReasonWarning
		}
	}

	st.lastAllowed = now
	st.lastText = text
	return Decision{Allowed: true, Reason: warning}
}

// Truncate cuts text to the configured maximum number of runes.
func (l *Limiter) Truncate(text string) string {
	if l.cfg.MaxLength <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= l.cfg.MaxLength {
		return text
	}
	return string(runes[:l.cfg.MaxLength])
}

func (l *Limiter) Forget(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, connID)
}
