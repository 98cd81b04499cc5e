package queue

import (
	"sync"
	"time"
)

const (
	RequestChat = "chat"
)

type Entry struct {
	UserID          string    `json:"userId"`
	Timestamp       time.Time `json:"timestamp"`
	Priority        int       `json:"priority"`
	RequestType     string    `json:"requestType"`
	AgentPreference string    `json:"agentPreference,omitempty"`
}

// Less reports whether a should be placed ahead of b. Insertion is stable, so
// entries that compare equal keep arrival order.
type Less func(a, b Entry) bool

// ByPriority puts higher priority values first.
func ByPriority(a, b Entry) bool {
	return a.Priority > b.Priority
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithOrdering(less Less) Option {
	return func(q *Queue) { q.less = less }
}

// Queue is a bounded wait list whose entries expire once they are timeout old.
// Expiry is lazy: it runs at the start of every operation and can also be
// triggered with Sweep.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
	timeout time.Duration
	now     func() time.Time
	less    Less
}

func New(maxSize int, timeout time.Duration, opts ...Option) *Queue {
	q := &Queue{
		maxSize: maxSize,
		timeout: timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue stamps the entry with the current time and adds it. It returns
// false without changing the queue when the queue is at capacity.
func (q *Queue) Enqueue(e Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweep()
	if len(q.entries) >= q.maxSize {
		return false
	}

	e.Timestamp = q.now()
	q.insert(e)
	q.sweep()
	return true
}

func (q *Queue) insert(e Entry) {
	if q.less == nil {
		q.entries = append(q.entries, e)
		return
	}
	i := len(q.entries)
	for i > 0 && q.less(e, q.entries[i-1]) {
		i--
	}
	q.entries = append(q.entries, Entry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
}

// PositionOf returns the 1-based position of the first entry for userID, or
// 0 when the user is not waiting.
func (q *Queue) PositionOf(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweep()
	for i, e := range q.entries {
		if e.UserID == userID {
			return i + 1
		}
	}
	return 0
}

// Dequeue pops the head entry.
func (q *Queue) Dequeue() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweep()
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	e := q.entries[0]
	n := copy(q.entries, q.entries[1:])
	q.entries[n] = Entry{}
	q.entries = q.entries[:n]
	return e, true
}

// Remove drops every entry for userID and returns how many were removed.
func (q *Queue) Remove(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.retain(func(e Entry) bool { return e.UserID != userID })
}

// Sweep removes expired entries and returns how many were dropped.
func (q *Queue) Sweep() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sweep()
}

func (q *Queue) sweep() int {
	now := q.now()
	return q.retain(func(e Entry) bool { return now.Sub(e.Timestamp) < q.timeout })
}

// retain keeps the entries matching keep, in order, and returns how many
// were dropped.
func (q *Queue) retain(keep func(Entry) bool) int {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if keep(e) {
			kept = append(kept, e)
		}
	}
	removed := len(q.entries) - len(kept)
	// clear the tail so dropped entries can be collected
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = Entry{}
	}
	q.entries = kept
	return removed
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sweep()
	return len(q.entries)
}

func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sweep()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// AvailabilityCounter reports how many agents are idle.
type AvailabilityCounter interface {
	AvailableCount() int
}

type Status struct {
	QueueLength     int `json:"queueLength"`
	AvailableAgents int `json:"availableAgents"`
}

func (q *Queue) Status(agents AvailabilityCounter) Status {
	return Status{
		QueueLength:     q.Len(),
		AvailableAgents: agents.AvailableCount(),
	}
}
