package registry

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mtzanidakis/swarmchat/internal/config"
)

type Status string

const (
	StatusIdle Status = "idle"
	StatusBusy Status = "busy"
)

type Agent struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	Specialization string `json:"specialization"`
	Personality    string `json:"personality"`
	DisplayName    string `json:"displayName"`
	Color          string `json:"color,omitempty"`
	Status         Status `json:"status"`
}

// Registry holds the agent roster and is the only writer of Agent.Status.
// Iteration order is registration order.
type Registry struct {
	mu     sync.Mutex
	order  []string
	agents map[string]*Agent
}

func New() *Registry {
	return &Registry{
		agents: make(map[string]*Agent),
	}
}

// FromDefinitions registers one idle agent per definition, in list order.
func FromDefinitions(defs []config.AgentDefinition) *Registry {
	r := New()
	for _, def := range defs {
		r.Register(Agent{
			ID:             NewID(),
			Name:           def.Name,
			Role:           def.Role,
			Specialization: def.Specialization,
			Personality:    def.Personality,
			DisplayName:    def.DisplayName,
			Color:          def.Color,
			Status:         StatusIdle,
		})
	}
	return r
}

func NewID() string {
	return "agent-" + uuid.NewString()
}

// Register inserts or overwrites the agent keyed by ID. An overwrite keeps the
// agent's original position.
func (r *Registry) Register(a Agent) {
	if a.Status == "" {
		a.Status = StatusIdle
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID]; !ok {
		r.order = append(r.order, a.ID)
	}
	r.agents[a.ID] = &a
}

func (r *Registry) List() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.agents[id])
	}
	return out
}

func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// FindAvailable returns the first idle agent in registration order.
func (r *Registry) FindAvailable() (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.firstIdle(); a != nil {
		return *a, true
	}
	return Agent{}, false
}

// FindByName matches name case-insensitively. With requireIdle, busy agents
// never match.
func (r *Registry) FindByName(name string, requireIdle bool) (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.byName(name, requireIdle); a != nil {
		return *a, true
	}
	return Agent{}, false
}

// AcquireAvailable finds the first idle agent and marks it busy in one step.
func (r *Registry) AcquireAvailable() (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.firstIdle()
	if a == nil {
		return Agent{}, false
	}
	a.Status = StatusBusy
	return *a, true
}

// AcquireByName marks the named agent busy if it is idle.
func (r *Registry) AcquireByName(name string) (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.byName(name, true)
	if a == nil {
		return Agent{}, false
	}
	a.Status = StatusBusy
	return *a, true
}

// AcquireByID marks the agent busy if it exists and is idle.
func (r *Registry) AcquireByID(id string) (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.Status != StatusIdle {
		return Agent{}, false
	}
	a.Status = StatusBusy
	return *a, true
}

func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.Status = StatusIdle
	}
}

func (r *Registry) AvailableCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.agents {
		if a.Status == StatusIdle {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *Registry) firstIdle() *Agent {
	for _, id := range r.order {
		if a := r.agents[id]; a.Status == StatusIdle {
			return a
		}
	}
	return nil
}

func (r *Registry) byName(name string, requireIdle bool) *Agent {
	for _, id := range r.order {
		a := r.agents[id]
		if !strings.EqualFold(a.Name, name) {
			continue
		}
		if requireIdle && a.Status != StatusIdle {
			return nil
		}
		return a
	}
	return nil
}
