package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/mtzanidakis/swarmchat/internal/config"
	"github.com/mtzanidakis/swarmchat/internal/generator"
	"github.com/mtzanidakis/swarmchat/internal/queue"
	"github.com/mtzanidakis/swarmchat/internal/registry"
)

type State string

const (
	StateDispatched State = "dispatched"
	StateQueued     State = "queued"
	StateRejected   State = "rejected"
)

const (
	ReasonQueueFull        = "Queue is full. Please try again later."
	ReasonProcessingFailed = "Failed to process message"

	DefaultInteractionInterval = 30 * time.Second
)

// BusyReason is the rejection text for a named agent that is busy or unknown.
func BusyReason(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r != utf8.RuneError {
		name = string(unicode.ToUpper(r)) + name[size:]
	}
	return name + " is currently busy. Please try again later."
}

type Request struct {
	UserID      string
	Text        string
	TargetAgent string
}

type Outcome struct {
	State     State
	Agent     registry.Agent
	Responses []generator.Response
	Position  int
	Reason    string
}

// Responder produces one reply for an agent. *generator.Generator satisfies it.
type Responder interface {
	Generate(ctx context.Context, agent registry.Agent, message string) (generator.Response, error)
	GenerateAutonomous(ctx context.Context, agent registry.Agent, message string) (generator.Response, error)
}

// Rand is the random source used for reaction and autonomous draws.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type Metrics interface {
	DispatchOutcome(state string)
	Reactions(n int)
	AutonomousRound()
	SetQueueLength(n int)
	SetAvailableAgents(n int)
	GenerationStarted()
	GenerationFinished()
	PromptTokens(n int)
}

type Option func(*Orchestrator)

func WithRand(r Rand) Option {
	return func(o *Orchestrator) { o.rnd = r }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithInteractionInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.interactionInterval = d }
}

// Orchestrator binds chat requests to agents. Agents are marked busy the
// moment they are selected and released as soon as their generation call
// returns.
type Orchestrator struct {
	registry *registry.Registry
	queue    *queue.Queue
	gen      Responder
	cfg      config.SwarmConfig
	metrics  Metrics
	now      func() time.Time

	// MaxConcurrentChats bounds generation calls across all requests.
	slots *semaphore.Weighted

	rndMu sync.Mutex
	rnd   Rand

	interactionMu       sync.Mutex
	interactionInterval time.Duration
	lastInteraction     time.Time
}

func New(reg *registry.Registry, q *queue.Queue, gen Responder, cfg config.SwarmConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:            reg,
		queue:               q,
		gen:                 gen,
		cfg:                 cfg,
		metrics:             nopMetrics{},
		now:                 time.Now,
		interactionInterval: DefaultInteractionInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rnd == nil {
		o.rnd = rand.New(rand.NewPCG(uint64(o.now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if cfg.MaxConcurrentChats > 0 {
		o.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrentChats))
	}
	return o
}

func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// HandleRequest resolves a chat request to DISPATCHED, QUEUED or REJECTED.
// A dispatched outcome carries the primary response first, followed by any
// reactions. On failure no partial responses are returned.
func (o *Orchestrator) HandleRequest(ctx context.Context, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch panic", "user", req.UserID, "panic", r)
			out = Outcome{State: StateRejected, Reason: ReasonProcessingFailed}
		}
		o.metrics.DispatchOutcome(string(out.State))
		o.publishGauges()
	}()

	var (
		agent      registry.Agent
		ok         bool
		candidates []registry.Agent
	)
	if req.TargetAgent != "" {
		agent, ok = o.registry.AcquireByName(req.TargetAgent)
		if !ok {
			return Outcome{State: StateRejected, Reason: BusyReason(req.TargetAgent)}
		}
		candidates = []registry.Agent{agent}
	} else {
		agent, ok = o.registry.AcquireAvailable()
		if !ok {
			return o.enqueue(req)
		}
		candidates = o.registry.List()
	}

	slog.Info("dispatching request", "user", req.UserID, "agent", agent.Name, "targeted", req.TargetAgent != "")
	responses, err := o.respond(ctx, req, agent, candidates)
	if err != nil {
		slog.Error("dispatch failed", "user", req.UserID, "agent", agent.Name, "error", err)
		return Outcome{State: StateRejected, Agent: agent, Reason: ReasonProcessingFailed}
	}
	return Outcome{State: StateDispatched, Agent: agent, Responses: responses}
}

func (o *Orchestrator) enqueue(req Request) Outcome {
	if !o.queue.Enqueue(queue.Entry{
		UserID:      req.UserID,
		Priority:    o.cfg.DefaultPriority,
		RequestType: queue.RequestChat,
	}) {
		slog.Warn("queue full, rejecting request", "user", req.UserID)
		return Outcome{State: StateRejected, Reason: ReasonQueueFull}
	}
	pos := o.queue.PositionOf(req.UserID)
	slog.Info("no agent available, request queued", "user", req.UserID, "position", pos)
	return Outcome{State: StateQueued, Position: pos}
}

// respond expects primary to be already acquired.
func (o *Orchestrator) respond(ctx context.Context, req Request, primary registry.Agent, candidates []registry.Agent) ([]generator.Response, error) {
	first, err := o.run(ctx, primary, req.Text, o.gen.Generate)
	if err != nil {
		return nil, err
	}
	first.UserID = req.UserID
	responses := []generator.Response{first}

	if o.float64() >= o.cfg.ReactionProbability {
		return responses, nil
	}
	others := make([]registry.Agent, 0, len(candidates))
	for _, a := range candidates {
		if a.ID != primary.ID {
			others = append(others, a)
		}
	}
	if len(others) == 0 {
		return responses, nil
	}

	n := o.intN(2) + 1
	o.shuffle(others)
	n = min(n, len(others))

	prompt := generator.ReactionPrompt(req.Text, primary.Name, first.Message)
	for _, other := range others[:n] {
		a, ok := o.registry.AcquireByID(other.ID)
		if !ok {
			slog.Debug("reacting agent busy, skipping", "agent", other.Name)
			continue
		}
		r, err := o.run(ctx, a, prompt, o.gen.Generate)
		if err != nil {
			return nil, err
		}
		r.UserID = req.UserID
		responses = append(responses, r)
	}
	o.metrics.Reactions(len(responses) - 1)
	return responses, nil
}

type generateFunc func(ctx context.Context, agent registry.Agent, message string) (generator.Response, error)

// run calls fn for an acquired agent and releases the agent when fn returns,
// panics included.
func (o *Orchestrator) run(ctx context.Context, agent registry.Agent, message string, fn generateFunc) (generator.Response, error) {
	defer o.registry.Release(agent.ID)

	if o.slots != nil {
		if err := o.slots.Acquire(ctx, 1); err != nil {
			return generator.Response{}, fmt.Errorf("wait for generation slot: %w", err)
		}
		defer o.slots.Release(1)
	}

	o.metrics.GenerationStarted()
	defer o.metrics.GenerationFinished()

	resp, err := fn(ctx, agent, message)
	if err != nil {
		return generator.Response{}, err
	}
	o.metrics.PromptTokens(resp.Context.PromptTokens)
	return resp, nil
}

type QueueStatus struct {
	QueueLength     int `json:"queueLength"`
	AvailableAgents int `json:"availableAgents"`
	ActiveChats     int `json:"activeChats"`
	Position        int `json:"position"`
}

// QueueStatus reports queue and roster state, with the caller's position
// when userID is waiting.
func (o *Orchestrator) QueueStatus(userID string) QueueStatus {
	st := o.queue.Status(o.registry)
	return QueueStatus{
		QueueLength:     st.QueueLength,
		AvailableAgents: st.AvailableAgents,
		ActiveChats:     o.registry.Len() - st.AvailableAgents,
		Position:        o.queue.PositionOf(userID),
	}
}

// SweepQueue drops expired queue entries.
func (o *Orchestrator) SweepQueue() int {
	n := o.queue.Sweep()
	if n > 0 {
		slog.Info("expired queue entries removed", "count", n)
	}
	o.publishGauges()
	return n
}

// CancelQueued removes every queue entry of a user.
func (o *Orchestrator) CancelQueued(userID string) int {
	n := o.queue.Remove(userID)
	o.publishGauges()
	return n
}

func (o *Orchestrator) publishGauges() {
	st := o.queue.Status(o.registry)
	o.metrics.SetQueueLength(st.QueueLength)
	o.metrics.SetAvailableAgents(st.AvailableAgents)
}

func (o *Orchestrator) float64() float64 {
	o.rndMu.Lock()
	defer o.rndMu.Unlock()
	return o.rnd.Float64()
}

func (o *Orchestrator) intN(n int) int {
	o.rndMu.Lock()
	defer o.rndMu.Unlock()
	return o.rnd.IntN(n)
}

func (o *Orchestrator) shuffle(agents []registry.Agent) {
	o.rndMu.Lock()
	defer o.rndMu.Unlock()
	o.rnd.Shuffle(len(agents), func(i, j int) { agents[i], agents[j] = agents[j], agents[i] })
}

type nopMetrics struct{}

func (nopMetrics) DispatchOutcome(string) {}
func (nopMetrics) Reactions(int)          {}
func (nopMetrics) AutonomousRound()       {}
func (nopMetrics) SetQueueLength(int)     {}
func (nopMetrics) SetAvailableAgents(int) {}
func (nopMetrics) GenerationStarted()     {}
func (nopMetrics) GenerationFinished()    {}
func (nopMetrics) PromptTokens(int)       {}
