// Package metrics exposes Prometheus instruments for dispatch and completion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns its own registry so tests and multiple instances never
// collide on the default one.
type Recorder struct {
	registry *prometheus.Registry

	dispatchTotal      *prometheus.CounterVec
	reactionsTotal     prometheus.Counter
	interactionsTotal  prometheus.Counter
	completionsTotal   *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	promptTokens       prometheus.Counter
	rateLimitedTotal   *prometheus.CounterVec
	queueLength        prometheus.Gauge
	availableAgents    prometheus.Gauge
	activeGenerations  prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmchat_dispatch_total",
				Help: "Chat requests by dispatch outcome",
			},
			[]string{"state"},
		),
		reactionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarmchat_reactions_total",
			Help: "Secondary agent reactions produced",
		}),
		interactionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarmchat_autonomous_rounds_total",
			Help: "Autonomous agent-to-agent rounds produced",
		}),
		completionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmchat_completions_total",
				Help: "Completion attempts by provider and status",
			},
			[]string{"provider", "status"},
		),
		completionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmchat_completion_duration_seconds",
				Help:    "Duration of completion attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		promptTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarmchat_prompt_tokens_total",
			Help: "Estimated prompt tokens sent to completion providers",
		}),
		rateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmchat_rate_limited_total",
				Help: "Chat messages refused by the rate limiter",
			},
			[]string{"reason"},
		),
		queueLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarmchat_queue_length",
			Help: "Requests waiting for an idle agent",
		}),
		availableAgents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarmchat_available_agents",
			Help: "Agents currently idle",
		}),
		activeGenerations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarmchat_active_generations",
			Help: "Generation calls currently in flight",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) DispatchOutcome(state string) {
	r.dispatchTotal.WithLabelValues(state).Inc()
}

func (r *Recorder) Reactions(n int) {
	r.reactionsTotal.Add(float64(n))
}

func (r *Recorder) AutonomousRound() {
	r.interactionsTotal.Inc()
}

// ObserveCompletion satisfies llm.Observer.
func (r *Recorder) ObserveCompletion(provider string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.completionsTotal.WithLabelValues(provider, status).Inc()
	r.completionDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (r *Recorder) PromptTokens(n int) {
	if n > 0 {
		r.promptTokens.Add(float64(n))
	}
}

func (r *Recorder) RateLimited(reason string) {
	r.rateLimitedTotal.WithLabelValues(reason).Inc()
}

func (r *Recorder) SetQueueLength(n int) {
	r.queueLength.Set(float64(n))
}

func (r *Recorder) SetAvailableAgents(n int) {
	r.availableAgents.Set(float64(n))
}

func (r *Recorder) GenerationStarted() {
	r.activeGenerations.Inc()
}

func (r *Recorder) GenerationFinished() {
	r.activeGenerations.Dec()
}
