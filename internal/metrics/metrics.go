// Package metrics holds the prometheus collectors of the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every collector below is registered with.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		GenerationsTotal, GenerationDuration,
		RetriesTotal, InterruptsTotal, ResumesTotal,
		ToolCallsTotal, ToolDuration,
		TokensTotal, HookFaultsTotal, FollowUpsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// GenerationsTotal counts finished generation calls by status.
var GenerationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cairn_generations_total",
		Help: "Generation calls by final status.",
	},
	[]string{"status"}, // completed | interrupted | re-interrupted | failed
)

// GenerationDuration observes generation latency.
var GenerationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "cairn_generation_duration_seconds",
		Help:    "Generation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"model"},
)

// RetriesTotal counts recovery actions taken after a failed model call.
var RetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cairn_generation_retries_total",
		Help: "Recovery actions after failed model calls.",
	},
	[]string{"class", "action"}, // action: retry | fallback | compact
)

// InterruptsTotal counts persisted interrupts.
var InterruptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cairn_interrupts_total",
		Help: "Interrupts persisted, by type.",
	},
	[]string{"type"},
)

// ResumesTotal counts resume calls by outcome.
var ResumesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cairn_resumes_total",
		Help: "Resume calls by outcome.",
	},
	[]string{"outcome"},
)

// ToolCallsTotal counts tool invocations.
var ToolCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cairn_tool_calls_total",
		Help: "Tool invocations by tool and result.",
	},
	[]string{"tool", "status"}, // ok | error
)

// ToolDuration observes tool latency.
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "cairn_tool_duration_seconds",
		Help:    "Tool latency in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// TokensTotal counts model tokens.
var TokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cairn_tokens_total",
		Help: "Model tokens by direction.",
	},
	[]string{"direction"}, // input | output
)

// HookFaultsTotal counts hook handler errors, panics and timeouts.
var HookFaultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cairn_hook_faults_total",
		Help: "Hook handler faults by event.",
	},
	[]string{"event"},
)

// FollowUpsTotal counts follow-up turns run for finished background tasks.
var FollowUpsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "cairn_background_followups_total",
		Help: "Follow-up turns run for finished background tasks.",
	},
)

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
