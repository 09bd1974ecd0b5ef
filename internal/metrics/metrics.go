package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_runs_total",
			Help: "Total number of research runs by outcome",
		},
		[]string{"outcome"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "researcher_run_duration_seconds",
			Help:    "Duration of research runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	SubtasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_subtasks_total",
			Help: "Total number of subtasks researched by outcome",
		},
		[]string{"outcome"},
	)

	ActiveSubagents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "researcher_active_subagents",
			Help: "Number of sub-agents currently researching",
		},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_llm_calls_total",
			Help: "Total number of LLM calls by pipeline stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researcher_llm_call_duration_seconds",
			Help:    "Duration of LLM calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		},
		[]string{"stage"},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_llm_tokens_total",
			Help: "Total number of tokens consumed by pipeline stage and kind",
		},
		[]string{"stage", "kind"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_tool_calls_total",
			Help: "Total number of tool executions by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "researcher_tool_call_duration_seconds",
			Help: "Duration of tool executions in seconds",
		},
		[]string{"tool"},
	)

	ScraperCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_scraper_cache_total",
			Help: "Scraper cache lookups by result",
		},
		[]string{"result"},
	)
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeDegraded = "degraded"
	OutcomeCanceled = "canceled"
)

// Outcome maps an error to the success or failure label
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveLLMCall records one LLM call
func ObserveLLMCall(stage string, start time.Time, promptTokens, completionTokens int, err error) {
	LLMCallsTotal.WithLabelValues(stage, Outcome(err)).Inc()
	LLMCallDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err == nil {
		LLMTokensTotal.WithLabelValues(stage, "prompt").Add(float64(promptTokens))
		LLMTokensTotal.WithLabelValues(stage, "completion").Add(float64(completionTokens))
	}
}

// ObserveToolCall records one tool execution
func ObserveToolCall(tool string, start time.Time, success bool) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	ToolCallDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}
