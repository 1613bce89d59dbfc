// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics defines the Prometheus instruments for the research pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Model client metrics
	ModelRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_model_requests_total",
			Help: "Total number of completion calls by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	ModelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deep_research_model_latency_seconds",
			Help:    "Completion call latency in seconds, including retries",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"model"},
	)

	ModelRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_model_retries_total",
			Help: "Total number of completion retries by reason",
		},
		[]string{"model", "reason"},
	)

	// Ranker metrics
	RankerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_ranker_requests_total",
			Help: "Total number of rerank calls by outcome",
		},
		[]string{"outcome"},
	)

	// Stage metrics
	StructuredFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_structured_fallbacks_total",
			Help: "Total number of unparseable model outputs replaced by fallback values",
		},
		[]string{"stage"},
	)

	// Run metrics
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_runs_total",
			Help: "Total number of research runs by status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deep_research_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		},
	)

	TasksCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deep_research_tasks_completed_total",
			Help: "Total number of research tasks completed",
		},
	)

	// Memory metrics
	MemoryRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deep_research_memory_records",
			Help: "Number of research records held in session memory",
		},
	)

	MemoryPersistOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_memory_persist_total",
			Help: "Total number of memory save/load operations by backend, op and result",
		},
		[]string{"backend", "op", "result"},
	)
)

// Outcome labels shared by request counters.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeFallback = "fallback"
	OutcomeSkipped  = "skipped"
)
