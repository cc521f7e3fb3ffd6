package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classificationFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mongoagent_classification_fallback_total",
		Help: "Intent classifications that defaulted to BUSINESS_INQUIRY.",
	}, []string{"reason"})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mongoagent_operations_total",
		Help: "Executed registry operations by result (success or error kind).",
	}, []string{"operation", "result"})

	translationFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mongoagent_translation_fallback_total",
		Help: "Detection or translation failures that fell back to the pivot text.",
	}, []string{"direction"})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mongoagent_turns_total",
		Help: "Completed turns by intent and outcome.",
	}, []string{"intent", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mongoagent_stage_duration_seconds",
		Help:    "Time spent in each graph stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mongoagent_turn_duration_seconds",
		Help:    "End-to-end turn latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
