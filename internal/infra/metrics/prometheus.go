package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_calls_total",
		Help: "Total number of ingestion calls, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingestion_stage_duration_seconds",
		Help:    "Duration of ingestion pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	ItemsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_items_persisted_total",
		Help: "Total number of dataset items persisted",
	})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_frames_extracted_total",
		Help: "Total number of video frames turned into items",
	})

	TokensReservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_tokens_reserved_total",
		Help: "Token amount reserved across all ingestion calls",
	})

	TokensChargedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_tokens_charged_total",
		Help: "Token amount confirmed (debited) across all ingestion calls",
	})

	TokensRefundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_tokens_refunded_total",
		Help: "Token amount refunded after failed ingestion calls",
	})

	RefundFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_refund_failures_total",
		Help: "Refund attempts that failed and left tokens held",
	})

	ActiveIngestions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingestion_active_calls",
		Help: "Number of ingestion calls currently in flight",
	})
)
