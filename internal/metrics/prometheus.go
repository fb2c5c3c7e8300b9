package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_query_duration_seconds",
			Help:    "Time from receiving a query to the end of its response stream",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"route", "status"},
	)

	RouteScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_route_score",
			Help:    "Aggregate similarity score of the selected route",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"route"},
	)

	StructuredQueryOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_structured_query_outcome_total",
			Help: "Outcome of the natural-language-to-SQL pipeline",
		},
		[]string{"outcome"},
	)

	FAQMatches = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatbot_faq_matches",
			Help:    "Number of FAQ entries retrieved per query",
			Buckets: []float64{0, 1, 2, 5},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_llm_requests_total",
			Help: "Completion and embedding requests sent upstream",
		},
		[]string{"kind", "status"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatbot_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	RecordsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_records_ingested_total",
			Help: "Records loaded by the ingestion jobs",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueryDuration,
			QueryTotal,
			RouteScore,
			StructuredQueryOutcome,
			FAQMatches,
			LLMTokensUsed,
			LLMRequests,
			CircuitState,
			CacheHits,
			CacheMisses,
			RecordsIngested,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
