package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_turns_total",
			Help: "Total number of conversation turns by outcome.",
		},
		[]string{"outcome"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_llm_requests_total",
			Help: "Total number of LLM completion requests by result.",
		},
		[]string{"result"},
	)
	llmRequestDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querychat_llm_request_duration_seconds",
			Help:    "LLM completion request latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	sqlStatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_sql_statements_total",
			Help: "Total number of executed SQL statements by verb.",
		},
		[]string{"verb"},
	)
	sqlStatementFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querychat_sql_statement_failures_total",
			Help: "Total number of SQL statements rejected by the database.",
		},
	)
	transcriptsArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querychat_transcripts_archived_total",
			Help: "Total number of resolved turns archived to object storage.",
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querychat_active_sessions",
			Help: "Current number of sessions in gathering or resolved phase.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		llmRequestsTotal,
		llmRequestDurationSeconds,
		sqlStatementsTotal,
		sqlStatementFailuresTotal,
		transcriptsArchivedTotal,
		activeSessions,
	)
}

// Turn outcomes: followup, resolved, malformed_reply, llm_unavailable, sql_failed.
func IncrementTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

func ObserveLLMRequest(result string, elapsed time.Duration) {
	llmRequestsTotal.WithLabelValues(result).Inc()
	llmRequestDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementSQLStatement(verb string) {
	sqlStatementsTotal.WithLabelValues(verb).Inc()
}

func IncrementSQLStatementFailure() {
	sqlStatementFailuresTotal.Inc()
}

func IncrementTranscriptArchived() {
	transcriptsArchivedTotal.Inc()
}

func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}
