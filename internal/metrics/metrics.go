// Package metrics provides Prometheus instrumentation for the Pairly chat
// broker. It exposes gauges for connection, waiting-pool, and pair counts,
// counters for match and relay throughput, and a histogram for match wait
// times.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairly_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// WaitingUsers tracks the current waiting-pool size per chat mode.
	WaitingUsers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pairly_waiting_users",
		Help: "Current number of users waiting for a match",
	}, []string{"mode"})

	// ActivePairs tracks the current number of paired conversations.
	ActivePairs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairly_active_pairs",
		Help: "Current number of active chat pairs",
	})

	// MatchesTotal counts successful matches, labeled by tier:
	// "perfect", "good", or "any".
	MatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairly_matches_total",
		Help: "Total number of matches made",
	}, []string{"tier"})

	// MatchTimeoutsTotal counts waits that expired without a match.
	MatchTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairly_match_timeouts_total",
		Help: "Total number of match waits that timed out",
	})

	// RelayedTotal counts relayed events, labeled by kind: "chat_message",
	// "video_offer", "video_answer", or "ice_candidate".
	RelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairly_relayed_total",
		Help: "Total number of relayed messages and signaling payloads",
	}, []string{"kind"})

	// RelayDroppedTotal counts relay attempts that were dropped, labeled by
	// reason: "unauthorized", "empty", or "dead_target".
	RelayDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairly_relay_dropped_total",
		Help: "Total number of relay attempts dropped before delivery",
	}, []string{"reason"})

	// MatchWaitSeconds records how long matched users waited in the pool.
	MatchWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pairly_match_wait_seconds",
		Help:    "Time from entering the waiting pool to being matched",
		Buckets: []float64{.1, .5, 1, 2, 5, 10, 15, 20, 25, 30},
	})

	// ReconcilerEvictionsTotal counts entries removed by the periodic sweep,
	// labeled by kind: "pool" or "pair".
	ReconcilerEvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairly_reconciler_evictions_total",
		Help: "Total number of stale entries removed by the reconciler",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		WaitingUsers,
		ActivePairs,
		MatchesTotal,
		MatchTimeoutsTotal,
		RelayedTotal,
		RelayDroppedTotal,
		MatchWaitSeconds,
		ReconcilerEvictionsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
