package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Registry-backed gauges and counters for the game loop and the outbound
// pipeline. All collectors are package-level; the game loop updates them
// from one goroutine.

var (
	ConnectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hyperscape",
		Name:      "connected_sessions",
		Help:      "Currently open WebSocket sessions.",
	})

	PlayersInWorld = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hyperscape",
		Name:      "players_in_world",
		Help:      "Players currently spawned in the world.",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hyperscape",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of one game loop tick.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25},
	})

	TickOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hyperscape",
		Name:      "tick_overruns_total",
		Help:      "Ticks that exceeded the tick interval.",
	})

	MessagesIn = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hyperscape",
		Name:      "messages_in_total",
		Help:      "Inbound client messages processed.",
	})

	BatchFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hyperscape",
		Name:      "batch_frames_sent_total",
		Help:      "Binary entity update frames sent.",
	})

	BatchRecordsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hyperscape",
		Name:      "batch_records_sent_total",
		Help:      "Entity update records packed into frames.",
	})

	UpdatesThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hyperscape",
		Name:      "updates_throttled_total",
		Help:      "Entity updates suppressed by distance throttling.",
	})

	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hyperscape",
		Name:      "auth_failures_total",
		Help:      "Failed authentication attempts.",
	})

	AnonRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hyperscape",
		Name:      "anon_rate_limited_total",
		Help:      "Anonymous account creations refused by the per-IP limit.",
	})

	ValidationKicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hyperscape",
		Name:      "validation_kicks_total",
		Help:      "Players kicked by movement validation.",
	})

	TradesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hyperscape",
		Name:      "trades_completed_total",
		Help:      "Trades that committed their item swap.",
	})

	TradesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hyperscape",
		Name:      "trades_cancelled_total",
		Help:      "Trades cancelled before completion.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
