package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeError   = "error"
	OutcomeClosed  = "closed"
)

// Dashboard holds all Prometheus metrics for the synchronization core. A nil *Dashboard
// records nothing.
type Dashboard struct {
	FeedRefreshes *prometheus.CounterVec
	PushMessages  *prometheus.CounterVec
	PushConnected prometheus.Gauge
	Submissions   *prometheus.CounterVec
	ChatTurns     *prometheus.CounterVec
}

// New initializes the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Dashboard {
	factory := promauto.With(reg)
	return &Dashboard{
		FeedRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline_dashboard",
			Subsystem: "feed",
			Name:      "refreshes_total",
			Help:      "Total number of feed refreshes by feed and outcome.",
		}, []string{"feed", "outcome"}), // outcome: applied, stale, error, closed
		PushMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline_dashboard",
			Subsystem: "push",
			Name:      "messages_total",
			Help:      "Total number of push messages received by type.",
		}, []string{"type"}),
		PushConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeline_dashboard",
			Subsystem: "push",
			Name:      "connected",
			Help:      "1 while the push stream is connected, 0 otherwise.",
		}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline_dashboard",
			Subsystem: "submit",
			Name:      "submissions_total",
			Help:      "Total number of event submissions by outcome.",
		}, []string{"outcome"}),
		ChatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline_dashboard",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total number of resolved chat turns by outcome.",
		}, []string{"outcome"}),
	}
}

func (d *Dashboard) FeedRefreshed(feed, outcome string) {
	if d == nil {
		return
	}
	d.FeedRefreshes.WithLabelValues(feed, outcome).Inc()
}

func (d *Dashboard) PushMessage(kind string) {
	if d == nil {
		return
	}
	d.PushMessages.WithLabelValues(kind).Inc()
}

func (d *Dashboard) PushState(connected bool) {
	if d == nil {
		return
	}
	if connected {
		d.PushConnected.Set(1)
	} else {
		d.PushConnected.Set(0)
	}
}

func (d *Dashboard) Submission(outcome string) {
	if d == nil {
		return
	}
	d.Submissions.WithLabelValues(outcome).Inc()
}

func (d *Dashboard) ChatTurn(outcome string) {
	if d == nil {
		return
	}
	d.ChatTurns.WithLabelValues(outcome).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
