package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chat_playback"

type Metrics struct {
	SessionsStarted      *prometheus.CounterVec
	SessionsCompleted    *prometheus.CounterVec
	SessionsActive       prometheus.Gauge
	SessionDuration      prometheus.Histogram
	TurnsRevealed        *prometheus.CounterVec
	CharactersRevealed   prometheus.Counter
	LocalInputsSubmitted prometheus.Counter
	StateViolations      *prometheus.CounterVec
	EventSinkDuration    *prometheus.HistogramVec
	EventsDropped        prometheus.Counter
	WebsocketClients     prometheus.Gauge
	AutoScrolls          prometheus.Counter
}

// NewMetrics registers all collectors on reg. Pass prometheus.DefaultRegisterer
// for the process-wide /metrics endpoint, or a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of playback sessions started",
		}, []string{"scenario"}),
		SessionsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of playback sessions that reached the end of their scenario",
		}, []string{"scenario"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live playback sessions",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from session start to completion",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 300},
		}),
		TurnsRevealed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_revealed_total",
			Help:      "Total number of turns fully revealed",
		}, []string{"role"}),
		CharactersRevealed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "characters_revealed_total",
			Help:      "Total number of characters revealed in threads and input boxes",
		}),
		LocalInputsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "local_inputs_submitted_total",
			Help:      "Total number of simulated local input submissions",
		}),
		StateViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_violations_total",
			Help:      "Scheduler state machine violations resolved by a full reset",
		}, []string{"kind"}),
		EventSinkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_sink_duration_seconds",
			Help:      "Time taken to record playback events",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Playback events dropped because the event buffer was full",
		}),
		WebsocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected snapshot stream clients",
		}),
		AutoScrolls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_scrolls_total",
			Help:      "Scroll commands issued by viewport followers",
		}),
	}
}
