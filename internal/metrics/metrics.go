package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Package-level collectors, registered once at init.
var (
	ConnectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "clobsync",
		Subsystem: "connection",
		Name:      "state",
		Help:      "Current connection state (1 for the active state, 0 otherwise).",
	}, []string{"state"})

	ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clobsync",
		Subsystem: "connection",
		Name:      "reconnect_attempts_total",
		Help:      "Reconnection attempts scheduled since start.",
	})

	ReconnectExhaustions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clobsync",
		Subsystem: "connection",
		Name:      "reconnect_exhaustions_total",
		Help:      "Times the automatic reconnection budget was spent.",
	})

	RestoredSubscriptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clobsync",
		Subsystem: "connection",
		Name:      "restored_subscriptions_total",
		Help:      "Post-reconnect subscription replays by outcome.",
	}, []string{"outcome"})

	MessagesReceived = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "clobsync",
		Subsystem: "feed",
		Name:      "messages_received",
		Help:      "Frames received from the connection.",
	})

	MessagesRouted = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "clobsync",
		Subsystem: "feed",
		Name:      "messages_routed",
		Help:      "Frames successfully classified and routed.",
	})

	ParseErrors = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "clobsync",
		Subsystem: "feed",
		Name:      "parse_errors",
		Help:      "Malformed frames dropped.",
	})

	SequenceGaps = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "clobsync",
		Subsystem: "feed",
		Name:      "sequence_gaps",
		Help:      "Per-asset sequence gaps observed.",
	})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "clobsync",
		Subsystem: "feed",
		Name:      "queue_depth",
		Help:      "Items waiting in an output queue.",
	}, []string{"queue"})

	Subscriptions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "clobsync",
		Subsystem: "subscriptions",
		Name:      "count",
		Help:      "Subscriptions by status.",
	}, []string{"status"})

	SubscriptionHealth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "clobsync",
		Subsystem: "subscriptions",
		Name:      "health_score",
		Help:      "Subscription health score, 0 to 100.",
	})

	BooksTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "clobsync",
		Subsystem: "books",
		Name:      "tracked",
		Help:      "Assets with a maintained order book.",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionState,
		ReconnectAttempts,
		ReconnectExhaustions,
		RestoredSubscriptions,
		MessagesReceived,
		MessagesRouted,
		ParseErrors,
		SequenceGaps,
		QueueDepth,
		Subscriptions,
		SubscriptionHealth,
		BooksTracked,
	)
}

// connection state labels
var connectionStates = []string{"disconnected", "connecting", "connected", "closing"}

// SetConnectionState marks exactly one state as active.
func SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}
