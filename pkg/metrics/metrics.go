package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters for the alert lifecycle.
var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safii_sessions_started_total",
		Help: "Tracking sessions started",
	})
	SessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safii_sessions_ended_total",
		Help: "Tracking sessions ended",
	})
	CheckIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safii_checkins_total",
		Help: "Liveness check-ins recorded",
	})
	AlertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safii_alerts_created_total",
		Help: "Emergency alerts created",
	})
	AlertsAcknowledged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safii_alerts_acknowledged_total",
		Help: "Contact acknowledgements recorded",
	})
	AlertsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safii_alerts_resolved_total",
		Help: "Emergency alerts resolved by the tracked user",
	})
	PushSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safii_push_sent_total",
		Help: "Push notifications handed to the dispatcher, one per recipient token",
	})
	PushFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safii_push_failed_total",
		Help: "Push notifications that failed to dispatch, one per recipient token",
	})
	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "safii_stream_subscribers",
		Help: "Live alert projection subscriptions",
	})
)
