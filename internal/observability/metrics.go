package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesSampled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crowdwatch",
		Name:      "frames_sampled_total",
		Help:      "Total number of frames run through the detector",
	}, []string{"camera"})

	FramesUnavailable = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crowdwatch",
		Name:      "frames_unavailable_total",
		Help:      "Sampling ticks with no frame or no detector available",
	}, []string{"camera"})

	PeopleDetected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crowdwatch",
		Name:      "people_detected",
		Help:      "Person count in the most recent sample",
	}, []string{"camera"})

	DensityTier = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crowdwatch",
		Name:      "density_tier",
		Help:      "Density tier of the most recent sample (0 quiet, 1 warning, 2 critical)",
	}, []string{"camera"})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crowdwatch",
		Name:      "alerts_emitted_total",
		Help:      "Alerts granted by the cooldown gate",
	}, []string{"camera"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crowdwatch",
		Name:      "alerts_suppressed_total",
		Help:      "Critical samples swallowed during cooldown",
	}, []string{"camera"})

	DispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crowdwatch",
		Name:      "dispatch_outcomes_total",
		Help:      "Alert dispatches to the relay by outcome",
	}, []string{"outcome"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crowdwatch",
		Name:      "inference_duration_seconds",
		Help:      "Duration of detection stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	RelayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crowdwatch",
		Name:      "relay_requests_total",
		Help:      "Alert relay requests by outcome",
	}, []string{"outcome"})

	ProviderSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crowdwatch",
		Name:      "provider_sends_total",
		Help:      "Messages handed to the messaging provider by kind and outcome",
	}, []string{"kind", "outcome"})

	ReportTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crowdwatch",
		Name:      "sos_transitions_total",
		Help:      "SOS report review transitions",
	}, []string{"decision", "result"})

	NotificationsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crowdwatch",
		Name:      "notifications_queued_total",
		Help:      "Fan-out notifications queued for delivery",
	})

	PendingReports = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crowdwatch",
		Name:      "sos_pending_reports",
		Help:      "Pending SOS reports in the subscription view",
	})

	NotificationBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crowdwatch",
		Name:      "notification_backlog",
		Help:      "Undelivered messages on the NOTIFY stream",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crowdwatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crowdwatch",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
