package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "charity_drive", Name: "rides_created_total", Help: "Total ride requests created"})
	RidesAcceptedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "charity_drive", Name: "rides_accepted_total", Help: "Total rides accepted by a driver"})
	RidesCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "charity_drive", Name: "rides_cancelled_total", Help: "Total rides cancelled by the rider"})
	RidesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "charity_drive", Name: "rides_completed_total", Help: "Total rides completed"})
	AcceptConflicts     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "charity_drive", Name: "accept_conflicts_total", Help: "Accept attempts that lost the race or targeted a non-pending ride"})

	BroadcastEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "charity_drive", Name: "broadcast_events_total", Help: "Events fanned out, by kind"},
		[]string{"kind"},
	)
	BroadcastSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "charity_drive", Name: "broadcast_subscribers", Help: "Live topic subscriptions"})
	BroadcastDropsTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "charity_drive", Name: "broadcast_drops_total", Help: "Subscribers dropped for falling behind"})

	WSSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "charity_drive", Name: "ws_sessions", Help: "Connected websocket sessions"})

	FareFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "charity_drive", Name: "fare_fallbacks_total", Help: "Fare quotes computed without the routing service"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "charity_drive", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "charity_drive",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
