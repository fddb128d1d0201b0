package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrackerTicksTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "tracker_ticks_total", Help: "Fare tracker ticks executed"})
	TrackerRideErrors    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "tracker_ride_errors_total", Help: "Per-ride failures isolated during tracker ticks"})
	TrackerGPSJumps      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "tracker_gps_jumps_total", Help: "Position deltas discarded as GPS discontinuities"})
	TrackerMetersAccrued = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "tracker_meters_accrued_total", Help: "Meters accumulated into fares"})

	PatrolMovesTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "patrol_moves_total", Help: "Simulated vehicle advancements"})
	PatrolRouteRequests = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "patrol_route_requests_total", Help: "Routing provider requests issued by patrol"})
	PatrolRouteFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "patrol_route_failures_total", Help: "Routing provider requests that failed"})

	LockAcquired   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "lock_acquired_total", Help: "Vehicle lock acquisitions granted"})
	LockContention = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "lock_contention_total", Help: "Vehicle lock acquisitions refused"})

	PanicsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "ride_panics_total", Help: "Rides ended through the panic override"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_tracking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_tracking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
