package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ShipmentsCreated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "freight_matching", Name: "shipments_created_total", Help: "Total shipments created"})
	AssignmentsTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "freight_matching", Name: "assignments_total", Help: "Total successful shipment assignments"})
	AssignConflicts    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "freight_matching", Name: "assign_conflicts_total", Help: "Assignment attempts lost to another carrier"})
	TransitionsTotal   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "freight_matching", Name: "transitions_total", Help: "Status transitions applied"}, []string{"to"})
	TrackingPointsSeen = promauto.NewCounter(prometheus.CounterOpts{Namespace: "freight_matching", Name: "tracking_points_total", Help: "Tracking points accepted"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freight_matching", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "freight_matching",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
