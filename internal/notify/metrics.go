// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import "github.com/prometheus/client_golang/prometheus"

// Delivery outcomes used as the status label.
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDropped  = "dropped"
	StatusRejected = "rejected"
)

// Notifications counts notifications by kind and outcome.
var Notifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "adminauth_notifications_total",
		Help: "Total number of notifications by kind and outcome",
	},
	[]string{"kind", "status"},
)

// SendDuration is the histogram for sender latency.
var SendDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "adminauth_notification_send_duration_seconds",
		Help:    "Notification delivery duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// QueueDepth is the number of notifications waiting for a worker.
var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "adminauth_notification_queue_depth",
		Help: "Notifications accepted but not yet delivered",
	},
)

// RegisterMetrics registers notify metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Notifications, SendDuration, QueueDepth)
}
