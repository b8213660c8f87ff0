// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StatusSuccess labels successful operations; failures use Kind.String().
const StatusSuccess = "success"

// Operation names used as metric labels and span names.
const (
	OpRegister          = "register"
	OpEdit              = "edit"
	OpDelete            = "delete"
	OpIssueReset        = "issue_reset"
	OpValidateReset     = "validate_reset"
	OpRedeemReset       = "redeem_reset"
	OpVerifyCredentials = "verify_credentials"
	OpPurgeTokens       = "purge_tokens"
)

// Operations counts credential operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Operations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "adminauth_operations_total",
		Help: "Total number of credential operations by operation and status",
	},
	[]string{"operation", "status"},
)

// OperationDuration is the histogram for credential operation latency.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "adminauth_operation_duration_seconds",
		Help:    "Credential operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// TokensPurged counts reset tokens removed by garbage collection.
var TokensPurged = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "adminauth_reset_tokens_purged_total",
		Help: "Total number of expired or consumed reset tokens deleted",
	},
)

// RegisterMetrics registers auth metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Operations)
	reg.MustRegister(OperationDuration)
	reg.MustRegister(TokensPurged)
}

func observe(op string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = KindOf(err).String()
	}
	Operations.WithLabelValues(op, status).Inc()
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
