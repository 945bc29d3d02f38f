// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionState reports the current ClearNode connection state as a gauge:
	// 0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=closed.
	ConnectionState = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current ClearNode connection state (0=disconnected,1=connecting,2=connected,3=reconnecting,4=closed)",
		},
	)

	// ReconnectAttempts counts reconnection attempts made after an unexpected close.
	ReconnectAttempts = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnection attempts",
		},
	)

	// ReconnectBackoffSeconds observes the computed backoff delay before each attempt.
	ReconnectBackoffSeconds = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_backoff_seconds",
			Help:      "Computed exponential backoff delay before a reconnect attempt, in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// ConnectionsClosed counts connection closures by cause.
	ConnectionsClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "closed_total",
			Help:      "Total number of connection closures by cause",
		},
		[]string{"cause"}, // explicit, exhausted_retries, transport_error
	)

	// RequestsInFlight tracks the number of outstanding sendAndWait waiters by method.
	RequestsInFlight = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "requests_in_flight",
			Help:      "Number of sendAndWait calls currently awaiting a response, by method",
		},
		[]string{"method"},
	)

	// RequestDuration observes round-trip latency of sendAndWait, by method and outcome.
	RequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "request_duration_seconds",
			Help:      "sendAndWait round-trip duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"method", "outcome"}, // outcome: ok, timeout, closed
	)
)
