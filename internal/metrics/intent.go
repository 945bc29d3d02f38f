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
	// IntentsSubmitted counts intents sent to the relay for solver quoting.
	IntentsSubmitted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intent",
			Name:      "submitted_total",
			Help:      "Total number of intents submitted for solver quoting",
		},
	)

	// IntentOutcomes counts executeIntent terminal outcomes by reason.
	IntentOutcomes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intent",
			Name:      "outcomes_total",
			Help:      "Total number of executeIntent terminal outcomes",
		},
		[]string{"outcome"}, // settled, no_quotes, dispute, unavailable, timeout, failed
	)

	// QuoteWaitDuration observes time spent waiting for the first solver quote.
	QuoteWaitDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intent",
			Name:      "quote_wait_seconds",
			Help:      "Time spent waiting for a solver quote in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// SettlementDuration observes time from quote acceptance to settlement confirmation.
	SettlementDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intent",
			Name:      "settlement_seconds",
			Help:      "Time from quote acceptance to settlement confirmation, in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 14),
		},
	)

	// IntentStatusEvents counts each mapped execution-status event emitted during an intent lifecycle.
	IntentStatusEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intent",
			Name:      "status_events_total",
			Help:      "Total number of intent execution-status events emitted, by status",
		},
		[]string{"status"},
	)
)
