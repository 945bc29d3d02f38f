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
	// ChannelsCached reports the number of channels currently held in the in-memory cache.
	ChannelsCached = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "cached",
			Help:      "Number of channels currently held in the in-memory channel cache",
		},
	)

	// ChannelTransitions counts channel status updates: from/to pairs for relay lifecycle
	// events, and from="*" for every cache update of an already-cached channel.
	ChannelTransitions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "transitions_total",
			Help:      "Total number of channel status transitions",
		},
		[]string{"from", "to"},
	)

	// ChannelOnChainReads counts fallback reads of channel state via the contract client.
	ChannelOnChainReads = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "onchain_reads_total",
			Help:      "Total number of on-chain fallback reads of channel balances",
		},
		[]string{"outcome"}, // ok, error
	)

	// ChannelTxSubmissions counts on-chain channel lifecycle transaction submissions.
	ChannelTxSubmissions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "tx_submissions_total",
			Help:      "Total number of on-chain channel lifecycle transaction submissions",
		},
		[]string{"operation", "outcome"}, // operation: create, resize, close, withdraw
	)

	// ChannelTxDuration observes the duration of on-chain channel calls, by operation. Only
	// the readBalances call records into it (operation "read"); the time from transaction
	// submission to mined receipt is not observed.
	ChannelTxDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "tx_duration_seconds",
			Help:      "Duration of on-chain channel calls in seconds, by operation",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 14),
		},
		[]string{"operation"},
	)
)
