// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the world core.
//
// # Description
//
// Counters, histograms, and gauges covering the shared context store
// (commits, subscriber failures), the message hub (messages, deliveries,
// conflicts), and registered agents. Metrics are optional: every Record*
// helper is a no-op until InitMetrics has run, so the core packages can
// instrument unconditionally and library consumers pay nothing.
//
// # Integration
//
// The gateway exposes the default registry at /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "worldloom"

// CoreMetrics holds all Prometheus metrics for the context/hub core.
type CoreMetrics struct {
	// CommitsTotal counts committed context updates by producer.
	CommitsTotal *prometheus.CounterVec

	// CommitDurationSeconds measures UpdateContext latency, notification
	// included.
	CommitDurationSeconds prometheus.Histogram

	// SubscriberFailuresTotal counts recovered subscriber panics.
	SubscriberFailuresTotal *prometheus.CounterVec

	// MessagesTotal counts hub messages by kind and outcome.
	// Labels: kind, status (sent, rejected)
	MessagesTotal *prometheus.CounterVec

	// DeliveriesTotal counts messages handed to polling agents.
	DeliveriesTotal *prometheus.CounterVec

	// ConflictsTotal counts story-consistency conflicts by requesting agent.
	ConflictsTotal *prometheus.CounterVec

	// RegisteredAgents tracks the number of registered agents.
	RegisteredAgents prometheus.Gauge
}

// Default is the singleton instance, nil until InitMetrics runs.
var Default *CoreMetrics

// InitMetrics initializes and registers the default metrics instance.
//
// # Description
//
// Call once at application startup. Panics if called twice (duplicate
// registration on the default Prometheus registry).
func InitMetrics() *CoreMetrics {
	Default = &CoreMetrics{
		CommitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "context",
				Name:      "commits_total",
				Help:      "Total committed context updates by producer",
			},
			[]string{"changed_by"},
		),

		CommitDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "context",
				Name:      "commit_duration_seconds",
				Help:      "UpdateContext latency including subscriber notification",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),

		SubscriberFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "context",
				Name:      "subscriber_failures_total",
				Help:      "Recovered subscriber callback panics by subscriber",
			},
			[]string{"subscriber"},
		),

		MessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "hub",
				Name:      "messages_total",
				Help:      "Hub messages by kind and outcome",
			},
			[]string{"kind", "status"},
		),

		DeliveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "hub",
				Name:      "deliveries_total",
				Help:      "Messages handed to polling agents",
			},
			[]string{"agent"},
		),

		ConflictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "hub",
				Name:      "conflicts_total",
				Help:      "Story consistency conflicts by requesting agent",
			},
			[]string{"agent"},
		),

		RegisteredAgents: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "hub",
				Name:      "registered_agents",
				Help:      "Number of registered agents",
			},
		),
	}

	return Default
}

// RecordCommit records a committed context update. No-op before InitMetrics.
func RecordCommit(changedBy string, elapsed time.Duration) {
	if Default == nil {
		return
	}
	Default.CommitsTotal.WithLabelValues(changedBy).Inc()
	Default.CommitDurationSeconds.Observe(elapsed.Seconds())
}

// RecordSubscriberFailure records a recovered subscriber panic.
func RecordSubscriberFailure(subscriber string) {
	if Default == nil {
		return
	}
	Default.SubscriberFailuresTotal.WithLabelValues(subscriber).Inc()
}

// RecordMessage records a hub send attempt.
func RecordMessage(kind string, accepted bool) {
	if Default == nil {
		return
	}
	status := "sent"
	if !accepted {
		status = "rejected"
	}
	Default.MessagesTotal.WithLabelValues(kind, status).Inc()
}

// RecordDelivery records messages handed to a polling agent.
func RecordDelivery(agent string, count int) {
	if Default == nil || count == 0 {
		return
	}
	Default.DeliveriesTotal.WithLabelValues(agent).Add(float64(count))
}

// RecordConflicts records story-consistency conflicts.
func RecordConflicts(agent string, count int) {
	if Default == nil || count == 0 {
		return
	}
	Default.ConflictsTotal.WithLabelValues(agent).Add(float64(count))
}

// AgentRegistered bumps the registered agent gauge.
func AgentRegistered() {
	if Default == nil {
		return
	}
	Default.RegisteredAgents.Inc()
}
