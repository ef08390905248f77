// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the governance
// kernel: session counters, role outcomes, governance actions, and
// ledger/verifier instrumentation.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "govern"

// ChainMetrics holds the Prometheus metrics for chain execution.
// Initialize once at startup via NewChainMetrics().
type ChainMetrics struct {
	// SessionsTotal counts started sessions by domain.
	SessionsTotal *prometheus.CounterVec

	// SessionDurationSeconds measures full-session wall time.
	// Labels: domain, outcome (ok, role_failure, config_error)
	SessionDurationSeconds *prometheus.HistogramVec

	// RolesTotal counts role completions by role and outcome.
	RolesTotal *prometheus.CounterVec

	// GovernanceActionsTotal counts hard directive clamps by directive.
	GovernanceActionsTotal *prometheus.CounterVec

	// ActiveSessions gauges in-flight sessions.
	ActiveSessions prometheus.Gauge
}

// NewChainMetrics registers and returns the chain metric set.
func NewChainMetrics() *ChainMetrics {
	return &ChainMetrics{
		SessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "sessions_total",
			Help:      "Sessions started, by domain.",
		}, []string{"domain"}),
		SessionDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "session_duration_seconds",
			Help:      "Wall time of full sessions.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"domain", "outcome"}),
		RolesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "roles_total",
			Help:      "Role turns completed, by role and outcome.",
		}, []string{"role", "outcome"}),
		GovernanceActionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "governance",
			Name:      "hard_actions_total",
			Help:      "Hard directive clamps applied, by directive id.",
		}, []string{"directive"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "active_sessions",
			Help:      "Sessions currently in flight.",
		}),
	}
}

// SessionStarted implements the orchestration.ChainMetrics hook.
func (m *ChainMetrics) SessionStarted(domain string) {
	m.SessionsTotal.WithLabelValues(domain).Inc()
	m.ActiveSessions.Inc()
}

// SessionFinished implements the orchestration.ChainMetrics hook.
func (m *ChainMetrics) SessionFinished(domain, outcome string, dur time.Duration) {
	m.ActiveSessions.Dec()
	m.SessionDurationSeconds.WithLabelValues(domain, outcome).Observe(dur.Seconds())
}

// RoleCompleted implements the orchestration.ChainMetrics hook.
func (m *ChainMetrics) RoleCompleted(role, outcome string) {
	m.RolesTotal.WithLabelValues(role, outcome).Inc()
}

// GovernanceAction implements the orchestration.ChainMetrics hook.
func (m *ChainMetrics) GovernanceAction(directive string) {
	m.GovernanceActionsTotal.WithLabelValues(directive).Inc()
}

// VerifierMetrics instruments the sentinel verifier.
type VerifierMetrics struct {
	// VerificationsTotal counts verification walks by result.
	VerificationsTotal *prometheus.CounterVec

	// EntriesChecked counts entries examined across all walks.
	EntriesChecked prometheus.Counter

	// TamperFindingsTotal counts findings by error kind.
	TamperFindingsTotal *prometheus.CounterVec
}

// NewVerifierMetrics registers and returns the verifier metric set.
func NewVerifierMetrics() *VerifierMetrics {
	return &VerifierMetrics{
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "verifier",
			Name:      "verifications_total",
			Help:      "Ledger verification walks, by result.",
		}, []string{"result"}),
		EntriesChecked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "verifier",
			Name:      "entries_checked_total",
			Help:      "Ledger entries examined.",
		}),
		TamperFindingsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "verifier",
			Name:      "tamper_findings_total",
			Help:      "Verification findings, by error kind.",
		}, []string{"kind"}),
	}
}
