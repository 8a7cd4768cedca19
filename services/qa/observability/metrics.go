// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the QA service.
//
// # Description
//
// Metrics cover the answer pipeline:
//   - Question counters by intent outcome (thanks, small_talk, vague,
//     typo_correction, retrieval, insufficient_evidence)
//   - Answer latency histogram by detail level
//   - Active session gauge and swept-session counter
//   - Oracle error counter by pipeline stage
//
// # Integration
//
// Exposed via the /metrics endpoint. Use with Prometheus + Grafana for
// dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "enviropro"

// Subsystem for QA pipeline metrics
const qaSubsystem = "qa"

// QAMetrics holds all Prometheus metrics for the answer pipeline.
type QAMetrics struct {
	// QuestionsTotal counts /ask turns by how they were resolved.
	// Labels: outcome (thanks, small_talk, vague, typo_correction,
	// retrieval, insufficient_evidence, error)
	QuestionsTotal *prometheus.CounterVec

	// AnswerDurationSeconds measures full pipeline latency for
	// retrieval-backed answers.
	// Labels: detail_level (short, long)
	AnswerDurationSeconds *prometheus.HistogramVec

	// ActiveSessions tracks the number of live sessions in the store.
	ActiveSessions prometheus.Gauge

	// SweptSessionsTotal counts sessions removed by the TTL sweeper.
	SweptSessionsTotal prometheus.Counter

	// OracleErrorsTotal counts oracle failures by pipeline stage.
	// Labels: stage (small_talk, vague, typo_correction, retrieval,
	// yes_no, summarization, requery)
	OracleErrorsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of QAMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *QAMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// startup; a second call panics on duplicate registration.
func InitMetrics() *QAMetrics {
	DefaultMetrics = &QAMetrics{
		QuestionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: qaSubsystem,
				Name:      "questions_total",
				Help:      "Total questions handled, by pipeline outcome",
			},
			[]string{"outcome"},
		),

		AnswerDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: qaSubsystem,
				Name:      "answer_duration_seconds",
				Help:      "Full pipeline latency for retrieval-backed answers",
				Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"detail_level"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: qaSubsystem,
				Name:      "active_sessions",
				Help:      "Number of live sessions in the store",
			},
		),

		SweptSessionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: qaSubsystem,
				Name:      "swept_sessions_total",
				Help:      "Sessions removed by the TTL sweeper",
			},
		),

		OracleErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: qaSubsystem,
				Name:      "oracle_errors_total",
				Help:      "Oracle failures by pipeline stage",
			},
			[]string{"stage"},
		),
	}

	return DefaultMetrics
}

// RecordOutcome counts one resolved /ask turn.
func (m *QAMetrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.QuestionsTotal.WithLabelValues(outcome).Inc()
}

// RecordAnswerDuration records the pipeline latency of one
// retrieval-backed turn.
func (m *QAMetrics) RecordAnswerDuration(detailLevel string, seconds float64) {
	if m == nil {
		return
	}
	m.AnswerDurationSeconds.WithLabelValues(detailLevel).Observe(seconds)
}

// SetActiveSessions updates the live-session gauge.
func (m *QAMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// RecordSwept adds the latest sweep's eviction count.
func (m *QAMetrics) RecordSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptSessionsTotal.Add(float64(n))
}

// RecordOracleError counts an oracle failure in the given stage.
func (m *QAMetrics) RecordOracleError(stage string) {
	if m == nil {
		return
	}
	m.OracleErrorsTotal.WithLabelValues(stage).Inc()
}
