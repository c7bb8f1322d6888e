// Package metrics provides Prometheus metrics collection for Custodian.
//
// # Overview
//
// A Collector owns a private Prometheus registry and the metric families of
// every compliance component: detection ingestion and review, retention
// cleanup runs, deletion request processing, the policy cache and the audit
// ledger.
//
// # Metrics Categories
//
//   - Detection Metrics: ingested and rejected detections, review transitions
//   - Retention Metrics: records deleted, skipped, conflicted or failed per run, run duration
//   - Erasure Metrics: records erased, request transitions, overdue requests
//   - Policy Metrics: snapshot version, reloads, fallback expirations
//   - Audit Metrics: entries by event type and impact
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordDetectionIngested("email", "medium")
//	mux.Handle("/metrics", collector.Handler())
//
// Every Record method is a no-op on a nil or disabled collector.
//
// # Cardinality
//
// Labels only carry bounded enumerations, except pii_type which is capped by
// a CardinalityLimiter; values beyond the cap are reported as "other".
// Identifiers such as user ids or record ids are never used as labels.
package metrics
