/*
Package metrics provides Prometheus metrics for grilobridge.

# Overview

Collector implements types.MetricsCollector. Every source instance reports
completed operations, errors, protocol violations and in-flight requests to
it, and the plugin manager reports the number of live instances.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Address:   "127.0.0.1:9090",
		Path:      "/metrics",
		Namespace: "grilobridge",
	}, logger)
	if err != nil {
		return err
	}

	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

# Prometheus Metrics

Counters:
  - grilobridge_operations_total{operation,source,status}
  - grilobridge_errors_total{operation,code}
  - grilobridge_protocol_violations_total{source}

Histograms:
  - grilobridge_operation_duration_seconds{operation}

Gauges:
  - grilobridge_requests_in_flight{source}
  - grilobridge_source_instances

Error codes come from pkg/errors; errors that carry no code are counted as
UNKNOWN_ERROR.

# HTTP Endpoints

	/metrics            Prometheus exposition (path is configurable)
	/health             {"status":"healthy","service":"grilobridge-metrics"}
	/debug/operations   per-operation counts and average durations as JSON

A disabled collector accepts every call and records nothing.
*/
package metrics
