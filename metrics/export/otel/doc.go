// Package otel provides OpenTelemetry metric exporter bindings for authcore
// counters and histograms.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter and, for
// each histogram, one bucket gauge observed per "le" bound plus a count
// gauge. A single callback reads [authcore.Engine.MetricsSnapshot] on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
