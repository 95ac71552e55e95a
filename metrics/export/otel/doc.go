// Package otel publishes Engine counters as OpenTelemetry observable
// instruments.
//
// Every counter becomes an Int64ObservableCounter. The latency histogram is
// exported as one cumulative Int64ObservableGauge per histogram with an "le"
// attribute per bucket, plus a _count gauge. A single callback reads one
// snapshot per collection. The caller owns the MeterProvider.
package otel
