// Package internaldefs holds the metric names, help strings and bucket bounds
// shared by the Prometheus and OpenTelemetry exporters.
//
// Both exporters read definitions from here so a renamed counter changes in
// every backend at once.
package internaldefs
