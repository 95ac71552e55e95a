// Package prometheus exposes Engine counters through client_golang.
//
// [Collector] implements prometheus.Collector over an Engine snapshot. Counters
// are named goidentity_<name>_total and the ValidateAccess latency histogram is
// goidentity_validate_latency_seconds. [Handler] serves a private registry so
// nothing is added to the global default registry.
package prometheus
