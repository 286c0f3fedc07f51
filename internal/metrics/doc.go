// Package metrics defines the Prometheus metrics exported by the dictation
// pipeline and its control API.
package metrics
