// Package metrics defines the sinks that record quote and retraining events.
// Sinks like the Prometheus and Influx implementations in infra/metrics are
// built from configuration through the factory registry; NewSink returns a
// MultiSink automatically when several sinks are configured.
package metrics
