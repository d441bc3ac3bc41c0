package metrics

import "github.com/kilianp07/freightmatch/core/factory"

// Config defines settings for metrics sinks and the Prometheus endpoint.
type Config struct {
	Sinks          []factory.ModuleConfig `json:"sinks"`
	PrometheusAddr string                 `json:"prometheus_addr"`
}
