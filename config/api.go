package config

import "fmt"

// APIConfig controls the HTTP API and websocket stream.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
}

// Validate checks mandatory fields.
func (c APIConfig) Validate() error {
	if c.Enabled && c.Address == "" {
		return fmt.Errorf("address is required")
	}
	return nil
}

// MetricsConfig exposes Prometheus metrics on a dedicated listener when
// PrometheusAddr is set. The API serves /metrics as well.
type MetricsConfig struct {
	PrometheusAddr string `json:"prometheus_addr"`
}
