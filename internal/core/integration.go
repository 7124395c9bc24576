package core

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// HealthStatus represents integration health states for registry reporting.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Manifest describes an integration for discovery and registry metadata.
type Manifest struct {
	IntegrationID string   `json:"integration_id"`
	DisplayName   string   `json:"display_name"`
	Version       string   `json:"version"`
	Platforms     []string `json:"platforms"`
}

// Integration is the compile-time contract the daemon hosts.
type Integration interface {
	ID() string
	Manifest() Manifest
	Collectors() []prometheus.Collector
	Health() HealthStatus
	HealthMessage() string
}

// HTTPRegistrant allows integrations to expose HTTP handlers.
type HTTPRegistrant interface {
	RegisterHTTP(*http.ServeMux)
}
