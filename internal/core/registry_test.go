package core

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubIntegration struct {
	id            string
	name          string
	version       string
	platforms     []string
	health        HealthStatus
	healthMessage string
	collectors    []prometheus.Collector
}

func (s stubIntegration) ID() string { return s.id }

func (s stubIntegration) Manifest() Manifest {
	return Manifest{
		IntegrationID: s.id,
		DisplayName:   s.name,
		Version:       s.version,
		Platforms:     s.platforms,
	}
}

func (s stubIntegration) Collectors() []prometheus.Collector { return s.collectors }

func (s stubIntegration) Health() HealthStatus { return s.health }

func (s stubIntegration) HealthMessage() string { return s.healthMessage }

func newStubIntegration(id string) stubIntegration {
	return stubIntegration{
		id:        id,
		name:      "Demo",
		version:   "0.1.0",
		platforms: []string{"climate"},
		health:    HealthHealthy,
	}
}

func TestRegistryList(t *testing.T) {
	integration := newStubIntegration("demo")
	registry := NewRegistry([]Integration{integration})

	list := registry.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 integration, got %d", len(list))
	}

	got := list[0]
	if got.IntegrationID != "demo" || got.DisplayName != "Demo" || got.Version != "0.1.0" {
		t.Fatalf("unexpected integration summary: %+v", got)
	}
	if got.Status != string(HealthHealthy) {
		t.Fatalf("unexpected health status: %s", got.Status)
	}
}

func TestRegistryDescribe(t *testing.T) {
	integration := newStubIntegration("demo")
	integration.health = HealthDegraded
	integration.healthMessage = "entry-1: setup_retry"
	registry := NewRegistry([]Integration{integration})

	desc, ok := registry.Describe("demo")
	if !ok {
		t.Fatalf("expected descriptor")
	}
	if desc.IntegrationID != "demo" {
		t.Fatalf("unexpected integration id: %s", desc.IntegrationID)
	}
	if len(desc.Platforms) != 1 || desc.Platforms[0] != "climate" {
		t.Fatalf("unexpected platforms: %v", desc.Platforms)
	}
	if desc.Status != string(HealthDegraded) || desc.HealthMessage != "entry-1: setup_retry" {
		t.Fatalf("unexpected health: %s %q", desc.Status, desc.HealthMessage)
	}

	if _, ok := registry.Describe("missing"); ok {
		t.Fatalf("expected missing integration to be absent")
	}
}

func TestFilterIntegrations(t *testing.T) {
	compiled := []Integration{newStubIntegration("demo"), newStubIntegration("extra")}

	active := FilterIntegrations(compiled, map[string]bool{"demo": true}, false)
	if len(active) != 1 || active[0].ID() != "demo" {
		t.Fatalf("unexpected active integrations: %v", active)
	}

	active = FilterIntegrations(compiled, map[string]bool{}, true)
	if len(active) != 2 {
		t.Fatalf("expected all integrations, got %d", len(active))
	}
}

func TestValidateEnabledIntegrations(t *testing.T) {
	compiled := []Integration{newStubIntegration("demo")}

	if err := ValidateEnabledIntegrations(compiled, map[string]bool{"demo": true}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ValidateEnabledIntegrations(compiled, map[string]bool{"missing": true}, false); err == nil {
		t.Fatalf("expected error for missing integration")
	}
}

func TestValidateIntegrations(t *testing.T) {
	if err := ValidateIntegrations([]Integration{newStubIntegration("unisenza_plus")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateIntegrations([]Integration{newStubIntegration("demo"), newStubIntegration("demo")}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if err := ValidateIntegrations([]Integration{newStubIntegration("Bad-ID")}); err == nil {
		t.Fatalf("expected pattern error")
	}
}

func TestMetricsRegistry(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "demo_gauge", Help: "demo"})
	integration := newStubIntegration("demo")
	integration.collectors = []prometheus.Collector{gauge}
	extra := prometheus.NewCounter(prometheus.CounterOpts{Name: "demo_extra_total", Help: "demo"})

	registry := MetricsRegistry([]Integration{integration}, extra)
	count, err := testutil.GatherAndCount(registry)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 metrics, got %d", count)
	}
}
