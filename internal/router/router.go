package router

import (
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joshp123/unisenza-bridge/internal/core"
	"github.com/joshp123/unisenza-bridge/internal/hass"
)

// EntryServiceName is the health service name of one config entry.
func EntryServiceName(domain, entryID string) string {
	return domain + "/" + entryID
}

// Health mirrors integration and config entry state into the gRPC health
// service. The empty service name tracks the daemon itself.
type Health struct {
	server       *health.Server
	hass         *hass.HomeAssistant
	integrations []core.Integration

	mu    sync.Mutex
	known map[string]bool
}

// Register wires core services on the gRPC server and keeps health in sync
// with config entry transitions.
func Register(server *grpc.Server, h *hass.HomeAssistant, integrations []core.Integration) *Health {
	hs := &Health{
		server:       health.NewServer(),
		hass:         h,
		integrations: integrations,
		known:        make(map[string]bool),
	}
	healthpb.RegisterHealthServer(server, hs.server)
	reflection.Register(server)

	h.ConfigEntries.OnStateChange(func(*hass.ConfigEntry) { hs.Sync() })
	hs.Sync()
	return hs
}

// Sync recomputes every serving status.
func (hs *Health) Sync() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	hs.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, integration := range hs.integrations {
		hs.server.SetServingStatus(integration.ID(), integrationStatus(integration.Health()))
	}

	current := make(map[string]bool)
	for _, entry := range hs.hass.ConfigEntries.Entries("") {
		name := EntryServiceName(entry.Domain, entry.EntryID)
		current[name] = true
		hs.server.SetServingStatus(name, entryStatus(entry.State()))
	}
	for name := range hs.known {
		if !current[name] {
			hs.server.SetServingStatus(name, healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
		}
	}
	hs.known = current
}

// Shutdown marks every service NOT_SERVING.
func (hs *Health) Shutdown() {
	hs.server.Shutdown()
}

func integrationStatus(status core.HealthStatus) healthpb.HealthCheckResponse_ServingStatus {
	if status == core.HealthError {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

func entryStatus(state hass.ConfigEntryState) healthpb.HealthCheckResponse_ServingStatus {
	if state == hass.EntryLoaded {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
