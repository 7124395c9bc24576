package core

import (
	"sync"
)

// Summary is the registry view of one integration.
type Summary struct {
	IntegrationID string `json:"integration_id"`
	DisplayName   string `json:"display_name"`
	Version       string `json:"version"`
	Status        string `json:"status"`
}

// Descriptor is the detailed registry view of one integration.
type Descriptor struct {
	Summary
	Platforms     []string `json:"platforms"`
	HealthMessage string   `json:"health_message,omitempty"`
}

// Registry provides integration discovery to clients.
type Registry struct {
	integrations []Integration
	mu           sync.RWMutex
}

func NewRegistry(integrations []Integration) *Registry {
	return &Registry{integrations: integrations}
}

func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.integrations))
	for _, integration := range r.integrations {
		out = append(out, summarize(integration))
	}
	return out
}

func (r *Registry) Describe(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, integration := range r.integrations {
		manifest := integration.Manifest()
		if manifest.IntegrationID != id {
			continue
		}
		return Descriptor{
			Summary:       summarize(integration),
			Platforms:     manifest.Platforms,
			HealthMessage: integration.HealthMessage(),
		}, true
	}
	return Descriptor{}, false
}

// Integrations returns the registered integrations.
func (r *Registry) Integrations() []Integration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Integration(nil), r.integrations...)
}

func summarize(integration Integration) Summary {
	manifest := integration.Manifest()
	return Summary{
		IntegrationID: manifest.IntegrationID,
		DisplayName:   manifest.DisplayName,
		Version:       manifest.Version,
		Status:        string(integration.Health()),
	}
}
