package core

import (
	fmt "fmt"
	"regexp"
	"sort"
	"strings"
)

var integrationIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)

// ValidateIntegrations enforces basic integration contract invariants at startup.
func ValidateIntegrations(integrations []Integration) error {
	seen := make(map[string]bool)
	for _, integration := range integrations {
		id := integration.ID()
		manifest := integration.Manifest()
		if id == "" {
			return fmt.Errorf("integration id is empty")
		}
		if !integrationIDPattern.MatchString(id) {
			return fmt.Errorf("integration id %q does not match %s", id, integrationIDPattern.String())
		}
		if manifest.IntegrationID != id {
			return fmt.Errorf("integration id mismatch: id=%q manifest=%q", id, manifest.IntegrationID)
		}
		if seen[id] {
			return fmt.Errorf("duplicate integration id: %s", id)
		}
		seen[id] = true
	}
	return nil
}

// FilterIntegrations keeps the enabled integrations, or all of them when
// enableAll is set.
func FilterIntegrations(compiled []Integration, enabled map[string]bool, enableAll bool) []Integration {
	if enableAll {
		return compiled
	}
	out := make([]Integration, 0, len(compiled))
	for _, integration := range compiled {
		if enabled[integration.ID()] {
			out = append(out, integration)
		}
	}
	return out
}

// ValidateEnabledIntegrations fails when config enables an integration that
// is not compiled in.
func ValidateEnabledIntegrations(compiled []Integration, enabled map[string]bool, enableAll bool) error {
	if enableAll {
		return nil
	}
	known := make(map[string]bool, len(compiled))
	for _, integration := range compiled {
		known[integration.ID()] = true
	}
	var missing []string
	for id, on := range enabled {
		if on && !known[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("enabled integrations not compiled in: %s", strings.Join(missing, ", "))
	}
	return nil
}
