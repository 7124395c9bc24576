package integrations

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/joshp123/unisenza-bridge/internal/config"
	"github.com/joshp123/unisenza-bridge/internal/core"
	"github.com/joshp123/unisenza-bridge/internal/hass"
)

// Deps are the daemon services a factory may wire into its integration.
type Deps struct {
	Config *config.Config
	Hass   *hass.HomeAssistant
	Logger *logrus.Logger
}

// Factory builds an integration from the loaded config. Returning false
// leaves the integration out of this run.
type Factory func(Deps) (core.Integration, bool, error)

var compiled []Factory

// Register adds a compiled-in integration factory to the registry.
func Register(factory Factory) {
	compiled = append(compiled, factory)
}

// Compiled returns the configured integration instances for this build.
func Compiled(deps Deps) ([]core.Integration, error) {
	if deps.Config == nil || deps.Hass == nil {
		return nil, nil
	}
	out := make([]core.Integration, 0, len(compiled))
	for _, factory := range compiled {
		integration, ok, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("build integration: %w", err)
		}
		if !ok {
			continue
		}
		out = append(out, integration)
	}
	return out, nil
}
