package unisenza

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/joshp123/unisenza-bridge/internal/core"
	"github.com/joshp123/unisenza-bridge/internal/hass"
	"github.com/joshp123/unisenza-bridge/internal/rate"
	"github.com/joshp123/unisenza-bridge/internal/upgw"
)

// APIFactory authenticates against the vendor cloud.
type APIFactory func(ctx context.Context, username, password string) (upgw.API, error)

// Options configures the integration.
type Options struct {
	Logger *logrus.Logger
	// APIOptions are passed to upgw.CreateAPI by the default factory.
	APIOptions []upgw.Option
	// Feed enables the vendor push feed when BrokerURL is set.
	Feed upgw.FeedConfig
	// APIFactory replaces upgw.CreateAPI, mostly in tests.
	APIFactory APIFactory
	// MaxRequestsPerMinute bounds calls to the vendor cloud across all
	// entries. Zero uses DefaultMaxRequestsPerMinute.
	MaxRequestsPerMinute int
}

// Integration hosts Unisenza Plus thermostats. It implements both the host
// integration contract and the daemon's core.Integration contract.
type Integration struct {
	hass      *hass.HomeAssistant
	logger    *logrus.Logger
	feed      upgw.FeedConfig
	create    APIFactory
	metrics   *MetricsCollector
	platforms []hass.Platform
}

// New builds the integration and registers it with h.
func New(h *hass.HomeAssistant, opts Options) *Integration {
	logger := opts.Logger
	if logger == nil {
		logger = h.Logger()
	}
	limit := opts.MaxRequestsPerMinute
	if limit <= 0 {
		limit = DefaultMaxRequestsPerMinute
	}
	create := opts.APIFactory
	if create == nil {
		limited := rate.WrapHTTP(RateLimits(limit), &http.Client{Timeout: 15 * time.Second})
		apiOpts := append([]upgw.Option{upgw.WithHTTPClient(limited)}, opts.APIOptions...)
		create = func(ctx context.Context, username, password string) (upgw.API, error) {
			return upgw.CreateAPI(ctx, username, password, apiOpts...)
		}
	}
	i := &Integration{
		hass:      h,
		logger:    logger,
		feed:      opts.Feed,
		create:    create,
		platforms: Platforms,
	}
	i.metrics = NewMetricsCollector(h)
	h.RegisterIntegration(i)
	return i
}

// RateLimits is the client-side budget for the vendor cloud.
func RateLimits(perMinute int) rate.Declaration {
	return rate.Provider(Domain).
		MaxRequestsPer(rate.Minute, perMinute).
		ReadHeaders(rate.StandardHeaders())
}

func (i *Integration) Domain() string { return Domain }

func (i *Integration) ID() string { return Domain }

func (i *Integration) Manifest() core.Manifest {
	return core.Manifest{
		IntegrationID: Domain,
		DisplayName:   Title,
		Version:       Version,
		Platforms:     []string{string(hass.PlatformClimate)},
	}
}

func (i *Integration) Collectors() []prometheus.Collector {
	return []prometheus.Collector{i.metrics}
}

// Health summarises the entries of the domain. Any entry needing
// reauthentication or failing setup is an error; a pending retry degrades.
func (i *Integration) Health() core.HealthStatus {
	status, _ := i.health()
	return status
}

func (i *Integration) HealthMessage() string {
	_, message := i.health()
	return message
}

func (i *Integration) health() (core.HealthStatus, string) {
	entries := i.hass.ConfigEntries.Entries(Domain)
	if len(entries) == 0 {
		return core.HealthDegraded, "no config entries"
	}
	status := core.HealthHealthy
	message := ""
	for _, entry := range entries {
		switch entry.State() {
		case hass.EntrySetupError, hass.EntryFailedUnload:
			return core.HealthError, fmt.Sprintf("%s: %s", entry.EntryID, entry.Reason())
		case hass.EntrySetupRetry, hass.EntrySetupInProgress, hass.EntryNotLoaded:
			status = core.HealthDegraded
			if message == "" {
				message = fmt.Sprintf("%s: %s", entry.EntryID, entry.State())
				if reason := entry.Reason(); reason != "" {
					message += ": " + reason
				}
			}
		}
	}
	return status, message
}

// EntryStatus maps one entry's state onto the daemon health model.
func EntryStatus(entry *hass.ConfigEntry) core.HealthStatus {
	switch entry.State() {
	case hass.EntryLoaded:
		return core.HealthHealthy
	case hass.EntrySetupError, hass.EntryFailedUnload:
		return core.HealthError
	default:
		return core.HealthDegraded
	}
}

func (i *Integration) NewConfigFlow() hass.ConfigFlow {
	return &ConfigFlow{integration: i}
}

// SetupPlatform sets up one forwarded platform.
func (i *Integration) SetupPlatform(ctx context.Context, h *hass.HomeAssistant, entry *hass.ConfigEntry, platform hass.Platform, add hass.AddEntitiesFunc) error {
	switch platform {
	case hass.PlatformClimate:
		return i.setupClimate(ctx, h, entry, add)
	default:
		return fmt.Errorf("%w: platform %s", hass.ErrNotSupported, platform)
	}
}

// Client returns the vendor client stored for entry, if it is loaded.
func Client(h *hass.HomeAssistant, entryID string) (*upgw.Client, bool) {
	value, ok := h.Data.Get(Domain, entryID)
	if !ok {
		return nil, false
	}
	client, ok := value.(*upgw.Client)
	return client, ok
}
