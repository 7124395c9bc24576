package hass

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultSetupRetryInterval = 30 * time.Second
	DefaultScanInterval       = 30 * time.Second
)

// Integration is the contract a domain implements to be hosted.
type Integration interface {
	Domain() string
	SetupEntry(ctx context.Context, h *HomeAssistant, entry *ConfigEntry) error
	UnloadEntry(ctx context.Context, h *HomeAssistant, entry *ConfigEntry) (bool, error)
	SetupPlatform(ctx context.Context, h *HomeAssistant, entry *ConfigEntry, platform Platform, add AddEntitiesFunc) error
	NewConfigFlow() ConfigFlow
}

// AddEntitiesFunc hands new entities of a platform to the host.
type AddEntitiesFunc func(entities []Entity)

// EntitySink is where the host exposes entities.
type EntitySink interface {
	StateWriter
	AddEntity(ctx context.Context, entry *ConfigEntry, platform Platform, entity Entity) error
	RemoveEntity(ctx context.Context, entity Entity) error
}

// EntryStore persists config entries.
type EntryStore interface {
	LoadEntries(ctx context.Context) ([]EntryRecord, error)
	SaveEntries(ctx context.Context, records []EntryRecord) error
}

// Options configures a HomeAssistant runtime.
type Options struct {
	Logger             *logrus.Logger
	Sink               EntitySink
	Store              EntryStore
	SetupRetryInterval time.Duration
	// ScanInterval is how often entities that poll are refreshed.
	ScanInterval time.Duration
}

// HomeAssistant is the host runtime integrations are set up against.
type HomeAssistant struct {
	Data           *DataStore
	DeviceRegistry *DeviceRegistry
	ConfigEntries  *ConfigEntries
	Flows          *FlowManager

	logger       *logrus.Logger
	sink         EntitySink
	scanInterval time.Duration

	mu           sync.RWMutex
	ctx          context.Context
	integrations map[string]Integration
	entities     map[string]map[Platform][]Entity
}

func New(opts Options) *HomeAssistant {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	interval := opts.SetupRetryInterval
	if interval <= 0 {
		interval = DefaultSetupRetryInterval
	}
	scan := opts.ScanInterval
	if scan <= 0 {
		scan = DefaultScanInterval
	}

	h := &HomeAssistant{
		Data:           newDataStore(),
		DeviceRegistry: NewDeviceRegistry(),
		logger:         logger,
		sink:           sink,
		scanInterval:   scan,
		ctx:            context.Background(),
		integrations:   make(map[string]Integration),
		entities:       make(map[string]map[Platform][]Entity),
	}
	h.ConfigEntries = newConfigEntries(h, opts.Store, interval)
	h.Flows = newFlowManager(h)
	return h
}

func (h *HomeAssistant) Logger() *logrus.Logger { return h.logger }

func (h *HomeAssistant) RegisterIntegration(integration Integration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.integrations[integration.Domain()] = integration
}

func (h *HomeAssistant) Integration(domain string) (Integration, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	integration, ok := h.integrations[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegration, domain)
	}
	return integration, nil
}

// Start loads persisted entries and sets each one up. ctx bounds background
// work such as setup retries.
func (h *HomeAssistant) Start(ctx context.Context) error {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	if err := h.ConfigEntries.load(ctx); err != nil {
		return err
	}
	for _, entry := range h.ConfigEntries.Entries("") {
		if err := h.ConfigEntries.Setup(ctx, entry.EntryID); err != nil {
			h.logger.WithError(err).WithField("entry_id", entry.EntryID).Warn("config entry setup skipped")
		}
	}
	go h.pollLoop(ctx)
	return nil
}

func (h *HomeAssistant) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(h.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.poll()
		}
	}
}

// poll refreshes every added entity that asks to be polled.
func (h *HomeAssistant) poll() {
	h.mu.RLock()
	var due []Entity
	for _, platforms := range h.entities {
		for _, list := range platforms {
			for _, entity := range list {
				if entity.ShouldPoll() {
					due = append(due, entity)
				}
			}
		}
	}
	h.mu.RUnlock()

	for _, entity := range due {
		entity.base().ScheduleUpdateState(true)
	}
}

// Stop unloads every loaded entry.
func (h *HomeAssistant) Stop(ctx context.Context) {
	for _, entry := range h.ConfigEntries.Entries("") {
		if _, err := h.ConfigEntries.Unload(ctx, entry.EntryID); err != nil {
			h.logger.WithError(err).WithField("entry_id", entry.EntryID).Warn("config entry unload failed")
		}
	}
}

func (h *HomeAssistant) backgroundContext() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// Entities returns the entities currently added for an entry, sorted by
// unique id.
func (h *HomeAssistant) Entities(entryID string) []Entity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Entity
	for _, list := range h.entities[entryID] {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID() < out[j].UniqueID() })
	return out
}

func (h *HomeAssistant) addEntities(ctx context.Context, entry *ConfigEntry, platform Platform, entities []Entity) {
	for _, entity := range entities {
		log := h.logger.WithFields(logrus.Fields{
			"entry_id":  entry.EntryID,
			"platform":  platform,
			"unique_id": entity.UniqueID(),
		})
		if entity.DeviceInfo() != nil {
			h.DeviceRegistry.GetOrCreate(entry.EntryID, *entity.DeviceInfo())
		}
		entity.base().bind(h.backgroundContext(), entity, h.sink, h.reportEntityError)
		if err := entity.AddedToHass(ctx); err != nil {
			log.WithError(err).Error("entity setup failed")
			entity.base().unbind()
			continue
		}
		if err := h.sink.AddEntity(ctx, entry, platform, entity); err != nil {
			log.WithError(err).Error("entity could not be exposed")
			_ = entity.WillRemoveFromHass(ctx)
			entity.base().unbind()
			continue
		}

		h.mu.Lock()
		if h.entities[entry.EntryID] == nil {
			h.entities[entry.EntryID] = make(map[Platform][]Entity)
		}
		h.entities[entry.EntryID][platform] = append(h.entities[entry.EntryID][platform], entity)
		h.mu.Unlock()

		entity.base().ScheduleUpdateState(false)
		log.Debug("entity added")
	}
}

func (h *HomeAssistant) removeEntities(ctx context.Context, entry *ConfigEntry, platform Platform) error {
	h.mu.Lock()
	entities := h.entities[entry.EntryID][platform]
	delete(h.entities[entry.EntryID], platform)
	if len(h.entities[entry.EntryID]) == 0 {
		delete(h.entities, entry.EntryID)
	}
	h.mu.Unlock()

	var (
		firstErr error
		pending  []Entity
	)
	for _, entity := range entities {
		if err := entity.WillRemoveFromHass(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := h.sink.RemoveEntity(ctx, entity); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// Kept so the next unload tries to remove it again.
			pending = append(pending, entity)
		}
		entity.base().unbind()
	}
	if len(pending) > 0 {
		h.mu.Lock()
		if h.entities[entry.EntryID] == nil {
			h.entities[entry.EntryID] = make(map[Platform][]Entity)
		}
		h.entities[entry.EntryID][platform] = append(h.entities[entry.EntryID][platform], pending...)
		h.mu.Unlock()
	}
	return firstErr
}

func (h *HomeAssistant) reportEntityError(entity Entity, err error) {
	h.logger.WithError(err).WithField("unique_id", entity.UniqueID()).Warn("entity state update failed")
}

// DataStore is per-domain integration storage.
type DataStore struct {
	mu sync.RWMutex
	m  map[string]map[string]any
}

func newDataStore() *DataStore {
	return &DataStore{m: make(map[string]map[string]any)}
}

// Ensure creates the domain's map if it does not exist yet.
func (d *DataStore) Ensure(domain string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.m[domain] == nil {
		d.m[domain] = make(map[string]any)
	}
}

func (d *DataStore) Put(domain, key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.m[domain] == nil {
		d.m[domain] = make(map[string]any)
	}
	d.m[domain][key] = value
}

func (d *DataStore) Get(domain, key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	value, ok := d.m[domain][key]
	return value, ok
}

func (d *DataStore) Pop(domain, key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	value, ok := d.m[domain][key]
	if ok {
		delete(d.m[domain], key)
	}
	return value, ok
}

// Has reports whether the domain's map exists.
func (d *DataStore) Has(domain string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.m[domain]
	return ok
}

// Values returns the domain's values keyed by entry.
func (d *DataStore) Values(domain string) map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.m[domain]))
	for k, v := range d.m[domain] {
		out[k] = v
	}
	return out
}

type nopSink struct{}

func (nopSink) WriteState(context.Context, Entity) error { return nil }

func (nopSink) AddEntity(context.Context, *ConfigEntry, Platform, Entity) error { return nil }

func (nopSink) RemoveEntity(context.Context, Entity) error { return nil }
