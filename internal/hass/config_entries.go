package hass

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ConfigEntries owns the config entries and their setup lifecycle.
type ConfigEntries struct {
	hass          *HomeAssistant
	store         EntryStore
	retryInterval time.Duration

	mu        sync.Mutex
	entries   map[string]*ConfigEntry
	order     []string
	retries   map[string]*time.Timer
	listeners []func(*ConfigEntry)
}

func newConfigEntries(h *HomeAssistant, store EntryStore, retryInterval time.Duration) *ConfigEntries {
	return &ConfigEntries{
		hass:          h,
		store:         store,
		retryInterval: retryInterval,
		entries:       make(map[string]*ConfigEntry),
		retries:       make(map[string]*time.Timer),
	}
}

// OnStateChange registers fn to run after any entry changes state.
func (c *ConfigEntries) OnStateChange(fn func(*ConfigEntry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Entries lists entries of domain in creation order. An empty domain lists all.
func (c *ConfigEntries) Entries(domain string) []*ConfigEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ConfigEntry, 0, len(c.order))
	for _, id := range c.order {
		entry := c.entries[id]
		if domain == "" || entry.Domain == domain {
			out = append(out, entry)
		}
	}
	return out
}

func (c *ConfigEntries) Get(entryID string) (*ConfigEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
	}
	return entry, nil
}

// Add stores a new entry and sets it up. The entry is kept even when setup
// fails; its state reflects the outcome.
func (c *ConfigEntries) Add(ctx context.Context, record EntryRecord) (*ConfigEntry, error) {
	if _, err := c.hass.Integration(record.Domain); err != nil {
		return nil, err
	}
	if record.EntryID == "" {
		record.EntryID = randomHex(13)
	}
	entry := newConfigEntry(record)

	c.mu.Lock()
	if _, exists := c.entries[entry.EntryID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("config entry %s already exists", entry.EntryID)
	}
	c.entries[entry.EntryID] = entry
	c.order = append(c.order, entry.EntryID)
	c.mu.Unlock()

	if err := c.save(ctx); err != nil {
		return nil, err
	}
	if err := c.Setup(ctx, entry.EntryID); err != nil {
		return entry, err
	}
	return entry, nil
}

// Remove unloads an entry, forgets it and detaches its devices. An entry
// whose unload fails is kept so its resources can still be released.
func (c *ConfigEntries) Remove(ctx context.Context, entryID string) error {
	ok, err := c.Unload(ctx, entryID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("config entry %s could not be unloaded", entryID)
	}

	c.mu.Lock()
	delete(c.entries, entryID)
	for i, id := range c.order {
		if id == entryID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.hass.DeviceRegistry.RemoveConfigEntry(entryID)
	return c.save(ctx)
}

// Setup runs the integration's entry setup and records the outcome. Entries
// that are not ready are retried on a fixed interval. A non-nil error means
// setup could not be attempted at all.
func (c *ConfigEntries) Setup(ctx context.Context, entryID string) error {
	entry, err := c.Get(entryID)
	if err != nil {
		return err
	}
	integration, err := c.hass.Integration(entry.Domain)
	if err != nil {
		return err
	}

	switch entry.State() {
	case EntryLoaded, EntrySetupInProgress:
		return nil
	case EntryFailedUnload:
		return fmt.Errorf("config entry %s failed to unload and cannot be set up", entryID)
	}
	c.cancelRetry(entryID)
	c.transition(entry, EntrySetupInProgress, "")

	log := c.hass.logger.WithFields(logrus.Fields{"domain": entry.Domain, "entry_id": entry.EntryID})
	err = integration.SetupEntry(ctx, c.hass, entry)

	var notReady *ConfigEntryNotReady
	var authFailed *ConfigEntryAuthFailed
	switch {
	case err == nil:
		c.transition(entry, EntryLoaded, "")
		log.Info("config entry loaded")
	case errors.As(err, &authFailed):
		entry.mu.Lock()
		entry.reauthRequired = true
		entry.mu.Unlock()
		c.transition(entry, EntrySetupError, authFailed.Error())
		log.WithError(err).Error("config entry authentication failed, reauthentication required")
	case errors.As(err, &notReady):
		c.transition(entry, EntrySetupRetry, notReady.Error())
		c.scheduleRetry(entryID)
		log.WithError(err).WithField("retry_in", c.retryInterval).Warn("config entry not ready")
	default:
		c.transition(entry, EntrySetupError, err.Error())
		log.WithError(err).Error("config entry setup failed")
	}
	return nil
}

// Unload tears down a loaded entry. Entries waiting for a retry simply stop
// retrying. An entry that failed to unload runs the integration's unload
// again. It reports whether the entry is now unloaded.
func (c *ConfigEntries) Unload(ctx context.Context, entryID string) (bool, error) {
	entry, err := c.Get(entryID)
	if err != nil {
		return false, err
	}
	c.cancelRetry(entryID)

	switch entry.State() {
	case EntryLoaded, EntryFailedUnload:
	case EntryNotLoaded:
		return true, nil
	default:
		c.transition(entry, EntryNotLoaded, "")
		return true, nil
	}

	integration, err := c.hass.Integration(entry.Domain)
	if err != nil {
		return false, err
	}
	ok, err := integration.UnloadEntry(ctx, c.hass, entry)
	if err != nil || !ok {
		c.transition(entry, EntryFailedUnload, errString(err))
		return false, err
	}
	c.transition(entry, EntryNotLoaded, "")
	return true, nil
}

// Reload unloads and sets up an entry again.
func (c *ConfigEntries) Reload(ctx context.Context, entryID string) error {
	ok, err := c.Unload(ctx, entryID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("config entry %s could not be unloaded", entryID)
	}
	return c.Setup(ctx, entryID)
}

// ForwardEntrySetups sets up the given platforms for entry.
func (c *ConfigEntries) ForwardEntrySetups(ctx context.Context, entry *ConfigEntry, platforms []Platform) error {
	integration, err := c.hass.Integration(entry.Domain)
	if err != nil {
		return err
	}
	for _, platform := range platforms {
		add := func(entities []Entity) {
			c.hass.addEntities(ctx, entry, platform, entities)
		}
		if err := integration.SetupPlatform(ctx, c.hass, entry, platform, add); err != nil {
			return fmt.Errorf("setup platform %s: %w", platform, err)
		}
		entry.addPlatform(platform)
	}
	return nil
}

// UnloadPlatforms removes the entities of the given platforms. It reports
// true when every platform unloaded cleanly.
func (c *ConfigEntries) UnloadPlatforms(ctx context.Context, entry *ConfigEntry, platforms []Platform) (bool, error) {
	ok := true
	for _, platform := range platforms {
		if err := c.hass.removeEntities(ctx, entry, platform); err != nil {
			c.hass.logger.WithError(err).WithFields(logrus.Fields{
				"entry_id": entry.EntryID,
				"platform": platform,
			}).Warn("platform unload failed")
			ok = false
			continue
		}
		entry.removePlatform(platform)
	}
	return ok, nil
}

// Platforms lists the platforms currently forwarded for entry.
func (c *ConfigEntries) Platforms(entry *ConfigEntry) []Platform {
	return entry.forwarded()
}

func (c *ConfigEntries) load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	records, err := c.store.LoadEntries(ctx)
	if err != nil {
		return fmt.Errorf("load config entries: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range records {
		if _, exists := c.entries[record.EntryID]; exists || record.EntryID == "" {
			continue
		}
		c.entries[record.EntryID] = newConfigEntry(record)
		c.order = append(c.order, record.EntryID)
	}
	return nil
}

func (c *ConfigEntries) save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	entries := c.Entries("")
	records := make([]EntryRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, entry.Record())
	}
	if err := c.store.SaveEntries(ctx, records); err != nil {
		return fmt.Errorf("save config entries: %w", err)
	}
	return nil
}

func (c *ConfigEntries) transition(entry *ConfigEntry, state ConfigEntryState, reason string) {
	entry.setState(state, reason)
	c.mu.Lock()
	listeners := append([]func(*ConfigEntry){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(entry)
	}
}

func (c *ConfigEntries) scheduleRetry(entryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer, ok := c.retries[entryID]; ok {
		timer.Stop()
	}
	c.retries[entryID] = time.AfterFunc(c.retryInterval, func() {
		c.mu.Lock()
		delete(c.retries, entryID)
		c.mu.Unlock()

		ctx := c.hass.backgroundContext()
		if ctx.Err() != nil {
			return
		}
		if entry, err := c.Get(entryID); err != nil || entry.State() != EntrySetupRetry {
			return
		}
		if err := c.Setup(ctx, entryID); err != nil {
			c.hass.logger.WithError(err).WithField("entry_id", entryID).Warn("config entry retry failed")
		}
	})
}

func (c *ConfigEntries) cancelRetry(entryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer, ok := c.retries[entryID]; ok {
		timer.Stop()
		delete(c.retries, entryID)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
