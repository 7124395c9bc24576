package hass

import (
	"fmt"
	"sync"
)

// ConfigEntryState is the lifecycle state of a config entry.
type ConfigEntryState string

const (
	EntryNotLoaded       ConfigEntryState = "not_loaded"
	EntrySetupInProgress ConfigEntryState = "setup_in_progress"
	EntryLoaded          ConfigEntryState = "loaded"
	EntrySetupError      ConfigEntryState = "setup_error"
	EntrySetupRetry      ConfigEntryState = "setup_retry"
	EntryFailedUnload    ConfigEntryState = "failed_unload"
)

// EntryRecord is the persisted form of a config entry.
type EntryRecord struct {
	EntryID string         `json:"entry_id"`
	Domain  string         `json:"domain"`
	Title   string         `json:"title"`
	Source  string         `json:"source"`
	Data    map[string]any `json:"data"`
}

// ConfigEntry is one configured instance of an integration.
type ConfigEntry struct {
	EntryID string
	Domain  string
	Title   string
	Source  string
	Data    map[string]any

	mu             sync.RWMutex
	state          ConfigEntryState
	reason         string
	reauthRequired bool
	platforms      []Platform
}

func newConfigEntry(record EntryRecord) *ConfigEntry {
	data := make(map[string]any, len(record.Data))
	for k, v := range record.Data {
		data[k] = v
	}
	return &ConfigEntry{
		EntryID: record.EntryID,
		Domain:  record.Domain,
		Title:   record.Title,
		Source:  record.Source,
		Data:    data,
		state:   EntryNotLoaded,
	}
}

// NewConfigEntry builds a standalone entry, mostly for tests and tooling.
func NewConfigEntry(entryID, domain, title string, data map[string]any) *ConfigEntry {
	return newConfigEntry(EntryRecord{EntryID: entryID, Domain: domain, Title: title, Source: SourceUser, Data: data})
}

func (e *ConfigEntry) Record() EntryRecord {
	data := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		data[k] = v
	}
	return EntryRecord{EntryID: e.EntryID, Domain: e.Domain, Title: e.Title, Source: e.Source, Data: data}
}

func (e *ConfigEntry) State() ConfigEntryState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Reason is the message of the last setup failure, empty once loaded.
func (e *ConfigEntry) Reason() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reason
}

// ReauthRequired reports whether the last setup failed on credentials.
func (e *ConfigEntry) ReauthRequired() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reauthRequired
}

func (e *ConfigEntry) setState(state ConfigEntryState, reason string) {
	e.mu.Lock()
	e.state = state
	e.reason = reason
	if state == EntryLoaded {
		e.reauthRequired = false
	}
	e.mu.Unlock()
}

func (e *ConfigEntry) forwarded() []Platform {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Platform(nil), e.platforms...)
}

func (e *ConfigEntry) addPlatform(p Platform) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.platforms {
		if existing == p {
			return
		}
	}
	e.platforms = append(e.platforms, p)
}

func (e *ConfigEntry) removePlatform(p Platform) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.platforms {
		if existing == p {
			e.platforms = append(e.platforms[:i], e.platforms[i+1:]...)
			return
		}
	}
}

// String returns a string value from Data.
func (e *ConfigEntry) String(key string) (string, error) {
	raw, ok := e.Data[key]
	if !ok {
		return "", fmt.Errorf("config entry %s: missing %q", e.EntryID, key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("config entry %s: %q is %T, not a string", e.EntryID, key, raw)
	}
	return value, nil
}
