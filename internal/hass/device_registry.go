package hass

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
)

// Identifier is a (domain, id) pair that identifies a device to an integration.
type Identifier struct {
	Domain string `json:"domain"`
	ID     string `json:"id"`
}

// Connection is a (type, id) pair such as a MAC address.
type Connection struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// DeviceInfo describes the device an entity belongs to.
type DeviceInfo struct {
	Identifiers  []Identifier
	Connections  []Connection
	Name         string
	Manufacturer string
	Model        string
	SerialNumber string
	SWVersion    string
	ViaDevice    *Identifier
}

// DeviceEntry is a registered device.
type DeviceEntry struct {
	ID            string       `json:"id"`
	ConfigEntries []string     `json:"config_entries"`
	Identifiers   []Identifier `json:"identifiers"`
	Connections   []Connection `json:"connections"`
	Name          string       `json:"name,omitempty"`
	Manufacturer  string       `json:"manufacturer,omitempty"`
	Model         string       `json:"model,omitempty"`
	SerialNumber  string       `json:"serial_number,omitempty"`
	SWVersion     string       `json:"sw_version,omitempty"`
	ViaDeviceID   string       `json:"via_device_id,omitempty"`
}

func (d DeviceEntry) clone() DeviceEntry {
	d.ConfigEntries = append([]string(nil), d.ConfigEntries...)
	d.Identifiers = append([]Identifier(nil), d.Identifiers...)
	d.Connections = append([]Connection(nil), d.Connections...)
	return d
}

// FormatMAC normalises a MAC address to lower-case colon form. Input that is
// not recognisably a MAC address is returned unchanged.
func FormatMAC(mac string) string {
	candidate := mac
	switch {
	case len(candidate) == 17 && strings.Count(candidate, ":") == 5:
		return strings.ToLower(candidate)
	case len(candidate) == 17 && strings.Count(candidate, "-") == 5:
		candidate = strings.ReplaceAll(candidate, "-", "")
	case len(candidate) == 14 && strings.Count(candidate, ".") == 2:
		candidate = strings.ReplaceAll(candidate, ".", "")
	}
	if len(candidate) != 12 {
		return mac
	}
	candidate = strings.ToLower(candidate)
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, candidate[i:i+2])
	}
	return strings.Join(parts, ":")
}

// DeviceRegistry tracks devices by identifiers and connections.
type DeviceRegistry struct {
	mu      sync.Mutex
	devices map[string]*DeviceEntry
}

func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{devices: make(map[string]*DeviceEntry)}
}

// GetOrCreate returns the device matching any of info's identifiers or
// connections, creating it when none matches. Non-empty fields of info
// overwrite the stored ones and identifiers and connections are merged.
func (r *DeviceRegistry) GetOrCreate(configEntryID string, info DeviceInfo) DeviceEntry {
	connections := normalizeConnections(info.Connections)

	r.mu.Lock()
	defer r.mu.Unlock()

	device := r.match(info.Identifiers, connections)
	if device == nil {
		device = &DeviceEntry{ID: newDeviceID()}
		r.devices[device.ID] = device
	}

	if configEntryID != "" && !containsString(device.ConfigEntries, configEntryID) {
		device.ConfigEntries = append(device.ConfigEntries, configEntryID)
	}
	for _, id := range info.Identifiers {
		if !containsIdentifier(device.Identifiers, id) {
			device.Identifiers = append(device.Identifiers, id)
		}
	}
	for _, conn := range connections {
		if !containsConnection(device.Connections, conn) {
			device.Connections = append(device.Connections, conn)
		}
	}
	setIfNotEmpty(&device.Name, info.Name)
	setIfNotEmpty(&device.Manufacturer, info.Manufacturer)
	setIfNotEmpty(&device.Model, info.Model)
	setIfNotEmpty(&device.SerialNumber, info.SerialNumber)
	setIfNotEmpty(&device.SWVersion, info.SWVersion)
	if info.ViaDevice != nil {
		if via := r.match([]Identifier{*info.ViaDevice}, nil); via != nil && via.ID != device.ID {
			device.ViaDeviceID = via.ID
		}
	}
	return device.clone()
}

// Lookup finds a device by identifier.
func (r *DeviceRegistry) Lookup(id Identifier) (DeviceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	device := r.match([]Identifier{id}, nil)
	if device == nil {
		return DeviceEntry{}, false
	}
	return device.clone(), true
}

func (r *DeviceRegistry) Devices() []DeviceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DeviceEntry, 0, len(r.devices))
	for _, device := range r.devices {
		out = append(out, device.clone())
	}
	return out
}

// RemoveConfigEntry detaches a config entry from its devices and drops
// devices left without any entry.
func (r *DeviceRegistry) RemoveConfigEntry(configEntryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, device := range r.devices {
		kept := device.ConfigEntries[:0]
		for _, entryID := range device.ConfigEntries {
			if entryID != configEntryID {
				kept = append(kept, entryID)
			}
		}
		device.ConfigEntries = kept
		if len(kept) == 0 {
			delete(r.devices, id)
		}
	}
	for _, device := range r.devices {
		if _, ok := r.devices[device.ViaDeviceID]; !ok {
			device.ViaDeviceID = ""
		}
	}
}

func (r *DeviceRegistry) match(ids []Identifier, conns []Connection) *DeviceEntry {
	for _, device := range r.devices {
		for _, id := range ids {
			if containsIdentifier(device.Identifiers, id) {
				return device
			}
		}
		for _, conn := range conns {
			if containsConnection(device.Connections, conn) {
				return device
			}
		}
	}
	return nil
}

func normalizeConnections(conns []Connection) []Connection {
	out := make([]Connection, 0, len(conns))
	for _, conn := range conns {
		if conn.Type == ConnectionNetworkMAC {
			conn.ID = FormatMAC(conn.ID)
		}
		out = append(out, conn)
	}
	return out
}

func containsIdentifier(list []Identifier, id Identifier) bool {
	for _, existing := range list {
		if existing == id {
			return true
		}
	}
	return false
}

func containsConnection(list []Connection, conn Connection) bool {
	for _, existing := range list {
		if existing == conn {
			return true
		}
	}
	return false
}

func containsString(list []string, value string) bool {
	for _, existing := range list {
		if existing == value {
			return true
		}
	}
	return false
}

func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func newDeviceID() string {
	return randomHex(16)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
