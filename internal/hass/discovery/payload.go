package discovery

import (
	"strings"

	"github.com/joshp123/unisenza-bridge/internal/hass"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
)

// ClimateConfig is the MQTT discovery document of a climate entity.
type ClimateConfig struct {
	Name     *string `json:"name"`
	UniqueID string  `json:"unique_id"`
	ObjectID string  `json:"object_id,omitempty"`
	QOS      int     `json:"qos"`

	Modes                   []string `json:"modes"`
	ModeStateTopic          string   `json:"mode_state_topic"`
	ModeStateTemplate       string   `json:"mode_state_template"`
	ModeCommandTopic        string   `json:"mode_command_topic"`
	TemperatureStateTopic   string   `json:"temperature_state_topic"`
	TemperatureStateTmpl    string   `json:"temperature_state_template"`
	TemperatureCommandTopic string   `json:"temperature_command_topic,omitempty"`
	CurrentTemperatureTopic string   `json:"current_temperature_topic"`
	CurrentTemperatureTmpl  string   `json:"current_temperature_template"`
	ActionTopic             string   `json:"action_topic"`
	ActionTemplate          string   `json:"action_template"`
	PowerCommandTopic       string   `json:"power_command_topic,omitempty"`
	PayloadOn               string   `json:"payload_on,omitempty"`
	PayloadOff              string   `json:"payload_off,omitempty"`

	MinTemp         float64 `json:"min_temp"`
	MaxTemp         float64 `json:"max_temp"`
	TempStep        float64 `json:"temp_step"`
	TemperatureUnit string  `json:"temperature_unit"`

	Availability     []Availability `json:"availability"`
	AvailabilityMode string         `json:"availability_mode"`

	Device *Device `json:"device,omitempty"`
	Origin Origin  `json:"origin"`
}

// Availability is one availability topic of an entity.
type Availability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
}

// Device is the device block of a discovery document.
type Device struct {
	Identifiers  []string   `json:"identifiers"`
	Connections  [][]string `json:"connections,omitempty"`
	Name         string     `json:"name,omitempty"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Model        string     `json:"model,omitempty"`
	SerialNumber string     `json:"serial_number,omitempty"`
	SWVersion    string     `json:"sw_version,omitempty"`
	ViaDevice    string     `json:"via_device,omitempty"`
}

// Origin names the software publishing the discovery documents.
type Origin struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw_version,omitempty"`
}

// ClimateStateDoc is published to an entity's state topic.
type ClimateStateDoc struct {
	HVACMode           *string  `json:"hvac_mode"`
	HVACAction         *string  `json:"hvac_action"`
	CurrentTemperature *float64 `json:"current_temperature"`
	Temperature        *float64 `json:"temperature"`
	MinTemp            float64  `json:"min_temp"`
	MaxTemp            float64  `json:"max_temp"`
}

func stateDoc(state hass.ClimateState) ClimateStateDoc {
	return ClimateStateDoc{
		HVACMode:           optional(string(state.HVACMode)),
		HVACAction:         optional(string(state.HVACAction)),
		CurrentTemperature: state.CurrentTemperature,
		Temperature:        state.TargetTemperature,
		MinTemp:            state.MinTemp,
		MaxTemp:            state.MaxTemp,
	}
}

func deviceBlock(info *hass.DeviceInfo) *Device {
	if info == nil {
		return nil
	}
	device := &Device{
		Name:         info.Name,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		SerialNumber: info.SerialNumber,
		SWVersion:    info.SWVersion,
	}
	for _, id := range info.Identifiers {
		device.Identifiers = append(device.Identifiers, identifierString(id))
	}
	for _, conn := range info.Connections {
		id := conn.ID
		if conn.Type == hass.ConnectionNetworkMAC {
			id = hass.FormatMAC(id)
		}
		device.Connections = append(device.Connections, []string{conn.Type, id})
	}
	if info.ViaDevice != nil {
		device.ViaDevice = identifierString(*info.ViaDevice)
	}
	return device
}

func identifierString(id hass.Identifier) string {
	return id.Domain + "_" + id.ID
}

func temperatureUnit(unit hass.UnitOfTemperature) string {
	if unit == hass.UnitFahrenheit {
		return "F"
	}
	return "C"
}

// topicSafe maps a unique id onto the characters allowed in a discovery
// object id.
func topicSafe(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
