package upgw

// SystemMode is the operating mode reported and accepted by a thermostat.
type SystemMode string

const (
	SystemModeOff  SystemMode = "off"
	SystemModeHeat SystemMode = "heat"
)

// RunningState is the live activity of a thermostat.
type RunningState string

const (
	RunningStateIdle    RunningState = "idle"
	RunningStateHeating RunningState = "heating"
)

// DeviceType classifies devices attached to a gateway.
type DeviceType string

const (
	DeviceTypeHVAC    DeviceType = "hvac"
	DeviceTypeGateway DeviceType = "gateway"
	DeviceTypeUnknown DeviceType = "unknown"
)

// GatewayRecord is the wire form of a gateway and its attached devices.
type GatewayRecord struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Model           string         `json:"model"`
	MACAddress      string         `json:"mac_address"`
	FirmwareVersion string         `json:"firmware_version"`
	Devices         []DeviceRecord `json:"devices"`
}

// DeviceRecord is the wire form of a device's static attributes.
type DeviceRecord struct {
	ID              string     `json:"id"`
	SerialNumber    string     `json:"serial_number"`
	Type            DeviceType `json:"type"`
	Name            string     `json:"name"`
	Model           string     `json:"model"`
	Manufacturer    string     `json:"manufacturer"`
	FirmwareVersion string     `json:"firmware_version"`
}

// DeviceState is the live state of a thermostat. Nil fields were not reported.
type DeviceState struct {
	SystemMode         SystemMode   `json:"system_mode,omitempty"`
	RunningState       RunningState `json:"running_state,omitempty"`
	CurrentTemperature *float64     `json:"current_temperature,omitempty"`
	TargetTemperature  *float64     `json:"target_temperature,omitempty"`
	MinTemp            *float64     `json:"min_temp,omitempty"`
	MaxTemp            *float64     `json:"max_temp,omitempty"`
	Available          *bool        `json:"available,omitempty"`
}

// StatePatch carries a command. Only set fields are sent.
type StatePatch struct {
	SystemMode        SystemMode `json:"system_mode,omitempty"`
	TargetTemperature *float64   `json:"target_temperature,omitempty"`
}

// Gateway is a network bridge discovered on the account.
type Gateway struct {
	record GatewayRecord
}

func (g *Gateway) ID() string              { return g.record.ID }
func (g *Gateway) Name() string            { return g.record.Name }
func (g *Gateway) Model() string           { return g.record.Model }
func (g *Gateway) MACAddress() string      { return g.record.MACAddress }
func (g *Gateway) FirmwareVersion() string { return g.record.FirmwareVersion }

// GatewayDevice pairs a device with the gateway it is attached to.
type GatewayDevice struct {
	Gateway *Gateway
	Device  *HvacDevice
}
