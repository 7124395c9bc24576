package hass

// Platform names an entity platform an integration can forward to.
type Platform string

const (
	PlatformClimate Platform = "climate"
	PlatformSensor  Platform = "sensor"
)

// HVACMode is the operating mode of a climate entity.
type HVACMode string

const (
	HVACModeOff      HVACMode = "off"
	HVACModeHeat     HVACMode = "heat"
	HVACModeCool     HVACMode = "cool"
	HVACModeHeatCool HVACMode = "heat_cool"
	HVACModeAuto     HVACMode = "auto"
	HVACModeDry      HVACMode = "dry"
	HVACModeFanOnly  HVACMode = "fan_only"
)

// HVACAction is what a climate entity is currently doing.
type HVACAction string

const (
	HVACActionOff        HVACAction = "off"
	HVACActionHeating    HVACAction = "heating"
	HVACActionCooling    HVACAction = "cooling"
	HVACActionDrying     HVACAction = "drying"
	HVACActionIdle       HVACAction = "idle"
	HVACActionFan        HVACAction = "fan"
	HVACActionPreheating HVACAction = "preheating"
)

// ClimateEntityFeature is a bit set of optional climate capabilities.
type ClimateEntityFeature uint32

const (
	ClimateTargetTemperature ClimateEntityFeature = 1 << iota
	ClimateTargetTemperatureRange
	ClimateTargetHumidity
	ClimateFanMode
	ClimatePresetMode
	ClimateSwingMode
	ClimateAuxHeat
	ClimateTurnOff
	ClimateTurnOn
)

// Has reports whether every bit in flag is set.
func (f ClimateEntityFeature) Has(flag ClimateEntityFeature) bool {
	return f&flag == flag
}

// UnitOfTemperature is a temperature unit symbol.
type UnitOfTemperature string

const (
	UnitCelsius    UnitOfTemperature = "°C"
	UnitFahrenheit UnitOfTemperature = "°F"
)

const (
	AttrTemperature = "temperature"
	ConfUsername    = "username"
	ConfPassword    = "password"

	// ConnectionNetworkMAC is the device registry connection type for MAC addresses.
	ConnectionNetworkMAC = "mac"
)

const (
	SourceUser   = "user"
	SourceReauth = "reauth"
	SourceImport = "import"
)
