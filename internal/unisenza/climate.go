package unisenza

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshp123/unisenza-bridge/internal/hass"
	"github.com/joshp123/unisenza-bridge/internal/upgw"
)

var hvacModeToSystemMode = map[hass.HVACMode]upgw.SystemMode{
	hass.HVACModeOff:  upgw.SystemModeOff,
	hass.HVACModeHeat: upgw.SystemModeHeat,
}

var systemModeToHVACMode = map[upgw.SystemMode]hass.HVACMode{
	upgw.SystemModeOff:  hass.HVACModeOff,
	upgw.SystemModeHeat: hass.HVACModeHeat,
}

var runningStateToHVACAction = map[upgw.RunningState]hass.HVACAction{
	upgw.RunningStateIdle:    hass.HVACActionIdle,
	upgw.RunningStateHeating: hass.HVACActionHeating,
}

func (i *Integration) setupClimate(_ context.Context, h *hass.HomeAssistant, entry *hass.ConfigEntry, add hass.AddEntitiesFunc) error {
	client, ok := Client(h, entry.EntryID)
	if !ok {
		return fmt.Errorf("no client stored for entry %s", entry.EntryID)
	}

	var entities []hass.Entity
	for _, pair := range client.GetDevices() {
		if pair.Device.Type() != upgw.DeviceTypeHVAC || pair.Device.SerialNumber() == "" {
			continue
		}
		entities = append(entities, NewClimate(pair.Gateway, pair.Device))
	}
	add(entities)
	return nil
}

// Climate is a climate entity backed by one HVAC device. State is pushed by
// the device; the entity is never polled.
type Climate struct {
	hass.EntityBase

	gateway *upgw.Gateway
	device  *upgw.HvacDevice
}

func NewClimate(gateway *upgw.Gateway, device *upgw.HvacDevice) *Climate {
	return &Climate{gateway: gateway, device: device}
}

func (c *Climate) UniqueID() string { return c.device.SerialNumber() }

// Name is empty so the entity takes the device name.
func (c *Climate) Name() string { return "" }

func (c *Climate) HasEntityName() bool { return true }

func (c *Climate) ShouldPoll() bool { return false }

func (c *Climate) Available() bool { return c.device.IsAvailable() }

func (c *Climate) DeviceInfo() *hass.DeviceInfo {
	return &hass.DeviceInfo{
		Identifiers:  []hass.Identifier{{Domain: Domain, ID: c.device.SerialNumber()}},
		Name:         c.device.Name(),
		Manufacturer: c.device.Manufacturer(),
		Model:        c.device.Model(),
		SerialNumber: c.device.SerialNumber(),
		SWVersion:    c.device.FirmwareVersion(),
		ViaDevice:    &hass.Identifier{Domain: Domain, ID: hass.FormatMAC(c.gateway.MACAddress())},
	}
}

func (c *Climate) SupportedFeatures() hass.ClimateEntityFeature {
	return hass.ClimateTargetTemperature | hass.ClimateTurnOn | hass.ClimateTurnOff
}

func (c *Climate) HVACModes() []hass.HVACMode {
	return []hass.HVACMode{hass.HVACModeOff, hass.HVACModeHeat}
}

func (c *Climate) TemperatureUnit() hass.UnitOfTemperature { return hass.UnitCelsius }

func (c *Climate) TargetTemperatureStep() float64 { return TemperatureStep }

func (c *Climate) CurrentTemperature() *float64 { return c.device.CurrentTemperature() }

func (c *Climate) TargetTemperature() *float64 { return c.device.TargetTemperature() }

func (c *Climate) HVACMode() hass.HVACMode {
	return systemModeToHVACMode[c.device.SystemMode()]
}

// HVACAction is off whenever the mode is off, whatever the device reports.
func (c *Climate) HVACAction() hass.HVACAction {
	if c.HVACMode() == hass.HVACModeOff {
		return hass.HVACActionOff
	}
	return runningStateToHVACAction[c.device.RunningState()]
}

// MinTemp falls back to the default when the device reports nothing or 0.
func (c *Climate) MinTemp() float64 {
	if value := c.device.MinTemp(); value != nil && *value != 0 {
		return *value
	}
	return DefaultMinTemp
}

func (c *Climate) MaxTemp() float64 {
	if value := c.device.MaxTemp(); value != nil && *value != 0 {
		return *value
	}
	return DefaultMaxTemp
}

func (c *Climate) AddedToHass(context.Context) error {
	c.device.Subscribe(c)
	return nil
}

func (c *Climate) WillRemoveFromHass(context.Context) error {
	c.device.Unsubscribe(c)
	return nil
}

// OnDeviceUpdate writes the new state without refreshing from the cloud.
func (c *Climate) OnDeviceUpdate(*upgw.HvacDevice, map[string]any) {
	c.ScheduleUpdateState(false)
}

func (c *Climate) Update(ctx context.Context) error {
	return wrapClientError(c.device.Refresh(ctx))
}

// SetHVACMode ignores modes the device has no equivalent for.
func (c *Climate) SetHVACMode(ctx context.Context, mode hass.HVACMode) error {
	systemMode, ok := hvacModeToSystemMode[mode]
	if !ok {
		return nil
	}
	return wrapClientError(c.device.UpdateSystemMode(ctx, systemMode))
}

// SetTemperature applies the temperature key. A missing or zero value is
// ignored.
func (c *Climate) SetTemperature(ctx context.Context, data map[string]any) error {
	temperature, ok := toFloat(data[hass.AttrTemperature])
	if !ok || temperature == 0 {
		return nil
	}
	return wrapClientError(c.device.UpdateTargetTemperature(ctx, temperature))
}

func (c *Climate) TurnOn(ctx context.Context) error {
	return wrapClientError(c.device.UpdateSystemMode(ctx, upgw.SystemModeHeat))
}

func (c *Climate) TurnOff(ctx context.Context) error {
	return wrapClientError(c.device.UpdateSystemMode(ctx, upgw.SystemModeOff))
}

func wrapClientError(err error) error {
	if err == nil {
		return nil
	}
	var clientErr *upgw.ClientError
	if errors.As(err, &clientErr) {
		return hass.NewError(err.Error(), err)
	}
	return err
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
