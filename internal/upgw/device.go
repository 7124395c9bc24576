package upgw

import (
	"context"
	"sync"
)

// Listener receives change notifications for a device. Changes maps the JSON
// field names of DeviceState to their new values.
type Listener interface {
	OnDeviceUpdate(device *HvacDevice, changes map[string]any)
}

// HvacDevice is a thermostat-class device. State is owned by the device and
// updated by Refresh, by command responses and by the change feed.
type HvacDevice struct {
	api    API
	record DeviceRecord

	mu        sync.RWMutex
	state     DeviceState
	listeners []Listener
}

func newHvacDevice(api API, record DeviceRecord) *HvacDevice {
	return &HvacDevice{api: api, record: record}
}

func (d *HvacDevice) ID() string              { return d.record.ID }
func (d *HvacDevice) Type() DeviceType        { return d.record.Type }
func (d *HvacDevice) SerialNumber() string    { return d.record.SerialNumber }
func (d *HvacDevice) Name() string            { return d.record.Name }
func (d *HvacDevice) Model() string           { return d.record.Model }
func (d *HvacDevice) Manufacturer() string    { return d.record.Manufacturer }
func (d *HvacDevice) FirmwareVersion() string { return d.record.FirmwareVersion }

func (d *HvacDevice) SystemMode() SystemMode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.SystemMode
}

func (d *HvacDevice) RunningState() RunningState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.RunningState
}

func (d *HvacDevice) CurrentTemperature() *float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyFloat(d.state.CurrentTemperature)
}

func (d *HvacDevice) TargetTemperature() *float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyFloat(d.state.TargetTemperature)
}

func (d *HvacDevice) MinTemp() *float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyFloat(d.state.MinTemp)
}

func (d *HvacDevice) MaxTemp() *float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyFloat(d.state.MaxTemp)
}

// IsAvailable reports whether the cloud currently reaches the device.
func (d *HvacDevice) IsAvailable() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.Available != nil && *d.state.Available
}

// Refresh fetches the live state from the cloud.
func (d *HvacDevice) Refresh(ctx context.Context) error {
	state, err := d.api.DeviceState(ctx, d.record.ID)
	if err != nil {
		return err
	}
	d.apply(state)
	return nil
}

// UpdateSystemMode sends a new operating mode.
func (d *HvacDevice) UpdateSystemMode(ctx context.Context, mode SystemMode) error {
	state, err := d.api.UpdateDeviceState(ctx, d.record.ID, StatePatch{SystemMode: mode})
	if err != nil {
		return err
	}
	d.apply(state)
	return nil
}

// UpdateTargetTemperature sends a new setpoint in degrees Celsius.
func (d *HvacDevice) UpdateTargetTemperature(ctx context.Context, celsius float64) error {
	state, err := d.api.UpdateDeviceState(ctx, d.record.ID, StatePatch{TargetTemperature: &celsius})
	if err != nil {
		return err
	}
	d.apply(state)
	return nil
}

// Subscribe registers l for change notifications. Registering the same
// listener twice has no effect.
func (d *HvacDevice) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.listeners {
		if existing == l {
			return
		}
	}
	d.listeners = append(d.listeners, l)
}

func (d *HvacDevice) Unsubscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.listeners {
		if existing == l {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

// apply merges reported fields into the current state and notifies
// listeners when anything changed. Unreported fields keep their value.
func (d *HvacDevice) apply(update DeviceState) {
	d.mu.Lock()
	changes := make(map[string]any)
	if update.SystemMode != "" && update.SystemMode != d.state.SystemMode {
		d.state.SystemMode = update.SystemMode
		changes["system_mode"] = update.SystemMode
	}
	if update.RunningState != "" && update.RunningState != d.state.RunningState {
		d.state.RunningState = update.RunningState
		changes["running_state"] = update.RunningState
	}
	mergeFloat(&d.state.CurrentTemperature, update.CurrentTemperature, "current_temperature", changes)
	mergeFloat(&d.state.TargetTemperature, update.TargetTemperature, "target_temperature", changes)
	mergeFloat(&d.state.MinTemp, update.MinTemp, "min_temp", changes)
	mergeFloat(&d.state.MaxTemp, update.MaxTemp, "max_temp", changes)
	if update.Available != nil && (d.state.Available == nil || *d.state.Available != *update.Available) {
		value := *update.Available
		d.state.Available = &value
		changes["available"] = value
	}
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()

	if len(changes) == 0 {
		return
	}
	for _, l := range listeners {
		l.OnDeviceUpdate(d, changes)
	}
}

func mergeFloat(dst **float64, src *float64, key string, changes map[string]any) {
	if src == nil {
		return
	}
	if *dst != nil && **dst == *src {
		return
	}
	value := *src
	*dst = &value
	changes[key] = value
}

func copyFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}
