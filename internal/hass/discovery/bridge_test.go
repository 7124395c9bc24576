package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/unisenza-bridge/internal/hass"
)

type message struct {
	payload  string
	retained bool
}

type fakeBroker struct {
	mu        sync.Mutex
	published map[string][]message
	handlers  map[string]func(string, []byte)
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{published: map[string][]message{}, handlers: map[string]func(string, []byte){}}
}

func (f *fakeBroker) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], message{payload: string(payload), retained: retained})
	return nil
}

func (f *fakeBroker) Subscribe(topic string, cb func(string, []byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = cb
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, topic)
	}, nil
}

func (f *fakeBroker) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()
	require.True(t, ok, "no subscription for %s", topic)
	handler(topic, []byte(payload))
}

func (f *fakeBroker) last(topic string) (message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.published[topic]
	if len(msgs) == 0 {
		return message{}, false
	}
	return msgs[len(msgs)-1], true
}

func (f *fakeBroker) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[topic])
}

type fakeClimate struct {
	hass.EntityBase
	mode    hass.HVACMode
	target  *float64
	updates int
	failOn  hass.HVACMode
}

func (f *fakeClimate) UniqueID() string      { return "SN.1" }
func (f *fakeClimate) Name() string          { return "" }
func (f *fakeClimate) HasEntityName() bool   { return true }
func (f *fakeClimate) ShouldPoll() bool      { return false }
func (f *fakeClimate) Available() bool       { return true }
func (f *fakeClimate) HVACMode() hass.HVACMode { return f.mode }
func (f *fakeClimate) HVACAction() hass.HVACAction {
	if f.mode == hass.HVACModeOff {
		return hass.HVACActionOff
	}
	return hass.HVACActionHeating
}
func (f *fakeClimate) HVACModes() []hass.HVACMode {
	return []hass.HVACMode{hass.HVACModeOff, hass.HVACModeHeat}
}
func (f *fakeClimate) SupportedFeatures() hass.ClimateEntityFeature {
	return hass.ClimateTargetTemperature | hass.ClimateTurnOn | hass.ClimateTurnOff
}
func (f *fakeClimate) CurrentTemperature() *float64            { v := 20.5; return &v }
func (f *fakeClimate) TargetTemperature() *float64             { return f.target }
func (f *fakeClimate) MinTemp() float64                        { return 5 }
func (f *fakeClimate) MaxTemp() float64                        { return 30 }
func (f *fakeClimate) TargetTemperatureStep() float64          { return 0.5 }
func (f *fakeClimate) TemperatureUnit() hass.UnitOfTemperature { return hass.UnitCelsius }

func (f *fakeClimate) DeviceInfo() *hass.DeviceInfo {
	return &hass.DeviceInfo{
		Identifiers:  []hass.Identifier{{Domain: "unisenza_plus", ID: "SN.1"}},
		Name:         "Living room",
		Manufacturer: "Purmo",
		ViaDevice:    &hass.Identifier{Domain: "unisenza_plus", ID: "aa:bb:cc:dd:ee:ff"},
	}
}

func (f *fakeClimate) Update(context.Context) error {
	f.updates++
	return nil
}

func (f *fakeClimate) SetHVACMode(_ context.Context, mode hass.HVACMode) error {
	if mode == f.failOn {
		return hass.NewError("device rejected mode", errors.New("status 500"))
	}
	f.mode = mode
	return nil
}

func (f *fakeClimate) SetTemperature(_ context.Context, data map[string]any) error {
	value := data[hass.AttrTemperature].(float64)
	f.target = &value
	return nil
}

func (f *fakeClimate) TurnOn(ctx context.Context) error  { return f.SetHVACMode(ctx, hass.HVACModeHeat) }
func (f *fakeClimate) TurnOff(ctx context.Context) error { return f.SetHVACMode(ctx, hass.HVACModeOff) }

func newTestBridge(t *testing.T) (*Bridge, *fakeBroker) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	broker := newFakeBroker()
	bridge := NewBridge(broker, Config{Origin: Origin{Name: "unisenza-bridge", SWVersion: "test"}}, logger)
	require.NoError(t, bridge.Start(context.Background()))
	return bridge, broker
}

func TestAddEntityPublishesDiscovery(t *testing.T) {
	bridge, broker := newTestBridge(t)
	entity := &fakeClimate{mode: hass.HVACModeHeat}
	entry := hass.NewConfigEntry("entry-1", "unisenza_plus", "Unisenza Plus", nil)

	require.NoError(t, bridge.AddEntity(context.Background(), entry, hass.PlatformClimate, entity))

	msg, ok := broker.last("homeassistant/climate/SN_1/config")
	require.True(t, ok)
	assert.True(t, msg.retained)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.payload), &cfg))
	assert.Nil(t, cfg["name"])
	assert.Equal(t, "SN.1", cfg["unique_id"])
	assert.Equal(t, []any{"off", "heat"}, cfg["modes"])
	assert.Equal(t, "unisenza/SN_1/mode/set", cfg["mode_command_topic"])
	assert.Equal(t, "unisenza/SN_1/temperature/set", cfg["temperature_command_topic"])
	assert.Equal(t, "unisenza/SN_1/power/set", cfg["power_command_topic"])
	assert.Equal(t, "C", cfg["temperature_unit"])
	assert.Equal(t, 0.5, cfg["temp_step"])

	device := cfg["device"].(map[string]any)
	assert.Equal(t, []any{"unisenza_plus_SN.1"}, device["identifiers"])
	assert.Equal(t, "unisenza_plus_aa:bb:cc:dd:ee:ff", device["via_device"])

	availability, ok := broker.last(BridgeAvailabilityTopic(""))
	require.True(t, ok)
	assert.Equal(t, PayloadOnline, availability.payload)
	assert.Equal(t, 1.0, testutil.ToFloat64(bridge.entities))
}

func TestWriteStatePublishesDocument(t *testing.T) {
	bridge, broker := newTestBridge(t)
	entity := &fakeClimate{mode: hass.HVACModeOff}
	entry := hass.NewConfigEntry("entry-1", "unisenza_plus", "Unisenza Plus", nil)
	require.NoError(t, bridge.AddEntity(context.Background(), entry, hass.PlatformClimate, entity))

	require.NoError(t, bridge.WriteState(context.Background(), entity))

	msg, ok := broker.last("unisenza/SN_1/state")
	require.True(t, ok)
	assert.JSONEq(t, `{"hvac_mode":"off","hvac_action":"off","current_temperature":20.5,"temperature":null,"min_temp":5,"max_temp":30}`, msg.payload)

	availability, ok := broker.last("unisenza/SN_1/availability")
	require.True(t, ok)
	assert.Equal(t, PayloadOnline, availability.payload)
}

func TestCommandsDispatchToEntity(t *testing.T) {
	bridge, broker := newTestBridge(t)
	entity := &fakeClimate{mode: hass.HVACModeOff, failOn: hass.HVACModeCool}
	entry := hass.NewConfigEntry("entry-1", "unisenza_plus", "Unisenza Plus", nil)
	require.NoError(t, bridge.AddEntity(context.Background(), entry, hass.PlatformClimate, entity))

	broker.deliver(t, "unisenza/SN_1/mode/set", "heat")
	assert.Equal(t, hass.HVACModeHeat, entity.mode)

	broker.deliver(t, "unisenza/SN_1/temperature/set", "21.5")
	require.NotNil(t, entity.target)
	assert.Equal(t, 21.5, *entity.target)

	broker.deliver(t, "unisenza/SN_1/power/set", "OFF")
	assert.Equal(t, hass.HVACModeOff, entity.mode)

	broker.deliver(t, "unisenza/SN_1/update", "")
	assert.Equal(t, 1, entity.updates)
	assert.Equal(t, 1, broker.count("unisenza/SN_1/state"))

	// Not one of the entity's modes.
	broker.deliver(t, "unisenza/SN_1/mode/set", "cool")
	assert.Equal(t, 1.0, testutil.ToFloat64(bridge.commandErrors.WithLabelValues("mode")))

	// Out of range.
	broker.deliver(t, "unisenza/SN_1/temperature/set", "45")
	broker.deliver(t, "unisenza/SN_1/temperature/set", "warm")
	assert.Equal(t, 2.0, testutil.ToFloat64(bridge.commandErrors.WithLabelValues("temperature")))
	assert.Equal(t, 21.5, *entity.target)
}

func TestRemoveEntityClearsDiscovery(t *testing.T) {
	bridge, broker := newTestBridge(t)
	entity := &fakeClimate{mode: hass.HVACModeHeat}
	entry := hass.NewConfigEntry("entry-1", "unisenza_plus", "Unisenza Plus", nil)
	require.NoError(t, bridge.AddEntity(context.Background(), entry, hass.PlatformClimate, entity))

	require.NoError(t, bridge.RemoveEntity(context.Background(), entity))

	msg, ok := broker.last("homeassistant/climate/SN_1/config")
	require.True(t, ok)
	assert.Empty(t, msg.payload)
	assert.True(t, msg.retained)

	availability, _ := broker.last("unisenza/SN_1/availability")
	assert.Equal(t, PayloadOffline, availability.payload)

	broker.mu.Lock()
	_, subscribed := broker.handlers["unisenza/SN_1/mode/set"]
	broker.mu.Unlock()
	assert.False(t, subscribed)
	assert.Equal(t, 0.0, testutil.ToFloat64(bridge.entities))
}

func TestStatusOnlineRepublishes(t *testing.T) {
	bridge, broker := newTestBridge(t)
	entity := &fakeClimate{mode: hass.HVACModeHeat}
	entry := hass.NewConfigEntry("entry-1", "unisenza_plus", "Unisenza Plus", nil)
	require.NoError(t, bridge.AddEntity(context.Background(), entry, hass.PlatformClimate, entity))
	require.Equal(t, 1, broker.count("homeassistant/climate/SN_1/config"))

	broker.deliver(t, "homeassistant/status", "offline")
	assert.Equal(t, 1, broker.count("homeassistant/climate/SN_1/config"))

	broker.deliver(t, "homeassistant/status", "online")
	assert.Equal(t, 2, broker.count("homeassistant/climate/SN_1/config"))

	bridge.Close()
	availability, _ := broker.last(BridgeAvailabilityTopic(""))
	assert.Equal(t, PayloadOffline, availability.payload)
}

func TestAddEntityRejectsOtherPlatforms(t *testing.T) {
	bridge, _ := newTestBridge(t)
	entity := &fakeClimate{}
	entry := hass.NewConfigEntry("entry-1", "unisenza_plus", "Unisenza Plus", nil)

	err := bridge.AddEntity(context.Background(), entry, hass.PlatformSensor, entity)
	assert.ErrorIs(t, err, hass.ErrNotSupported)
}
