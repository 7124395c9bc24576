package unisenza

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"github.com/joshp123/unisenza-bridge/internal/hass"
	"github.com/joshp123/unisenza-bridge/internal/upgw"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) ListGateways(ctx context.Context) ([]upgw.GatewayRecord, error) {
	args := m.Called(ctx)
	gateways, _ := args.Get(0).([]upgw.GatewayRecord)
	return gateways, args.Error(1)
}

func (m *mockAPI) DeviceState(ctx context.Context, deviceID string) (upgw.DeviceState, error) {
	args := m.Called(ctx, deviceID)
	state, _ := args.Get(0).(upgw.DeviceState)
	return state, args.Error(1)
}

func (m *mockAPI) UpdateDeviceState(ctx context.Context, deviceID string, patch upgw.StatePatch) (upgw.DeviceState, error) {
	args := m.Called(ctx, deviceID, patch)
	state, _ := args.Get(0).(upgw.DeviceState)
	return state, args.Error(1)
}

func (m *mockAPI) Close() error {
	return m.Called().Error(0)
}

func ptr[T any](v T) *T { return &v }

func testGateways() []upgw.GatewayRecord {
	return []upgw.GatewayRecord{{
		ID:              "gw-1",
		Name:            "Hallway gateway",
		Model:           "UGW-1",
		MACAddress:      "AA-BB-CC-DD-EE-FF",
		FirmwareVersion: "1.2.3",
		Devices: []upgw.DeviceRecord{
			{ID: "dev-1", SerialNumber: "SN1", Type: upgw.DeviceTypeHVAC, Name: "Living room", Model: "TH-1", Manufacturer: "Purmo", FirmwareVersion: "4.5"},
			{ID: "dev-2", SerialNumber: "", Type: upgw.DeviceTypeHVAC, Name: "Unserialised"},
			{ID: "dev-3", SerialNumber: "SN3", Type: upgw.DeviceTypeUnknown, Name: "Relay"},
		},
	}}
}

func heatingState() upgw.DeviceState {
	return upgw.DeviceState{
		SystemMode:         upgw.SystemModeHeat,
		RunningState:       upgw.RunningStateHeating,
		CurrentTemperature: ptr(20.5),
		TargetTemperature:  ptr(21.0),
		Available:          ptr(true),
	}
}

// newReadyAPI returns a mock with a populated account. Devices without a
// serial number are refreshed too, since they are HVAC devices.
func newReadyAPI() *mockAPI {
	api := &mockAPI{}
	api.On("ListGateways", mock.Anything).Return(testGateways(), nil)
	api.On("DeviceState", mock.Anything, "dev-1").Return(heatingState(), nil)
	api.On("DeviceState", mock.Anything, "dev-2").Return(upgw.DeviceState{Available: ptr(false)}, nil)
	api.On("Close").Return(nil)
	return api
}

type recordingSink struct {
	mu        sync.Mutex
	writes    map[string]int
	added     []string
	removeErr error
}

func (s *recordingSink) failRemovals(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeErr = err
}

func (s *recordingSink) AddEntity(_ context.Context, _ *hass.ConfigEntry, _ hass.Platform, e hass.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, e.UniqueID())
	return nil
}

func (s *recordingSink) RemoveEntity(context.Context, hass.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeErr
}

func (s *recordingSink) WriteState(_ context.Context, e hass.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes == nil {
		s.writes = make(map[string]int)
	}
	s.writes[e.UniqueID()]++
	return nil
}

func (s *recordingSink) writeCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[id]
}

func newTestIntegration(t *testing.T, factory APIFactory) (*hass.HomeAssistant, *Integration, *recordingSink) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	sink := &recordingSink{}
	h := hass.New(hass.Options{Logger: logger, Sink: sink, SetupRetryInterval: time.Hour})
	integration := New(h, Options{Logger: logger, APIFactory: factory})
	return h, integration, sink
}

func staticFactory(api upgw.API, err error) APIFactory {
	return func(context.Context, string, string) (upgw.API, error) {
		if err != nil {
			return nil, err
		}
		return api, nil
	}
}

func credentials() map[string]any {
	return map[string]any{hass.ConfUsername: "test-username", hass.ConfPassword: "test-password"}
}
