package hass

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEntity struct {
	EntityBase
	id      string
	added   int
	removed int
	updates int
}

func (e *stubEntity) UniqueID() string { return e.id }
func (e *stubEntity) Name() string     { return "" }

func (e *stubEntity) DeviceInfo() *DeviceInfo {
	return &DeviceInfo{Identifiers: []Identifier{{Domain: "demo", ID: e.id}}, Name: "Stub " + e.id}
}

func (e *stubEntity) AddedToHass(context.Context) error {
	e.added++
	return nil
}

func (e *stubEntity) WillRemoveFromHass(context.Context) error {
	e.removed++
	return nil
}

func (e *stubEntity) Update(context.Context) error {
	e.updates++
	return nil
}

type recordingSink struct {
	mu        sync.Mutex
	added     []string
	removed   []string
	writes    map[string]int
	removeErr error
}

func (s *recordingSink) failRemovals(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeErr = err
}

func (s *recordingSink) AddEntity(_ context.Context, _ *ConfigEntry, _ Platform, e Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, e.UniqueID())
	return nil
}

func (s *recordingSink) RemoveEntity(_ context.Context, e Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	s.removed = append(s.removed, e.UniqueID())
	return nil
}

func (s *recordingSink) WriteState(_ context.Context, e Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes == nil {
		s.writes = make(map[string]int)
	}
	s.writes[e.UniqueID()]++
	return nil
}

type memoryStore struct {
	records []EntryRecord
	saves   int
}

func (m *memoryStore) LoadEntries(context.Context) ([]EntryRecord, error) { return m.records, nil }

func (m *memoryStore) SaveEntries(_ context.Context, records []EntryRecord) error {
	m.saves++
	m.records = records
	return nil
}

type stubIntegration struct {
	mu         sync.Mutex
	setupErrs  []error
	setupCalls int
	entities   map[string]*stubEntity
}

func (s *stubIntegration) Domain() string { return "demo" }

func (s *stubIntegration) SetupEntry(ctx context.Context, h *HomeAssistant, entry *ConfigEntry) error {
	s.mu.Lock()
	s.setupCalls++
	var err error
	if len(s.setupErrs) > 0 {
		err = s.setupErrs[0]
		s.setupErrs = s.setupErrs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return h.ConfigEntries.ForwardEntrySetups(ctx, entry, []Platform{PlatformClimate})
}

func (s *stubIntegration) UnloadEntry(ctx context.Context, h *HomeAssistant, entry *ConfigEntry) (bool, error) {
	return h.ConfigEntries.UnloadPlatforms(ctx, entry, []Platform{PlatformClimate})
}

func (s *stubIntegration) SetupPlatform(_ context.Context, _ *HomeAssistant, entry *ConfigEntry, _ Platform, add AddEntitiesFunc) error {
	entity := &stubEntity{id: entry.EntryID + "-thermostat"}
	s.mu.Lock()
	if s.entities == nil {
		s.entities = make(map[string]*stubEntity)
	}
	s.entities[entry.EntryID] = entity
	s.mu.Unlock()
	add([]Entity{entity})
	return nil
}

func (s *stubIntegration) NewConfigFlow() ConfigFlow { return stubFlow{} }

func (s *stubIntegration) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setupCalls
}

type stubFlow struct{}

func (stubFlow) Step(_ context.Context, stepID string, input map[string]any) (FlowResult, error) {
	if input == nil {
		return ShowForm(stepID, []string{"name"}, nil), nil
	}
	if input["name"] == "" {
		return ShowForm(stepID, []string{"name"}, map[string]string{"base": "missing_name"}), nil
	}
	return CreateEntry("Demo", input), nil
}

func newTestHass(t *testing.T, integration *stubIntegration, store EntryStore) (*HomeAssistant, *recordingSink) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sink := &recordingSink{}
	h := New(Options{Logger: logger, Sink: sink, Store: store, SetupRetryInterval: 10 * time.Millisecond})
	h.RegisterIntegration(integration)
	return h, sink
}

func TestConfigEntryLoadAndUnload(t *testing.T) {
	integration := &stubIntegration{}
	store := &memoryStore{}
	h, sink := newTestHass(t, integration, store)

	entry, err := h.ConfigEntries.Add(context.Background(), EntryRecord{Domain: "demo", Title: "Demo", Data: map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, EntryLoaded, entry.State())
	assert.Equal(t, []Platform{PlatformClimate}, h.ConfigEntries.Platforms(entry))
	require.Len(t, store.records, 1)
	assert.Equal(t, "v", store.records[0].Data["k"])

	entity := integration.entities[entry.EntryID]
	assert.Equal(t, 1, entity.added)
	assert.True(t, entity.Added())
	assert.Equal(t, []string{entity.id}, sink.added)
	assert.Equal(t, 1, sink.writes[entity.id])
	assert.Len(t, h.Entities(entry.EntryID), 1)
	assert.Len(t, h.DeviceRegistry.Devices(), 1)

	entity.ScheduleUpdateState(false)
	assert.Equal(t, 2, sink.writes[entity.id])

	ok, err := h.ConfigEntries.Unload(context.Background(), entry.EntryID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, EntryNotLoaded, entry.State())
	assert.Equal(t, 1, entity.removed)
	assert.False(t, entity.Added())
	assert.Empty(t, h.Entities(entry.EntryID))

	// Detached entities no longer write state.
	entity.ScheduleUpdateState(false)
	assert.Equal(t, 2, sink.writes[entity.id])

	require.NoError(t, h.ConfigEntries.Remove(context.Background(), entry.EntryID))
	assert.Empty(t, store.records)
	assert.Empty(t, h.DeviceRegistry.Devices())
}

func TestConfigEntryAuthFailed(t *testing.T) {
	integration := &stubIntegration{setupErrs: []error{NewConfigEntryAuthFailed("Unable to authenticate", errors.New("401"))}}
	h, _ := newTestHass(t, integration, nil)

	entry, err := h.ConfigEntries.Add(context.Background(), EntryRecord{Domain: "demo"})
	require.NoError(t, err)
	assert.Equal(t, EntrySetupError, entry.State())
	assert.True(t, entry.ReauthRequired())
	assert.Equal(t, "Unable to authenticate", entry.Reason())
}

func TestConfigEntryNotReadyRetries(t *testing.T) {
	integration := &stubIntegration{setupErrs: []error{NewConfigEntryNotReady("Unable to connect", nil)}}
	h, _ := newTestHass(t, integration, nil)

	states := make(chan ConfigEntryState, 8)
	h.ConfigEntries.OnStateChange(func(entry *ConfigEntry) { states <- entry.State() })

	entry, err := h.ConfigEntries.Add(context.Background(), EntryRecord{Domain: "demo"})
	require.NoError(t, err)
	assert.Equal(t, EntrySetupInProgress, <-states)
	assert.Equal(t, EntrySetupRetry, <-states)

	require.Eventually(t, func() bool { return entry.State() == EntryLoaded }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, integration.calls())
}

func TestUnloadCancelsRetry(t *testing.T) {
	integration := &stubIntegration{setupErrs: []error{NewConfigEntryNotReady("Unable to connect", nil)}}
	logger, _ := test.NewNullLogger()
	h := New(Options{Logger: logger, SetupRetryInterval: 50 * time.Millisecond})
	h.RegisterIntegration(integration)

	entry, err := h.ConfigEntries.Add(context.Background(), EntryRecord{Domain: "demo"})
	require.NoError(t, err)
	require.Equal(t, EntrySetupRetry, entry.State())

	ok, err := h.ConfigEntries.Unload(context.Background(), entry.EntryID)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, EntryNotLoaded, entry.State())
	assert.Equal(t, 1, integration.calls())
}

func TestStartLoadsPersistedEntries(t *testing.T) {
	integration := &stubIntegration{}
	store := &memoryStore{records: []EntryRecord{{EntryID: "abc", Domain: "demo", Title: "Demo"}}}
	h, _ := newTestHass(t, integration, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Start(ctx))

	entry, err := h.ConfigEntries.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, EntryLoaded, entry.State())

	h.Stop(context.Background())
	assert.Equal(t, EntryNotLoaded, entry.State())
}

func TestFlowCreatesEntry(t *testing.T) {
	integration := &stubIntegration{}
	h, _ := newTestHass(t, integration, nil)
	ctx := context.Background()

	result, err := h.Flows.Init(ctx, "demo", SourceUser, nil)
	require.NoError(t, err)
	assert.Equal(t, FlowResultForm, result.Type)
	assert.Equal(t, "user", result.StepID)
	assert.Empty(t, result.Errors)
	assert.NotNil(t, result.Errors)

	result, err = h.Flows.Configure(ctx, result.FlowID, map[string]any{"name": ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"base": "missing_name"}, result.Errors)

	result, err = h.Flows.Configure(ctx, result.FlowID, map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, FlowResultCreateEntry, result.Type)
	assert.Equal(t, "demo", result.Handler)
	assert.NotEmpty(t, result.EntryID)
	assert.Len(t, h.ConfigEntries.Entries("demo"), 1)
	assert.Empty(t, h.Flows.InProgress())

	_, err = h.Flows.Configure(ctx, result.FlowID, map[string]any{"name": "x"})
	assert.ErrorIs(t, err, ErrUnknownFlow)
}

func TestFlowUnknownDomain(t *testing.T) {
	h, _ := newTestHass(t, &stubIntegration{}, nil)
	_, err := h.Flows.Init(context.Background(), "missing", SourceUser, nil)
	assert.ErrorIs(t, err, ErrUnknownIntegration)
}

func TestPollRefreshesPollingEntities(t *testing.T) {
	integration := &stubIntegration{}
	h, sink := newTestHass(t, integration, nil)

	entry, err := h.ConfigEntries.Add(context.Background(), EntryRecord{Domain: "demo", Title: "Demo"})
	require.NoError(t, err)
	entity := integration.entities[entry.EntryID]
	require.NotNil(t, entity)
	writes := sink.writes[entity.id]

	h.poll()
	assert.Equal(t, 1, entity.updates)
	assert.Equal(t, writes+1, sink.writes[entity.id])

	_, err = h.ConfigEntries.Unload(context.Background(), entry.EntryID)
	require.NoError(t, err)
	h.poll()
	assert.Equal(t, 1, entity.updates)
}

func TestFailedUnloadIsRetried(t *testing.T) {
	integration := &stubIntegration{}
	store := &memoryStore{}
	h, sink := newTestHass(t, integration, store)
	ctx := context.Background()

	entry, err := h.ConfigEntries.Add(ctx, EntryRecord{Domain: "demo", Title: "Demo"})
	require.NoError(t, err)
	entity := integration.entities[entry.EntryID]

	sink.failRemovals(errors.New("broker offline"))
	ok, err := h.ConfigEntries.Unload(ctx, entry.EntryID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, EntryFailedUnload, entry.State())
	assert.Len(t, h.Entities(entry.EntryID), 1)

	// Still failing: the entry is neither reported unloaded nor removed.
	ok, err = h.ConfigEntries.Unload(ctx, entry.EntryID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, EntryFailedUnload, entry.State())
	assert.Error(t, h.ConfigEntries.Remove(ctx, entry.EntryID))
	assert.Len(t, store.records, 1)
	assert.Error(t, h.ConfigEntries.Setup(ctx, entry.EntryID))
	assert.Equal(t, 1, integration.calls())

	sink.failRemovals(nil)
	require.NoError(t, h.ConfigEntries.Remove(ctx, entry.EntryID))
	assert.Equal(t, EntryNotLoaded, entry.State())
	assert.Equal(t, []string{entity.id}, sink.removed)
	assert.Empty(t, h.Entities(entry.EntryID))
	assert.Empty(t, store.records)
}
