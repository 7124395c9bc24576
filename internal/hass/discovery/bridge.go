package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/joshp123/unisenza-bridge/internal/hass"
)

const (
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultBaseTopic       = "unisenza"
	commandTimeout         = 15 * time.Second
)

// Broker is the MQTT surface the bridge publishes through.
type Broker interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, cb func(topic string, payload []byte)) (func(), error)
}

// Config sets the topic layout.
type Config struct {
	DiscoveryPrefix string
	BaseTopic       string
	// StatusTopic carries Home Assistant's birth message. Discovery documents
	// are republished whenever it reports online.
	StatusTopic string
	Origin      Origin
}

func (c Config) withDefaults() Config {
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if c.BaseTopic == "" {
		c.BaseTopic = DefaultBaseTopic
	}
	c.DiscoveryPrefix = strings.TrimSuffix(c.DiscoveryPrefix, "/")
	c.BaseTopic = strings.TrimSuffix(c.BaseTopic, "/")
	if c.StatusTopic == "" {
		c.StatusTopic = c.DiscoveryPrefix + "/status"
	}
	if c.Origin.Name == "" {
		c.Origin.Name = "unisenza-bridge"
	}
	return c
}

// BridgeAvailabilityTopic is where the bridge's own online/offline state is
// published. It doubles as the broker last-will topic.
func BridgeAvailabilityTopic(baseTopic string) string {
	if baseTopic == "" {
		baseTopic = DefaultBaseTopic
	}
	return strings.TrimSuffix(baseTopic, "/") + "/bridge/availability"
}

type binding struct {
	entity hass.ClimateEntity
	object string
	unsubs []func()
}

// Bridge exposes hosted entities to Home Assistant through MQTT discovery.
// It implements hass.EntitySink.
type Bridge struct {
	broker Broker
	cfg    Config
	logger *logrus.Logger

	mu        sync.Mutex
	ctx       context.Context
	bindings  map[string]*binding
	statusOff func()

	publishes     *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	commandErrors *prometheus.CounterVec
	entities      prometheus.Gauge
}

func NewBridge(broker Broker, cfg Config, logger *logrus.Logger) *Bridge {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bridge{
		broker:   broker,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		ctx:      context.Background(),
		bindings: make(map[string]*binding),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unisenza_mqtt_publish_total",
			Help: "MQTT messages published by kind",
		}, []string{"kind"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unisenza_mqtt_publish_errors_total",
			Help: "Failed MQTT publishes by kind",
		}, []string{"kind"}),
		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unisenza_mqtt_command_errors_total",
			Help: "Entity commands from Home Assistant that failed",
		}, []string{"command"}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unisenza_mqtt_entities",
			Help: "Entities currently exposed over MQTT discovery",
		}),
	}
}

// Start announces the bridge and listens for Home Assistant restarts. ctx
// bounds command handling.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	unsub, err := b.broker.Subscribe(b.cfg.StatusTopic, func(_ string, payload []byte) {
		if strings.TrimSpace(string(payload)) == PayloadOnline {
			b.logger.Info("home assistant online, republishing discovery")
			b.republish()
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.cfg.StatusTopic, err)
	}
	b.mu.Lock()
	b.statusOff = unsub
	b.mu.Unlock()

	return b.publish("availability", BridgeAvailabilityTopic(b.cfg.BaseTopic), []byte(PayloadOnline), true)
}

// Close marks the bridge offline and drops its subscriptions. Discovery
// documents stay retained so entities survive a bridge restart.
func (b *Bridge) Close() {
	b.mu.Lock()
	bindings := b.bindings
	b.bindings = make(map[string]*binding)
	statusOff := b.statusOff
	b.statusOff = nil
	b.mu.Unlock()

	for _, bound := range bindings {
		for _, unsub := range bound.unsubs {
			unsub()
		}
	}
	if statusOff != nil {
		statusOff()
	}
	_ = b.publish("availability", BridgeAvailabilityTopic(b.cfg.BaseTopic), []byte(PayloadOffline), true)
	b.entities.Set(0)
}

func (b *Bridge) Collectors() []prometheus.Collector {
	return []prometheus.Collector{b.publishes, b.publishErrors, b.commandErrors, b.entities}
}

// AddEntity publishes the discovery document of a climate entity and
// subscribes to its command topics.
func (b *Bridge) AddEntity(_ context.Context, entry *hass.ConfigEntry, platform hass.Platform, entity hass.Entity) error {
	climate, ok := entity.(hass.ClimateEntity)
	if platform != hass.PlatformClimate || !ok {
		return fmt.Errorf("%w: platform %s", hass.ErrNotSupported, platform)
	}

	bound := &binding{entity: climate, object: topicSafe(entity.UniqueID())}
	commands := map[string]func(string){
		b.topic(bound, "mode/set"):        func(p string) { b.handleMode(climate, p) },
		b.topic(bound, "temperature/set"): func(p string) { b.handleTemperature(climate, p) },
		b.topic(bound, "power/set"):       func(p string) { b.handlePower(climate, p) },
		b.topic(bound, "update"):          func(string) { b.handleUpdate(climate) },
	}
	for topic, handler := range commands {
		handler := handler
		unsub, err := b.broker.Subscribe(topic, func(_ string, payload []byte) {
			handler(strings.TrimSpace(string(payload)))
		})
		if err != nil {
			for _, done := range bound.unsubs {
				done()
			}
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		bound.unsubs = append(bound.unsubs, unsub)
	}

	if err := b.publishConfig(bound); err != nil {
		for _, done := range bound.unsubs {
			done()
		}
		return err
	}

	b.mu.Lock()
	b.bindings[entity.UniqueID()] = bound
	b.entities.Set(float64(len(b.bindings)))
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"entry_id":  entry.EntryID,
		"unique_id": entity.UniqueID(),
	}).Info("entity exposed over mqtt discovery")
	return nil
}

// WriteState publishes the entity's state document and availability.
func (b *Bridge) WriteState(_ context.Context, entity hass.Entity) error {
	b.mu.Lock()
	bound, ok := b.bindings[entity.UniqueID()]
	b.mu.Unlock()
	if !ok {
		// Not exposed yet; AddEntity publishes state once it is.
		return nil
	}
	return b.publishState(bound)
}

// RemoveEntity deletes the entity from Home Assistant by clearing its
// retained discovery document.
func (b *Bridge) RemoveEntity(_ context.Context, entity hass.Entity) error {
	b.mu.Lock()
	bound, ok := b.bindings[entity.UniqueID()]
	delete(b.bindings, entity.UniqueID())
	b.entities.Set(float64(len(b.bindings)))
	b.mu.Unlock()
	if !ok {
		return nil
	}

	for _, unsub := range bound.unsubs {
		unsub()
	}
	if err := b.publish("availability", b.topic(bound, "availability"), []byte(PayloadOffline), true); err != nil {
		return err
	}
	return b.publish("config", b.configTopic(bound), nil, true)
}

func (b *Bridge) republish() {
	b.mu.Lock()
	bindings := make([]*binding, 0, len(b.bindings))
	for _, bound := range b.bindings {
		bindings = append(bindings, bound)
	}
	b.mu.Unlock()

	_ = b.publish("availability", BridgeAvailabilityTopic(b.cfg.BaseTopic), []byte(PayloadOnline), true)
	for _, bound := range bindings {
		if err := b.publishConfig(bound); err != nil {
			b.logger.WithError(err).WithField("unique_id", bound.entity.UniqueID()).Warn("republish failed")
		}
	}
}

func (b *Bridge) publishConfig(bound *binding) error {
	entity := bound.entity
	modes := make([]string, 0, len(entity.HVACModes()))
	for _, mode := range entity.HVACModes() {
		modes = append(modes, string(mode))
	}
	stateTopic := b.topic(bound, "state")

	cfg := ClimateConfig{
		UniqueID:                entity.UniqueID(),
		QOS:                     1,
		Modes:                   modes,
		ModeStateTopic:          stateTopic,
		ModeStateTemplate:       "{{ value_json.hvac_mode }}",
		ModeCommandTopic:        b.topic(bound, "mode/set"),
		TemperatureStateTopic:   stateTopic,
		TemperatureStateTmpl:    "{{ value_json.temperature }}",
		CurrentTemperatureTopic: stateTopic,
		CurrentTemperatureTmpl:  "{{ value_json.current_temperature }}",
		ActionTopic:             stateTopic,
		ActionTemplate:          "{{ value_json.hvac_action }}",
		MinTemp:                 entity.MinTemp(),
		MaxTemp:                 entity.MaxTemp(),
		TempStep:                entity.TargetTemperatureStep(),
		TemperatureUnit:         temperatureUnit(entity.TemperatureUnit()),
		Availability: []Availability{
			{Topic: BridgeAvailabilityTopic(b.cfg.BaseTopic), PayloadAvailable: PayloadOnline, PayloadNotAvailable: PayloadOffline},
			{Topic: b.topic(bound, "availability"), PayloadAvailable: PayloadOnline, PayloadNotAvailable: PayloadOffline},
		},
		AvailabilityMode: "all",
		Device:           deviceBlock(entity.DeviceInfo()),
		Origin:           b.cfg.Origin,
	}
	if !entity.HasEntityName() || entity.Name() != "" {
		name := entity.Name()
		cfg.Name = &name
	}
	features := entity.SupportedFeatures()
	if features.Has(hass.ClimateTargetTemperature) {
		cfg.TemperatureCommandTopic = b.topic(bound, "temperature/set")
	}
	if features.Has(hass.ClimateTurnOn) || features.Has(hass.ClimateTurnOff) {
		cfg.PowerCommandTopic = b.topic(bound, "power/set")
		cfg.PayloadOn = PayloadOn
		cfg.PayloadOff = PayloadOff
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal discovery config: %w", err)
	}
	return b.publish("config", b.configTopic(bound), payload, true)
}

func (b *Bridge) publishState(bound *binding) error {
	state := hass.SnapshotClimate(bound.entity)
	payload, err := json.Marshal(stateDoc(state))
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := b.publish("state", b.topic(bound, "state"), payload, true); err != nil {
		return err
	}
	availability := PayloadOffline
	if state.Available {
		availability = PayloadOnline
	}
	return b.publish("availability", b.topic(bound, "availability"), []byte(availability), true)
}

func (b *Bridge) handleMode(entity hass.ClimateEntity, payload string) {
	b.runCommand(entity, "mode", func(ctx context.Context) error {
		return hass.CallSetHVACMode(ctx, entity, hass.HVACMode(payload))
	})
}

func (b *Bridge) handleTemperature(entity hass.ClimateEntity, payload string) {
	b.runCommand(entity, "temperature", func(ctx context.Context) error {
		value, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return hass.NewError(fmt.Sprintf("invalid temperature %q", payload), err)
		}
		return hass.CallSetTemperature(ctx, entity, value)
	})
}

func (b *Bridge) handlePower(entity hass.ClimateEntity, payload string) {
	b.runCommand(entity, "power", func(ctx context.Context) error {
		switch strings.ToUpper(payload) {
		case PayloadOn:
			return hass.CallTurnOn(ctx, entity)
		case PayloadOff:
			return hass.CallTurnOff(ctx, entity)
		default:
			return hass.NewError(fmt.Sprintf("invalid power payload %q", payload), nil)
		}
	})
}

func (b *Bridge) handleUpdate(entity hass.ClimateEntity) {
	b.runCommand(entity, "update", func(ctx context.Context) error {
		if err := entity.Update(ctx); err != nil {
			return err
		}
		return b.WriteState(ctx, entity)
	})
}

func (b *Bridge) runCommand(entity hass.ClimateEntity, command string, fn func(context.Context) error) {
	b.mu.Lock()
	parent := b.ctx
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		b.commandErrors.WithLabelValues(command).Inc()
		b.logger.WithError(err).WithFields(logrus.Fields{
			"unique_id": entity.UniqueID(),
			"command":   command,
		}).Warn("entity command failed")
	}
}

func (b *Bridge) publish(kind, topic string, payload []byte, retained bool) error {
	if err := b.broker.Publish(topic, payload, retained); err != nil {
		b.publishErrors.WithLabelValues(kind).Inc()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.publishes.WithLabelValues(kind).Inc()
	return nil
}

func (b *Bridge) topic(bound *binding, suffix string) string {
	return b.cfg.BaseTopic + "/" + bound.object + "/" + suffix
}

func (b *Bridge) configTopic(bound *binding) string {
	return b.cfg.DiscoveryPrefix + "/climate/" + bound.object + "/config"
}
