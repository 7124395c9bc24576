package unisenza

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/unisenza-bridge/internal/hass"
	"github.com/joshp123/unisenza-bridge/internal/upgw"
)

// MetricsCollector exports the last known state of every loaded thermostat.
// It reads cached device state and never calls the vendor cloud.
type MetricsCollector struct {
	hass *hass.HomeAssistant
	mu   sync.Mutex

	currentTemp   *prometheus.GaugeVec
	targetTemp    *prometheus.GaugeVec
	heatingActive *prometheus.GaugeVec
	modeHeat      *prometheus.GaugeVec
	available     *prometheus.GaugeVec
	entryLoaded   *prometheus.GaugeVec
	devices       prometheus.Gauge
}

func NewMetricsCollector(h *hass.HomeAssistant) *MetricsCollector {
	labels := []string{"entry_id", "serial_number", "device_name"}
	return &MetricsCollector{
		hass: h,
		currentTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "unisenza_current_temperature_celsius",
			Help: "Measured temperature per thermostat",
		}, labels),
		targetTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "unisenza_target_temperature_celsius",
			Help: "Target temperature per thermostat",
		}, labels),
		heatingActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "unisenza_heating_active_bool",
			Help: "Heating active per thermostat (1=heating, 0=idle or off)",
		}, labels),
		modeHeat: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "unisenza_mode_heat_bool",
			Help: "System mode per thermostat (1=heat, 0=off)",
		}, labels),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "unisenza_available_bool",
			Help: "Thermostat reachable through the cloud (1=yes, 0=no)",
		}, labels),
		entryLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "unisenza_entry_loaded_bool",
			Help: "Config entry loaded (1=loaded, 0=otherwise)",
		}, []string{"entry_id", "state"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unisenza_devices",
			Help: "HVAC devices across loaded entries",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.currentTemp.Describe(ch)
	c.targetTemp.Describe(ch)
	c.heatingActive.Describe(ch)
	c.modeHeat.Describe(ch)
	c.available.Describe(ch)
	c.entryLoaded.Describe(ch)
	c.devices.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentTemp.Reset()
	c.targetTemp.Reset()
	c.heatingActive.Reset()
	c.modeHeat.Reset()
	c.available.Reset()
	c.entryLoaded.Reset()

	for _, entry := range c.hass.ConfigEntries.Entries(Domain) {
		state := entry.State()
		c.entryLoaded.With(prometheus.Labels{
			"entry_id": entry.EntryID,
			"state":    string(state),
		}).Set(boolToFloat(state == hass.EntryLoaded))
	}

	clients := c.hass.Data.Values(Domain)
	entryIDs := make([]string, 0, len(clients))
	for entryID := range clients {
		entryIDs = append(entryIDs, entryID)
	}
	sort.Strings(entryIDs)

	count := 0
	for _, entryID := range entryIDs {
		client, ok := clients[entryID].(*upgw.Client)
		if !ok {
			continue
		}
		for _, pair := range client.GetDevices() {
			device := pair.Device
			if device.Type() != upgw.DeviceTypeHVAC {
				continue
			}
			count++
			labels := prometheus.Labels{
				"entry_id":      entryID,
				"serial_number": device.SerialNumber(),
				"device_name":   device.Name(),
			}
			if value := device.CurrentTemperature(); value != nil {
				c.currentTemp.With(labels).Set(*value)
			}
			if value := device.TargetTemperature(); value != nil {
				c.targetTemp.With(labels).Set(*value)
			}
			mode := device.SystemMode()
			c.modeHeat.With(labels).Set(boolToFloat(mode == upgw.SystemModeHeat))
			c.heatingActive.With(labels).Set(boolToFloat(mode != upgw.SystemModeOff && device.RunningState() == upgw.RunningStateHeating))
			c.available.With(labels).Set(boolToFloat(device.IsAvailable()))
		}
	}
	c.devices.Set(float64(count))

	c.currentTemp.Collect(ch)
	c.targetTemp.Collect(ch)
	c.heatingActive.Collect(ch)
	c.modeHeat.Collect(ch)
	c.available.Collect(ch)
	c.entryLoaded.Collect(ch)
	c.devices.Collect(ch)
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
