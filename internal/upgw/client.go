package upgw

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Client owns an authenticated API handle and the devices discovered on the
// account. Close releases the handle and any change feed.
type Client struct {
	api API

	mu       sync.RWMutex
	gateways []*Gateway
	devices  []GatewayDevice
	feed     *feed
	closed   bool
}

func NewClient(api API) *Client {
	return &Client{api: api}
}

// PopulateDevices replaces the known gateways and devices with the account's
// current inventory.
func (c *Client) PopulateDevices(ctx context.Context) error {
	records, err := c.api.ListGateways(ctx)
	if err != nil {
		return err
	}

	gateways := make([]*Gateway, 0, len(records))
	devices := make([]GatewayDevice, 0)
	for _, record := range records {
		gateway := &Gateway{record: record}
		gateways = append(gateways, gateway)
		for _, deviceRecord := range record.Devices {
			if deviceRecord.Type == "" {
				deviceRecord.Type = DeviceTypeUnknown
			}
			devices = append(devices, GatewayDevice{
				Gateway: gateway,
				Device:  newHvacDevice(c.api, deviceRecord),
			})
		}
	}

	c.mu.Lock()
	c.gateways = gateways
	c.devices = devices
	c.mu.Unlock()
	return nil
}

// RefreshAllDevices refreshes every HVAC device in order and stops at the
// first error.
func (c *Client) RefreshAllDevices(ctx context.Context) error {
	for _, pair := range c.GetDevices() {
		if pair.Device.Type() != DeviceTypeHVAC {
			continue
		}
		if err := pair.Device.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh %s: %w", pair.Device.SerialNumber(), err)
		}
	}
	return nil
}

func (c *Client) GetGateways() []*Gateway {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Gateway(nil), c.gateways...)
}

func (c *Client) GetDevices() []GatewayDevice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]GatewayDevice(nil), c.devices...)
}

// Close stops the change feed and releases the API handle. It is safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	f := c.feed
	c.feed = nil
	c.mu.Unlock()

	var errs []error
	if f != nil {
		f.stop()
	}
	if err := c.api.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
