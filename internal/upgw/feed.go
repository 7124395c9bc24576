package upgw

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joshp123/unisenza-bridge/internal/mqtt"
)

const DefaultFeedTopicPrefix = "upgw/devices"

// FeedConfig points the change feed at the vendor's push broker.
type FeedConfig struct {
	BrokerURL   string
	Username    string
	Password    string
	TopicPrefix string
}

// Subscriber is the broker surface the change feed needs.
type Subscriber interface {
	Subscribe(topic string, cb func(topic string, payload []byte)) (func(), error)
}

type feed struct {
	unsubs  []func()
	closeFn func()
}

func (f *feed) stop() {
	for _, unsub := range f.unsubs {
		unsub()
	}
	if f.closeFn != nil {
		f.closeFn()
	}
}

// StartChangeFeed connects to the push broker and applies state documents
// published for each HVAC device. Listeners are notified as for Refresh.
func (c *Client) StartChangeFeed(cfg FeedConfig, logger *logrus.Logger) error {
	broker, err := mqtt.Dial(mqtt.Config{
		BrokerURL: cfg.BrokerURL,
		Username:  cfg.Username,
		Password:  cfg.Password,
		ClientID:  mqtt.RandomClientID("upgw"),
		FailFast:  true,
	}, logger)
	if err != nil {
		return &ClientError{Op: "change feed", Err: err}
	}
	return c.attachFeed(broker, cfg.TopicPrefix, broker.Close, logger)
}

func (c *Client) attachFeed(broker Subscriber, prefix string, closeFn func(), logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultFeedTopicPrefix
	}

	f := &feed{closeFn: closeFn}
	for _, pair := range c.GetDevices() {
		device := pair.Device
		if device.Type() != DeviceTypeHVAC || device.SerialNumber() == "" {
			continue
		}
		topic := fmt.Sprintf("%s/%s/state", prefix, device.SerialNumber())
		unsub, err := broker.Subscribe(topic, func(_ string, payload []byte) {
			var state DeviceState
			if err := json.Unmarshal(payload, &state); err != nil {
				logger.WithError(err).WithField("serial_number", device.SerialNumber()).Warn("ignoring malformed device state")
				return
			}
			device.apply(state)
		})
		if err != nil {
			f.stop()
			return &ClientError{Op: "change feed", Err: err}
		}
		f.unsubs = append(f.unsubs, unsub)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		f.stop()
		return &ClientError{Op: "change feed", Err: fmt.Errorf("client closed")}
	}
	previous := c.feed
	c.feed = f
	c.mu.Unlock()
	if previous != nil {
		previous.stop()
	}
	return nil
}
