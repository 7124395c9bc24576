package mqtt

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Config describes a broker connection.
type Config struct {
	BrokerURL string
	Username  string
	Password  string
	ClientID  string

	// Will is published by the broker if the connection drops.
	WillTopic   string
	WillPayload string

	// FailFast makes Dial return an error when the first connection attempt
	// fails. Otherwise Dial keeps retrying until the broker is reachable.
	FailFast bool
}

const connectTimeout = 10 * time.Second

// Client multiplexes topic callbacks over a single paho connection and
// restores subscriptions after a reconnect.
type Client struct {
	client paho.Client
	logger *logrus.Logger

	mu     sync.Mutex
	subs   map[string]map[int]func(topic string, payload []byte)
	nextID int
}

// Dial connects to the broker and blocks until the first connection succeeds,
// or with FailFast until the first attempt fails.
func Dial(cfg Config, logger *logrus.Logger) (*Client, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Client{
		logger: logger,
		subs:   make(map[string]map[int]func(string, []byte)),
	}
	opts.SetDefaultPublishHandler(c.dispatch)
	opts.OnConnect = func(_ paho.Client) {
		c.resubscribeAll()
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.logger.WithError(err).WithField("broker", cfg.BrokerURL).Warn("mqtt connection lost")
	}

	client := paho.NewClient(opts)
	c.client = client
	token := client.Connect()
	if cfg.FailFast {
		if !token.WaitTimeout(2 * connectTimeout) {
			client.Disconnect(0)
			return nil, fmt.Errorf("mqtt connect %s: timed out after %s", cfg.BrokerURL, 2*connectTimeout)
		}
	} else {
		token.Wait()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.BrokerURL, err)
	}
	return c, nil
}

func clientOptions(cfg Config) (*paho.ClientOptions, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt broker url is required")
	}
	parsed, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("invalid broker url %q", cfg.BrokerURL)
	}

	opts := paho.NewClientOptions()
	switch parsed.Scheme {
	case "ssl", "tls", "mqtts":
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(cfg.BrokerURL)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = RandomClientID("unisenza")
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(!cfg.FailFast)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOrderMatters(false)
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, 1, true)
	}
	return opts, nil
}

// Subscribe registers cb for topic. The returned func removes the callback and
// unsubscribes from the broker once no callbacks remain.
func (c *Client) Subscribe(topic string, cb func(topic string, payload []byte)) (func(), error) {
	c.mu.Lock()
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[int]func(string, []byte))
	}
	id := c.nextID
	c.nextID++
	c.subs[topic][id] = cb
	needSubscribe := len(c.subs[topic]) == 1
	c.mu.Unlock()

	if needSubscribe {
		if token := c.client.Subscribe(topic, 1, nil); token.Wait() && token.Error() != nil {
			c.mu.Lock()
			delete(c.subs[topic], id)
			if len(c.subs[topic]) == 0 {
				delete(c.subs, topic)
			}
			c.mu.Unlock()
			return nil, fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
	}

	return func() {
		c.mu.Lock()
		callbacks := c.subs[topic]
		if callbacks == nil {
			c.mu.Unlock()
			return
		}
		delete(callbacks, id)
		shouldUnsub := len(callbacks) == 0
		if shouldUnsub {
			delete(c.subs, topic)
		}
		c.mu.Unlock()
		if shouldUnsub {
			_ = c.client.Unsubscribe(topic).Wait()
		}
	}, nil
}

// Publish sends payload to topic with QoS 1.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if token := c.client.Publish(topic, 1, retained, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects after giving in-flight messages a short grace period.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

func (c *Client) dispatch(_ paho.Client, msg paho.Message) {
	c.mu.Lock()
	callbacks := c.subs[msg.Topic()]
	list := make([]func(string, []byte), 0, len(callbacks))
	for _, cb := range callbacks {
		list = append(list, cb)
	}
	c.mu.Unlock()
	for _, cb := range list {
		cb(msg.Topic(), msg.Payload())
	}
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	for _, topic := range topics {
		if token := c.client.Subscribe(topic, 1, nil); token.Wait() && token.Error() != nil {
			c.logger.WithError(token.Error()).WithField("topic", topic).Warn("mqtt resubscribe failed")
		}
	}
}

// RandomClientID returns prefix plus a short random suffix.
func RandomClientID(prefix string) string {
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)
	return prefix + "-" + base64.RawURLEncoding.EncodeToString(nonce)
}
