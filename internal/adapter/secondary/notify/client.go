package notify

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MessageHandler handles one inbound MQTT message.
type MessageHandler func(topic string, payload []byte) error

// Broker is the MQTT surface the notifier uses; tests substitute a fake.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topics ...string) error
	Disconnect()
}

// ClientOptions configures a paho connection.
type ClientOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// Client wraps a paho MQTT client.
type Client struct {
	client  mqtt.Client
	timeout time.Duration
	log     *zap.Logger
}

var _ Broker = (*Client)(nil)

// Dial connects to the broker.
func Dial(opts ClientOptions, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	po := mqtt.NewClientOptions()
	po.AddBroker(opts.Broker)
	po.SetClientID(opts.ClientID)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		po.SetPassword(opts.Password)
	}
	po.SetAutoReconnect(true)
	po.SetCleanSession(true)
	po.SetConnectTimeout(opts.Timeout)
	po.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.String("broker", opts.Broker), zap.Error(err))
	})

	client := mqtt.NewClient(po)
	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", opts.Broker, err)
	}

	return &Client{client: client, timeout: opts.Timeout, log: logger}, nil
}

func (c *Client) wait(token mqtt.Token, what string) error {
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("%s: timed out", what)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// Subscribe registers handler for topic. Handlers run on their own goroutine,
// off paho's router, so they may publish.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		topic, payload := msg.Topic(), msg.Payload()
		go func() {
			if err := handler(topic, payload); err != nil {
				c.log.Warn("mqtt message rejected", zap.String("topic", topic), zap.Error(err))
			}
		}()
	})
	return c.wait(token, "subscribe to "+topic)
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return c.wait(c.client.Publish(topic, qos, retained, payload), "publish to "+topic)
}

func (c *Client) Unsubscribe(topics ...string) error {
	return c.wait(c.client.Unsubscribe(topics...), "unsubscribe")
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
