package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/grego360/sense-hat-mqtt/logging"
)

type mqttClient struct {
	cfg    Config
	logger logging.Logger
	notifier

	mu        sync.Mutex
	client    mqtt.Client
	closeOnce sync.Once
}

func newMQTTClient(cfg Config, logger logging.Logger) *mqttClient {
	return &mqttClient{
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		notifier: newNotifier(cfg.Buffer),
	}
}

func (c *mqttClient) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", c.cfg.addr()))
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetKeepAlive(c.cfg.KeepAlive)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.logger.Info("Reconnecting to MQTT broker at %s", c.cfg.addr())
	})
	opts.SetDefaultPublishHandler(c.onMessage)
	return opts
}

func (c *mqttClient) Connect(ctx context.Context) error {
	client := mqtt.NewClient(c.options())

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	c.logger.Info("Attempting to connect to MQTT broker at %s...", c.cfg.addr())
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return &ConnectionError{Backend: BackendMQTT, Op: "connect", Err: ctx.Err()}
	}
	if err := token.Error(); err != nil {
		c.emit(Event{Type: EventError, Err: err})
		return &ConnectionError{Backend: BackendMQTT, Op: "connect", Err: err}
	}
	return nil
}

func (c *mqttClient) onConnect(mqtt.Client) {
	c.logger.Info("Connected to MQTT broker successfully")
	c.emit(Event{Type: EventConnected})
}

func (c *mqttClient) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("Disconnected from MQTT broker: %v", err)
	c.emit(Event{Type: EventClosed, Err: err})
}

func (c *mqttClient) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.logger.Debug("Received message on topic %s: %s", msg.Topic(), msg.Payload())
	c.deliver(Message{Topic: msg.Topic(), Payload: append([]byte(nil), msg.Payload()...)})
}

func (c *mqttClient) current() (mqtt.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, errors.New("not connected")
	}
	return c.client, nil
}

func (c *mqttClient) wait(ctx context.Context, op string, token mqtt.Token) error {
	select {
	case <-token.Done():
	case <-ctx.Done():
		return &ConnectionError{Backend: BackendMQTT, Op: op, Err: ctx.Err()}
	}
	if err := token.Error(); err != nil {
		return &ConnectionError{Backend: BackendMQTT, Op: op, Err: err}
	}
	return nil
}

func (c *mqttClient) Subscribe(ctx context.Context, topics ...string) error {
	client, err := c.current()
	if err != nil {
		return &ConnectionError{Backend: BackendMQTT, Op: "subscribe", Err: err}
	}
	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = c.cfg.QoS
	}
	if err := c.wait(ctx, "subscribe", client.SubscribeMultiple(filters, c.onMessage)); err != nil {
		return err
	}
	for _, t := range topics {
		c.logger.Info("Subscribed to topic: %s", t)
	}
	return nil
}

func (c *mqttClient) Publish(ctx context.Context, topic string, payload []byte) error {
	client, err := c.current()
	if err != nil {
		return &ConnectionError{Backend: BackendMQTT, Op: "publish", Err: err}
	}
	return c.wait(ctx, "publish", client.Publish(topic, c.cfg.QoS, false, payload))
}

func (c *mqttClient) Messages() <-chan Message { return c.messages }

func (c *mqttClient) Events() <-chan Event { return c.events }

func (c *mqttClient) Connected() bool {
	client, err := c.current()
	return err == nil && client.IsConnectionOpen()
}

func (c *mqttClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if client, err := c.current(); err == nil {
			client.Disconnect(250)
		}
		c.logger.Info("MQTT connection closed")
	})
	return nil
}
