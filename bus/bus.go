// Package bus connects the agent to its publish/subscribe broker. Two
// backends exist: MQTT for production and Redis pub/sub for setups that
// already run a local Redis.
package bus

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/grego360/sense-hat-mqtt/logging"
)

type Message struct {
	Topic   string
	Payload []byte
}

type EventType int

const (
	EventConnected EventType = iota
	EventError
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event reports a connection lifecycle change.
type Event struct {
	Type EventType
	Err  error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Client is a broker connection. Messages and Events stay open for the life
// of the client; Close stops delivery without closing them.
type Client interface {
	Publisher

	// Connect establishes the first connection. Later reconnects are automatic.
	Connect(ctx context.Context) error

	Subscribe(ctx context.Context, topics ...string) error
	Messages() <-chan Message
	Events() <-chan Event
	Connected() bool
	Close() error
}

// ConnectionError wraps a broker failure.
type ConnectionError struct {
	Backend Backend
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type Backend string

const (
	BackendMQTT  Backend = "mqtt"
	BackendRedis Backend = "redis"
)

func ParseBackend(name string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(name))) {
	case BackendMQTT, "":
		return BackendMQTT, nil
	case BackendRedis:
		return BackendRedis, nil
	}
	return BackendMQTT, fmt.Errorf("unknown bus backend %q", name)
}

type Config struct {
	Backend  Backend
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
	QoS      byte

	ConnectTimeout time.Duration
	KeepAlive      time.Duration

	// HealthInterval is the Redis ping period.
	HealthInterval time.Duration

	// Buffer sizes the message and event channels.
	Buffer int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	return c
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func NewClient(cfg Config, logger logging.Logger) (Client, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case BackendMQTT, "":
		log.Printf("Creating MQTT bus client for %s", cfg.addr())
		return newMQTTClient(cfg, logger), nil
	case BackendRedis:
		log.Printf("Creating Redis bus client for %s", cfg.addr())
		return newRedisClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.Backend)
	}
}

// notifier fans lifecycle events and messages into the client's channels
// until done is closed.
type notifier struct {
	messages chan Message
	events   chan Event
	done     chan struct{}
}

func newNotifier(buffer int) notifier {
	return notifier{
		messages: make(chan Message, buffer),
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
}

func (n notifier) emit(ev Event) {
	select {
	case n.events <- ev:
	case <-n.done:
	}
}

func (n notifier) deliver(msg Message) {
	select {
	case n.messages <- msg:
	case <-n.done:
	}
}
