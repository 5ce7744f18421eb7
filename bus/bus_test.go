package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	err   error
	count int
}

func (p *stubPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.count++
	return p.err
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// unreachable is a local port nothing listens on.
var unreachable = Config{Host: "127.0.0.1", Port: 1, ConnectTimeout: 2 * time.Second}

func nextEvent(t *testing.T, c Client) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bus event")
		return Event{}
	}
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("MQTT")
	require.NoError(t, err)
	assert.Equal(t, BackendMQTT, b)

	b, err = ParseBackend("redis")
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, b)

	_, err = ParseBackend("amqp")
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(Config{Backend: BackendMQTT}, nil)
	require.NoError(t, err)
	assert.IsType(t, &mqttClient{}, c)

	c, err = NewClient(Config{Backend: BackendRedis}, nil)
	require.NoError(t, err)
	assert.IsType(t, &redisClient{}, c)

	_, err = NewClient(Config{Backend: "kafka"}, nil)
	assert.Error(t, err)
}

func TestTee(t *testing.T) {
	next := &stubPublisher{}
	var mu sync.Mutex
	var seen []string
	obs := ObserverFunc(func(topic string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, topic+"="+string(payload))
	})

	p := Tee(next, obs, obs)
	require.NoError(t, p.Publish(context.Background(), "a", []byte("1")))
	assert.Equal(t, []string{"a=1", "a=1"}, seen)

	next.err = errors.New("offline")
	assert.Error(t, p.Publish(context.Background(), "b", []byte("2")))
	assert.Len(t, seen, 2, "failed publications are not observed")
	assert.Equal(t, 2, next.count)
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("refused")
	err := error(&ConnectionError{Backend: BackendMQTT, Op: "connect", Err: cause})
	assert.EqualError(t, err, "mqtt connect: refused")
	assert.True(t, errors.Is(err, cause))
}

func TestMQTT_ConnectFailure(t *testing.T) {
	c := newMQTTClient(unreachable.withDefaults(), nil)
	defer c.Close()

	err := c.Connect(context.Background())
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "connect", connErr.Op)
	assert.Equal(t, EventError, nextEvent(t, c).Type)
	assert.False(t, c.Connected())
}

func TestMQTT_NotConnected(t *testing.T) {
	c := newMQTTClient(unreachable.withDefaults(), nil)
	defer c.Close()

	assert.Error(t, c.Publish(context.Background(), "t", nil))
	assert.Error(t, c.Subscribe(context.Background(), "t"))
}

func TestMQTT_HandlersFeedChannels(t *testing.T) {
	c := newMQTTClient(unreachable.withDefaults(), nil)
	defer c.Close()

	c.onConnect(nil)
	assert.Equal(t, EventConnected, nextEvent(t, c).Type)

	payload := []byte(`{"message":"hi"}`)
	c.onMessage(nil, &fakeMessage{topic: "home/sensehat/message", payload: payload})
	payload[2] = 'X'

	msg := <-c.Messages()
	assert.Equal(t, "home/sensehat/message", msg.Topic)
	assert.Equal(t, `{"message":"hi"}`, string(msg.Payload))

	c.onConnectionLost(nil, errors.New("EOF"))
	ev := nextEvent(t, c)
	assert.Equal(t, EventClosed, ev.Type)
	assert.EqualError(t, ev.Err, "EOF")
}

func TestMQTT_CloseUnblocksHandlers(t *testing.T) {
	cfg := unreachable
	cfg.Buffer = 1
	c := newMQTTClient(cfg.withDefaults(), nil)

	c.onMessage(nil, &fakeMessage{topic: "a"})
	done := make(chan struct{})
	go func() {
		c.onMessage(nil, &fakeMessage{topic: "b"})
		close(done)
	}()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler still blocked after Close")
	}
}

func TestRedis_ConnectFailure(t *testing.T) {
	c := newRedisClient(unreachable.withDefaults(), nil)
	defer c.Close()

	err := c.Connect(context.Background())
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, BackendRedis, connErr.Backend)
	assert.Equal(t, EventError, nextEvent(t, c).Type)

	assert.Error(t, c.Publish(context.Background(), "t", nil))
	assert.Error(t, c.Subscribe(context.Background(), "t"))
}

func TestRedis_HandleReceived(t *testing.T) {
	c := newRedisClient(unreachable.withDefaults(), nil)
	defer c.Close()

	c.handleReceived(&redis.Subscription{Kind: "subscribe", Channel: "home/sensehat/command"})
	c.handleReceived(&redis.Message{Channel: "home/sensehat/command", Payload: `{"action":"clear"}`})

	msg := <-c.Messages()
	assert.Equal(t, "home/sensehat/command", msg.Topic)
	assert.Equal(t, `{"action":"clear"}`, string(msg.Payload))
	assert.Len(t, c.Messages(), 0)
}

func TestRedis_HealthTransitions(t *testing.T) {
	c := newRedisClient(unreachable.withDefaults(), nil)
	defer c.Close()
	c.connected = true

	c.recordHealth(nil)
	assert.Len(t, c.Events(), 0, "steady state emits nothing")

	c.recordHealth(errors.New("i/o timeout"))
	c.recordHealth(errors.New("i/o timeout"))
	assert.Equal(t, EventError, nextEvent(t, c).Type)
	assert.Len(t, c.Events(), 0)

	c.recordHealth(nil)
	assert.Equal(t, EventConnected, nextEvent(t, c).Type)
}
