package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/grego360/sense-hat-mqtt/logging"
)

const redisReceiveBackoff = time.Second

type redisClient struct {
	cfg    Config
	logger logging.Logger
	notifier

	mu        sync.Mutex
	redis     *redis.Client
	pubsub    *redis.PubSub
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newRedisClient(cfg Config, logger logging.Logger) *redisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &redisClient{
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		notifier: newNotifier(cfg.Buffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *redisClient) Connect(ctx context.Context) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:         c.cfg.addr(),
		Username:     c.cfg.Username,
		Password:     c.cfg.Password,
		DB:           0,
		DialTimeout:  c.cfg.ConnectTimeout,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	c.logger.Info("Connecting to Redis at %s...", c.cfg.addr())
	if err := rdb.Ping(connectCtx).Err(); err != nil {
		rdb.Close()
		c.emit(Event{Type: EventError, Err: err})
		return &ConnectionError{Backend: BackendRedis, Op: "connect", Err: err}
	}
	c.logger.Info("Successfully connected to Redis")

	c.mu.Lock()
	c.redis = rdb
	c.connected = true
	c.mu.Unlock()

	go c.healthCheck()
	c.emit(Event{Type: EventConnected})
	return nil
}

func (c *redisClient) Subscribe(ctx context.Context, topics ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.redis == nil {
		return &ConnectionError{Backend: BackendRedis, Op: "subscribe", Err: errors.New("not connected")}
	}

	if c.pubsub == nil {
		c.pubsub = c.redis.Subscribe(c.ctx, topics...)
		go c.receive(c.pubsub)
	} else if err := c.pubsub.Subscribe(ctx, topics...); err != nil {
		return &ConnectionError{Backend: BackendRedis, Op: "subscribe", Err: err}
	}

	for _, t := range topics {
		c.logger.Info("Subscribed to channel: %s", t)
	}
	return nil
}

func (c *redisClient) receive(pubsub *redis.PubSub) {
	c.logger.Info("Starting subscription handler")

	for {
		msg, err := pubsub.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.ErrClosed) {
				c.logger.Error("Redis connection closed on subscription")
				c.emit(Event{Type: EventClosed, Err: err})
				return
			}
			c.logger.Error("Subscription error: %v", err)
			c.emit(Event{Type: EventError, Err: err})

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(redisReceiveBackoff):
			}
			continue
		}
		c.handleReceived(msg)
	}
}

func (c *redisClient) handleReceived(msg interface{}) {
	switch m := msg.(type) {
	case *redis.Message:
		c.logger.Debug("Message received: channel=%s, payload=%s", m.Channel, m.Payload)
		c.deliver(Message{Topic: m.Channel, Payload: []byte(m.Payload)})
	case *redis.Subscription:
		c.logger.Debug("Subscription event: %s %s", m.Channel, m.Kind)
	case *redis.Pong:
	}
}

// healthCheck pings periodically and reports transitions between reachable
// and unreachable as Error and Connected events.
func (c *redisClient) healthCheck() {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
			err := c.redis.Ping(ctx).Err()
			cancel()
			c.recordHealth(err)
		}
	}
}

func (c *redisClient) recordHealth(err error) {
	c.mu.Lock()
	was := c.connected
	c.connected = err == nil
	c.mu.Unlock()

	switch {
	case err != nil && was:
		c.logger.Error("Redis health check failed: %v", err)
		c.emit(Event{Type: EventError, Err: err})
	case err == nil && !was:
		c.logger.Info("Redis connection restored")
		c.emit(Event{Type: EventConnected})
	}
}

func (c *redisClient) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	rdb := c.redis
	c.mu.Unlock()

	if rdb == nil {
		return &ConnectionError{Backend: BackendRedis, Op: "publish", Err: errors.New("not connected")}
	}
	if err := rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return &ConnectionError{Backend: BackendRedis, Op: "publish", Err: err}
	}
	return nil
}

func (c *redisClient) Messages() <-chan Message { return c.messages }

func (c *redisClient) Events() <-chan Event { return c.events }

func (c *redisClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redis != nil && c.connected
}

func (c *redisClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.pubsub != nil {
			c.pubsub.Close()
		}
		if c.redis != nil {
			if err = c.redis.Close(); err != nil {
				c.logger.Error("Error closing Redis connection: %v", err)
			} else {
				c.logger.Info("Redis connection closed")
			}
		}
	})
	return err
}
