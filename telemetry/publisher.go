// Package telemetry publishes sensor readings on a schedule and on demand.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/grego360/sense-hat-mqtt/logging"
	"github.com/grego360/sense-hat-mqtt/sensors"
)

// Bus is where readings are published.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Sink receives every published reading.
type Sink interface {
	Write(ctx context.Context, sample sensors.Sample) error
}

type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type realTicker struct {
	*time.Ticker
}

func (t realTicker) Chan() <-chan time.Time { return t.C }

func NewRealTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type Option func(*Publisher)

func WithTicker(f TickerFunc) Option {
	return func(p *Publisher) { p.newTicker = f }
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func WithSinks(sinks ...Sink) Option {
	return func(p *Publisher) { p.sinks = append(p.sinks, sinks...) }
}

type Publisher struct {
	reader    sensors.Reader
	bus       Bus
	topic     string
	sinks     []Sink
	logger    logging.Logger
	newTicker TickerFunc
	now       func() time.Time

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	mu      sync.Mutex
	period  time.Duration
	running bool
	last    *sensors.Sample
}

func NewPublisher(reader sensors.Reader, bus Bus, topic string, logger logging.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		reader:    reader,
		bus:       bus,
		topic:     topic,
		logger:    logging.OrNop(logger),
		newTicker: NewRealTicker,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishOnce reads the sensors and publishes the reading.
func (p *Publisher) PublishOnce(ctx context.Context) (*sensors.Sample, error) {
	p.logger.Debug("Reading and publishing sensor data...")

	sample, err := p.reader.Read(ctx)
	if err != nil {
		p.logger.Error("Error reading sensor data: %v", err)
		return nil, err
	}
	sample.Timestamp = p.now().UTC()

	data, err := json.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("encode sample: %w", err)
	}

	if err := p.bus.Publish(ctx, p.topic, data); err != nil {
		p.logger.Error("Error publishing sensor data: %v", err)
		return nil, err
	}
	p.logger.Info("Published sensor data to %s", p.topic)

	p.mu.Lock()
	p.last = &sample
	p.mu.Unlock()

	for _, sink := range p.sinks {
		if err := sink.Write(ctx, sample); err != nil {
			p.logger.Warn("Sink write failed: %v", err)
		}
	}
	return &sample, nil
}

// Start replaces any running schedule: it publishes immediately and then
// every period.
func (p *Publisher) Start(period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("invalid publish interval %v", period)
	}

	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	ticker := p.newTicker(period)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	p.mu.Lock()
	p.period = period
	p.running = true
	p.mu.Unlock()

	go p.loop(ctx, ticker, done)

	p.logger.Info("Started publishing sensor data every %v", period)
	return nil
}

func (p *Publisher) loop(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	p.PublishOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.PublishOnce(ctx)
		}
	}
}

// Stop halts the schedule and waits for the loop to exit. Calling it when
// nothing runs is a no-op.
func (p *Publisher) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.stopLocked()
}

func (p *Publisher) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Stopped publishing sensor data")
}

// Period is the interval of the current (or last) schedule.
func (p *Publisher) Period() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.period
}

func (p *Publisher) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Last returns the most recently published reading, or nil.
func (p *Publisher) Last() *sensors.Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	s := *p.last
	return &s
}
