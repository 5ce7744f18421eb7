package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grego360/sense-hat-mqtt/bus"
	"github.com/grego360/sense-hat-mqtt/config"
	"github.com/grego360/sense-hat-mqtt/dispatch"
	"github.com/grego360/sense-hat-mqtt/display"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Display.Driver = "virtual"
	cfg.Bus.Host = "127.0.0.1"
	cfg.Bus.Port = 1
	cfg.Bus.ConnectTimeout = 2 * time.Second
	cfg.Joystick.Enabled = false
	return cfg
}

func TestAgentApp_StartFailsWithoutBroker(t *testing.T) {
	var buf bytes.Buffer
	app, err := NewAgentApp(&Options{
		LogLevel: LogLevelDebug,
		Config:   testConfig(),
		Logger:   log.New(&buf, "", 0),
	})
	require.NoError(t, err)
	defer app.Destroy()

	err = app.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to broker")

	st := app.Status()
	assert.False(t, st.Bus.Connected)
	assert.Equal(t, 180, st.Display.Rotation)
	assert.Equal(t, "30s", st.Telemetry.Period)
	assert.False(t, st.Joystick.Running)
}

func TestAgentApp_InvalidDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Display.Driver = "oled"

	_, err := NewAgentApp(&Options{Config: cfg, Logger: log.New(&bytes.Buffer{}, "", 0)})
	assert.Error(t, err)
}

func TestAgentApp_DestroyIdempotent(t *testing.T) {
	app, err := NewAgentApp(&Options{Config: testConfig(), Logger: log.New(&bytes.Buffer{}, "", 0)})
	require.NoError(t, err)

	app.Destroy()
	app.Destroy()
}

func TestAgentApp_APIWiring(t *testing.T) {
	cfg := testConfig()
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:0"

	app, err := NewAgentApp(&Options{Config: cfg, Logger: log.New(&bytes.Buffer{}, "", 0)})
	require.NoError(t, err)
	defer app.Destroy()

	require.NotNil(t, app.api)
	require.NotNil(t, app.hub)
}

// recordingBus stands in for the broker and notes publishes made after Close.
type recordingBus struct {
	messages chan bus.Message
	events   chan bus.Event

	mu        sync.Mutex
	published []string
	closed    bool
	late      int
}

func newRecordingBus() *recordingBus {
	return &recordingBus{
		messages: make(chan bus.Message),
		events:   make(chan bus.Event, 4),
	}
}

func (b *recordingBus) Connect(ctx context.Context) error {
	b.events <- bus.Event{Type: bus.EventConnected}
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, topics ...string) error { return nil }

func (b *recordingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.late++
		return errors.New("bus closed")
	}
	b.published = append(b.published, topic)
	return nil
}

func (b *recordingBus) Messages() <-chan bus.Message { return b.messages }
func (b *recordingBus) Events() <-chan bus.Event     { return b.events }

func (b *recordingBus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

func (b *recordingBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *recordingBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published...)
}

func (b *recordingBus) state() (closed bool, late int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed, b.late
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// startedApp runs an agent against rb with a scripted sensor reading and a
// joystick helper that just sleeps.
func startedApp(t *testing.T, rb *recordingBus, logs *lockedBuffer) *AgentApp {
	t.Helper()
	cfg := testConfig()
	cfg.Sensors.Command = []string{"sh", "-c", `echo '{"temperature":21.5,"humidity":40,"pressure":1013}'`}
	cfg.Joystick.Enabled = true
	cfg.Joystick.Command = []string{"sh", "-c", "exec sleep 30"}

	app, err := NewAgentApp(&Options{
		LogLevel: LogLevelInfo,
		Config:   cfg,
		Logger:   log.New(logs, "", 0),
		Bus:      rb,
	})
	require.NoError(t, err)
	require.NoError(t, app.Start())

	require.Eventually(t, func() bool { return len(rb.topics()) > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "home/sensehat/sensors", rb.topics()[0])
	require.True(t, app.joystick.Running())
	return app
}

func TestAgentApp_DestroyOrder(t *testing.T) {
	rb := newRecordingBus()
	logs := &lockedBuffer{}
	app := startedApp(t, rb, logs)

	app.display.SetBackgroundColor(display.Red)
	app.Destroy()

	closed, late := rb.state()
	assert.True(t, closed)
	assert.Zero(t, late, "nothing may be published after the bus closes")
	assert.False(t, app.telemetry.Running())
	assert.False(t, app.joystick.Running())

	drv := app.driver.(*display.VirtualDriver)
	pixels, err := drv.GetPixels()
	require.NoError(t, err)
	assert.Equal(t, display.Fill(display.Black), pixels)
	assert.Equal(t, 180, drv.CurrentRotation())

	out := logs.String()
	steps := []string{
		"Joystick shutdown complete",
		"Telemetry shutdown complete",
		"Display cleared",
		"Bus connection closed",
	}
	last := -1
	for _, step := range steps {
		i := strings.Index(out, step)
		require.True(t, i >= 0, "missing %q", step)
		assert.Greater(t, i, last, "%q out of order", step)
		last = i
	}
}

func TestAgentApp_Fault(t *testing.T) {
	rb := newRecordingBus()
	app := startedApp(t, rb, &lockedBuffer{})
	defer app.Destroy()

	app.Fault(errors.New("sensor helper wedged"))

	closed, late := rb.state()
	assert.True(t, closed)
	assert.Zero(t, late)
	assert.False(t, app.telemetry.Running())
	assert.False(t, app.joystick.Running())

	msgs := app.driver.(*display.VirtualDriver).Messages()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "Error", last.Text)
	assert.Equal(t, display.Red, last.Color)
}

type wedgedDisplay struct {
	*display.Controller
}

func (wedgedDisplay) Clear() { panic("display wedged") }

func TestAgentApp_DispatcherPanicReachesFaults(t *testing.T) {
	rb := newRecordingBus()
	app := startedApp(t, rb, &lockedBuffer{})
	defer app.Destroy()

	// Swap in a dispatcher whose display panics, then restart it.
	app.cancel()
	app.wg.Wait()
	app.ctx, app.cancel = context.WithCancel(context.Background())
	app.dispatcher = dispatch.New(dispatch.DefaultConfig(), dispatch.Deps{
		Display:   wedgedDisplay{app.display},
		Audio:     app.audio,
		Telemetry: app.telemetry,
		Bus:       rb,
	}, nil)
	app.goSafe("dispatcher", func() error { return app.dispatcher.Run(app.ctx) })

	require.NoError(t, app.dispatcher.Inject(context.Background(), bus.Message{
		Topic:   "home/sensehat/command",
		Payload: []byte(`{"action":"clear"}`),
	}))

	var fault error
	select {
	case fault = <-app.Faults():
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not reported")
	}
	assert.Contains(t, fault.Error(), "dispatcher panic: display wedged")

	app.Fault(fault)
	closed, _ := rb.state()
	assert.True(t, closed)
	msgs := app.driver.(*display.VirtualDriver).Messages()
	assert.Equal(t, "Error", msgs[len(msgs)-1].Text)
}

func TestLeveledLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLeveledLogger(log.New(&buf, "", 0), LogLevelWarn)

	l.Info("hidden")
	l.Warn("shown %d", 1)
	l.Named("display").Error("broken")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 1")
	assert.Contains(t, out, "[ERROR] [display] broken")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"0": LogLevelNone, "error": LogLevelError, "WARN": LogLevelWarn,
		"": LogLevelInfo, "4": LogLevelDebug,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}
