package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grego360/sense-hat-mqtt/audio"
	"github.com/grego360/sense-hat-mqtt/bus"
	"github.com/grego360/sense-hat-mqtt/dispatch/mocks"
	"github.com/grego360/sense-hat-mqtt/display"
	"github.com/grego360/sense-hat-mqtt/joystick"
	"github.com/grego360/sense-hat-mqtt/logging"
	"github.com/grego360/sense-hat-mqtt/sensors"
)

type fakeBus struct {
	messages chan bus.Message
	events   chan bus.Event

	mu         sync.Mutex
	subscribed []string
	err        error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		messages: make(chan bus.Message),
		events:   make(chan bus.Event),
	}
}

func (b *fakeBus) Subscribe(ctx context.Context, topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, topics...)
	return b.err
}

func (b *fakeBus) Messages() <-chan bus.Message { return b.messages }
func (b *fakeBus) Events() <-chan bus.Event     { return b.events }

type fakeJoystick struct {
	events chan joystick.Event

	mu        sync.Mutex
	published []joystick.Event
}

func (j *fakeJoystick) Events() <-chan joystick.Event { return j.events }

func (j *fakeJoystick) PublishEvent(ctx context.Context, ev joystick.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.published = append(j.published, ev)
	return nil
}

func (j *fakeJoystick) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.published)
}

type fixture struct {
	disp      *mocks.MockDisplay
	audio     *mocks.MockAudio
	telemetry *mocks.MockTelemetry
	system    *mocks.MockSystem
	bus       *fakeBus
	d         *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		disp:      mocks.NewMockDisplay(ctrl),
		audio:     mocks.NewMockAudio(ctrl),
		telemetry: mocks.NewMockTelemetry(ctrl),
		system:    mocks.NewMockSystem(ctrl),
		bus:       newFakeBus(),
	}
	f.d = New(DefaultConfig(), Deps{
		Display:   f.disp,
		Audio:     f.audio,
		Telemetry: f.telemetry,
		System:    f.system,
		Bus:       f.bus,
	}, nil)
	return f
}

func (f *fixture) message(body string) {
	f.d.HandleMessage(context.Background(), bus.Message{Topic: "home/sensehat/message", Payload: []byte(body)})
}

func (f *fixture) command(body string) {
	f.d.HandleMessage(context.Background(), bus.Message{Topic: "home/sensehat/command", Payload: []byte(body)})
}

func TestMessage_FullCommandOrder(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.disp.EXPECT().Clear(),
		f.disp.EXPECT().SetRotation(90).Return(90),
		f.audio.EXPECT().SetVolume(40),
		f.disp.EXPECT().DisplayMessage("Hi", display.RGB{0, 0, 255}).Return(2220*time.Millisecond),
		f.audio.EXPECT().Play(audio.SoundBell),
		f.audio.EXPECT().Speak("Hi"),
	)

	f.message(`{"message":"Hi","color":[0,0,255],"rotation":90,"volume":40,"sound":"bell","speak":true}`)
}

func TestMessage_Defaults(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.disp.EXPECT().Clear(),
		f.disp.EXPECT().Rotation().Return(180),
		f.disp.EXPECT().SetRotation(180).Return(180),
		f.disp.EXPECT().DisplayMessage("Hello", display.White),
		f.audio.EXPECT().Play(audio.SoundMessage),
	)

	f.message(`{"message":"Hello"}`)
}

func TestMessage_QuotedPayloadBehavesLikePlain(t *testing.T) {
	for _, body := range []string{
		`{"message":"Hello"}`,
		`'{"message":"Hello"}'`,
		`"{\"message\":\"Hello\"}"`,
	} {
		t.Run(body, func(t *testing.T) {
			f := newFixture(t)
			gomock.InOrder(
				f.disp.EXPECT().Clear(),
				f.disp.EXPECT().Rotation().Return(180),
				f.disp.EXPECT().SetRotation(180).Return(180),
				f.disp.EXPECT().DisplayMessage("Hello", display.White),
				f.audio.EXPECT().Play(audio.SoundMessage),
			)
			f.message(body)
		})
	}
}

func TestMessage_UnknownSoundFallsBackToMessage(t *testing.T) {
	f := newFixture(t)

	f.disp.EXPECT().Clear()
	f.disp.EXPECT().Rotation().Return(180)
	f.disp.EXPECT().SetRotation(180).Return(180)
	f.disp.EXPECT().DisplayMessage("x", display.White)
	f.audio.EXPECT().Play(audio.SoundMessage)

	f.message(`{"message":"x","sound":"trumpet"}`)
}

func TestMessage_ColorOnlyFillsBackground(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.disp.EXPECT().Clear(),
		f.disp.EXPECT().Rotation().Return(180),
		f.disp.EXPECT().SetRotation(180).Return(180),
		f.disp.EXPECT().SetBackgroundColor(display.RGB{255, 0, 0}),
	)

	f.message(`{"color":[255,0,0]}`)
}

func TestMessage_PatternWrittenDirectly(t *testing.T) {
	f := newFixture(t)

	pattern := `[` + repeat(`[10,20,30]`, 64) + `]`
	var written []display.RGB

	gomock.InOrder(
		f.disp.EXPECT().Clear(),
		f.disp.EXPECT().Rotation().Return(180),
		f.disp.EXPECT().SetRotation(180).Return(180),
		f.disp.EXPECT().SetPixels(gomock.Any()).DoAndReturn(func(p []display.RGB) error {
			written = p
			return nil
		}),
	)

	f.message(`{"pattern":` + pattern + `}`)

	require.Len(t, written, 64)
	assert.Equal(t, display.RGB{10, 20, 30}, written[63])
}

func TestMessage_InvalidRotationIsPassedForCoercion(t *testing.T) {
	f := newFixture(t)

	f.disp.EXPECT().Clear()
	f.disp.EXPECT().SetRotation(-1).Return(180)

	f.message(`{"rotation":"sideways"}`)
}

func TestMessage_VolumeClamped(t *testing.T) {
	f := newFixture(t)

	f.disp.EXPECT().Clear()
	f.disp.EXPECT().Rotation().Return(0)
	f.disp.EXPECT().SetRotation(0).Return(0)
	f.audio.EXPECT().SetVolume(100)

	f.message(`{"volume":150}`)
}

func TestMessage_DecodeFailure(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.audio.EXPECT().Play(audio.SoundError),
		f.disp.EXPECT().DisplayMessage("Error", display.Red),
	)

	f.message(`not json`)
}

func TestCommand_DecodeFailure(t *testing.T) {
	f := newFixture(t)

	f.audio.EXPECT().Play(audio.SoundError)
	f.disp.EXPECT().DisplayMessage("Error", display.Red)

	f.command(`[1,2]`)
}

func TestUnknownTopicIgnored(t *testing.T) {
	f := newFixture(t)
	f.d.HandleMessage(context.Background(), bus.Message{Topic: "elsewhere", Payload: []byte(`{"message":"x"}`)})
}

func TestCommand_GetSensors(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.telemetry.EXPECT().PublishOnce(gomock.Any()).Return(&sensors.Sample{Temperature: 21}, nil),
		f.disp.EXPECT().DisplayMessage("Sensors sent", display.Green),
	)

	f.command(`{"action":"get_sensors"}`)
}

func TestCommand_GetSensorsFailureIsQuiet(t *testing.T) {
	f := newFixture(t)

	f.telemetry.EXPECT().PublishOnce(gomock.Any()).Return(nil, errors.New("sensor read failed"))

	f.command(`{"action":"get_sensors"}`)
}

func TestCommand_SetInterval(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.telemetry.EXPECT().Stop(),
		f.telemetry.EXPECT().Start(5*time.Second),
	)

	f.command(`{"action":"set_interval","interval":5000}`)
	assert.Equal(t, 5*time.Second, f.d.Interval())
}

func TestCommand_SetIntervalRejectsBadValues(t *testing.T) {
	for _, body := range []string{
		`{"action":"set_interval"}`,
		`{"action":"set_interval","interval":0}`,
		`{"action":"set_interval","interval":-100}`,
		`{"action":"set_interval","interval":"5000"}`,
		`{"action":"set_interval","interval":1e13}`,
		`{"action":"set_interval","interval":1e300}`,
	} {
		t.Run(body, func(t *testing.T) {
			f := newFixture(t)
			f.command(body)
			assert.Equal(t, 30*time.Second, f.d.Interval())
		})
	}
}

type warnRecorder struct {
	logging.Nop
	warnings []string
}

func (w *warnRecorder) Warn(format string, v ...interface{}) {
	w.warnings = append(w.warnings, fmt.Sprintf(format, v...))
}

func TestCommand_SetIntervalTooLong(t *testing.T) {
	f := newFixture(t)
	logs := &warnRecorder{}
	f.d = New(DefaultConfig(), Deps{
		Display:   f.disp,
		Audio:     f.audio,
		Telemetry: f.telemetry,
		System:    f.system,
		Bus:       f.bus,
	}, logs)

	f.command(`{"action":"set_interval","interval":1e13}`)

	assert.Equal(t, 30*time.Second, f.d.Interval())
	require.Len(t, logs.warnings, 1)
	assert.Contains(t, logs.warnings[0], "too long")
}

func TestCommand_Clear(t *testing.T) {
	f := newFixture(t)
	f.disp.EXPECT().Clear()
	f.command(`{"action":"clear"}`)
}

func TestCommand_Reboot(t *testing.T) {
	f := newFixture(t)
	f.system.EXPECT().Reboot().Return(errors.New("not permitted"))
	f.command(`{"action":"reboot"}`)
}

func TestCommand_UnknownAction(t *testing.T) {
	f := newFixture(t)
	f.command(`{"action":"dance"}`)
	f.command(`{}`)
}

func TestOnConnect(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.audio.EXPECT().Play(audio.SoundConnect),
		f.disp.EXPECT().DisplayMessage("Connected!", display.Green),
		f.telemetry.EXPECT().Start(30*time.Second),
	)

	f.d.HandleBusEvent(context.Background(), bus.Event{Type: bus.EventConnected})
	assert.Equal(t, []string{"home/sensehat/message", "home/sensehat/command"}, f.bus.subscribed)
}

func TestOnConnect_UsesUpdatedInterval(t *testing.T) {
	f := newFixture(t)

	f.telemetry.EXPECT().Stop()
	f.telemetry.EXPECT().Start(2 * time.Second).Times(2)
	f.audio.EXPECT().Play(audio.SoundConnect)
	f.disp.EXPECT().DisplayMessage("Connected!", display.Green)

	f.command(`{"action":"set_interval","interval":2000}`)
	f.d.OnConnect(context.Background())
}

func TestOnErrorAndClose(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.audio.EXPECT().Play(audio.SoundError),
		f.disp.EXPECT().DisplayMessage("Bus Error", display.Red),
		f.disp.EXPECT().DisplayMessage("Disconnected", display.Orange),
	)

	f.d.HandleBusEvent(context.Background(), bus.Event{Type: bus.EventError, Err: errors.New("refused")})
	f.d.HandleBusEvent(context.Background(), bus.Event{Type: bus.EventClosed})
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	js := &fakeJoystick{events: make(chan joystick.Event)}
	f.d.deps.Joystick = js

	f.disp.EXPECT().Clear().Times(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.d.Run(ctx) }()

	f.bus.messages <- bus.Message{Topic: "home/sensehat/command", Payload: []byte(`{"action":"clear"}`)}
	require.NoError(t, f.d.Inject(context.Background(), bus.Message{Topic: "home/sensehat/command", Payload: []byte(`{"action":"clear"}`)}))
	js.events <- joystick.Event{Action: "pressed", Direction: "up"}

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, js.count())
}

func TestRun_PanicIsReturned(t *testing.T) {
	f := newFixture(t)
	f.disp.EXPECT().Clear().Do(func() { panic("framebuffer gone") })

	done := make(chan error, 1)
	go func() { done <- f.d.Run(context.Background()) }()

	require.NoError(t, f.d.Inject(context.Background(), bus.Message{Topic: "home/sensehat/command", Payload: []byte(`{"action":"clear"}`)}))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "framebuffer gone")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after a panic")
	}
}

func TestInject_ContextDone(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, f.d.Inject(ctx, bus.Message{}))
}

func TestClampVolume(t *testing.T) {
	assert.Equal(t, 0, ClampVolume(-5))
	assert.Equal(t, 51, ClampVolume(50.6))
	assert.Equal(t, 100, ClampVolume(1000))
}

func repeat(s string, n int) string {
	out := s
	for i := 1; i < n; i++ {
		out += "," + s
	}
	return out
}
