// Package dispatch routes bus traffic to the peripherals. A single goroutine
// (Run) handles inbound messages, connection events and joystick events one
// at a time.
package dispatch

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/grego360/sense-hat-mqtt/dispatch Display,Audio,Telemetry,System

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/grego360/sense-hat-mqtt/audio"
	"github.com/grego360/sense-hat-mqtt/bus"
	"github.com/grego360/sense-hat-mqtt/display"
	"github.com/grego360/sense-hat-mqtt/joystick"
	"github.com/grego360/sense-hat-mqtt/logging"
	"github.com/grego360/sense-hat-mqtt/payload"
	"github.com/grego360/sense-hat-mqtt/sensors"
)

type Display interface {
	Clear()
	SetRotation(rotation int) int
	Rotation() int
	SetBackgroundColor(color display.RGB)
	SetPixels(pixels []display.RGB) error
	DisplayMessage(text string, color display.RGB) time.Duration
}

type Audio interface {
	Play(sound audio.Sound)
	SetVolume(level int)
	Speak(text string)
}

type Telemetry interface {
	PublishOnce(ctx context.Context) (*sensors.Sample, error)
	Start(period time.Duration) error
	Stop()
}

type System interface {
	Reboot() error
}

type Joystick interface {
	Events() <-chan joystick.Event
	PublishEvent(ctx context.Context, ev joystick.Event) error
}

// Bus is the inbound side of the broker connection.
type Bus interface {
	Subscribe(ctx context.Context, topics ...string) error
	Messages() <-chan bus.Message
	Events() <-chan bus.Event
}

type Topics struct {
	Message  string
	Command  string
	Sensors  string
	Joystick string
}

type Config struct {
	Topics Topics

	TextColor    display.RGB
	ErrorColor   display.RGB
	SuccessColor display.RGB
	WarningColor display.RGB

	PublishInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Topics: Topics{
			Message:  "home/sensehat/message",
			Command:  "home/sensehat/command",
			Sensors:  "home/sensehat/sensors",
			Joystick: "home/sensehat/joystick",
		},
		TextColor:       display.White,
		ErrorColor:      display.Red,
		SuccessColor:    display.Green,
		WarningColor:    display.Orange,
		PublishInterval: 30 * time.Second,
	}
}

// Deps are the collaborators. Joystick may be nil when the helper is disabled.
type Deps struct {
	Display   Display
	Audio     Audio
	Telemetry Telemetry
	Joystick  Joystick
	System    System
	Bus       Bus
}

type Dispatcher struct {
	cfg    Config
	deps   Deps
	logger logging.Logger

	inject chan bus.Message

	mu       sync.Mutex
	interval time.Duration
}

func New(cfg Config, deps Deps, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		deps:     deps,
		logger:   logging.OrNop(logger),
		inject:   make(chan bus.Message),
		interval: cfg.PublishInterval,
	}
}

// Interval is the telemetry period applied on the next (re)start.
func (d *Dispatcher) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

// Inject queues msg as if it had arrived from the bus. It blocks until the
// dispatcher loop takes it or ctx ends.
func (d *Dispatcher) Inject(ctx context.Context, msg bus.Message) error {
	select {
	case d.inject <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()

	var joystickEvents <-chan joystick.Event
	if d.deps.Joystick != nil {
		joystickEvents = d.deps.Joystick.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-d.deps.Bus.Messages():
			d.HandleMessage(ctx, msg)
		case ev := <-d.deps.Bus.Events():
			d.HandleBusEvent(ctx, ev)
		case ev := <-joystickEvents:
			if err := d.deps.Joystick.PublishEvent(ctx, ev); err != nil {
				d.logger.Warn("Joystick event not published: %v", err)
			}
		case msg := <-d.inject:
			d.HandleMessage(ctx, msg)
		}
	}
}

func (d *Dispatcher) HandleBusEvent(ctx context.Context, ev bus.Event) {
	switch ev.Type {
	case bus.EventConnected:
		d.OnConnect(ctx)
	case bus.EventError:
		d.OnError(ev.Err)
	case bus.EventClosed:
		d.OnClose(ev.Err)
	}
}

// OnConnect subscribes, announces the connection and (re)starts telemetry.
func (d *Dispatcher) OnConnect(ctx context.Context) {
	topics := d.cfg.Topics
	if err := d.deps.Bus.Subscribe(ctx, topics.Message, topics.Command); err != nil {
		d.logger.Error("Subscribe failed: %v", err)
	}

	d.deps.Audio.Play(audio.SoundConnect)
	d.deps.Display.DisplayMessage("Connected!", d.cfg.SuccessColor)

	if err := d.deps.Telemetry.Start(d.Interval()); err != nil {
		d.logger.Error("Telemetry not started: %v", err)
	}
}

func (d *Dispatcher) OnError(err error) {
	d.logger.Error("Bus connection error: %v", err)
	d.deps.Audio.Play(audio.SoundError)
	d.deps.Display.DisplayMessage("Bus Error", d.cfg.ErrorColor)
}

func (d *Dispatcher) OnClose(err error) {
	if err != nil {
		d.logger.Warn("Disconnected from broker: %v", err)
	} else {
		d.logger.Warn("Disconnected from broker")
	}
	d.deps.Display.DisplayMessage("Disconnected", d.cfg.WarningColor)
}

// HandleMessage routes one inbound message by topic.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg bus.Message) {
	d.logger.Info("Received message on topic %s: %s", msg.Topic, msg.Payload)

	switch msg.Topic {
	case d.cfg.Topics.Message:
		cmd, err := payload.DecodeCommand(msg.Payload)
		if err != nil {
			d.decodeFailed(err)
			return
		}
		d.applyCommand(cmd)
	case d.cfg.Topics.Command:
		act, err := payload.DecodeAction(msg.Payload)
		if err != nil {
			d.decodeFailed(err)
			return
		}
		d.handleAction(ctx, act)
	default:
		d.logger.Debug("Ignoring message on unexpected topic %s", msg.Topic)
	}
}

func (d *Dispatcher) decodeFailed(err error) {
	d.logger.Error("Error processing message: %v", err)
	d.deps.Audio.Play(audio.SoundError)
	d.deps.Display.DisplayMessage("Error", d.cfg.ErrorColor)
}

func (d *Dispatcher) applyCommand(cmd payload.Command) {
	if len(cmd.Ignored) > 0 {
		d.logger.Warn("Ignoring fields with unusable values: %v", cmd.Ignored)
	}

	d.deps.Display.Clear()
	var rotation int
	if cmd.Rotation != nil {
		rotation = *cmd.Rotation
	} else {
		rotation = d.deps.Display.Rotation()
	}
	d.deps.Display.SetRotation(rotation)

	if cmd.Volume != nil {
		d.deps.Audio.SetVolume(ClampVolume(*cmd.Volume))
	}

	if cmd.Message != "" {
		color := d.cfg.TextColor
		if cmd.Color != nil {
			color = display.RGB(*cmd.Color)
		}
		d.deps.Display.DisplayMessage(cmd.Message, color)

		sound := audio.SoundMessage
		if cmd.Sound != "" {
			sound = audio.ParseSound(cmd.Sound)
		}
		d.deps.Audio.Play(sound)

		if cmd.Speak {
			d.deps.Audio.Speak(cmd.Message)
		}
	} else if cmd.Color != nil {
		d.deps.Display.SetBackgroundColor(display.RGB(*cmd.Color))
	}

	if cmd.Pattern != nil {
		pixels := make([]display.RGB, len(cmd.Pattern))
		for i, c := range cmd.Pattern {
			pixels[i] = display.RGB(c)
		}
		d.logger.Info("Displaying custom pattern")
		if err := d.deps.Display.SetPixels(pixels); err != nil {
			d.logger.Error("Pattern not written: %v", err)
		}
	}
}

// maxIntervalMillis is the largest interval, in ms, a time.Duration can hold.
const maxIntervalMillis = float64(math.MaxInt64) / float64(time.Millisecond)

func (d *Dispatcher) handleAction(ctx context.Context, act payload.ControlAction) {
	switch act.Action {
	case payload.ActionGetSensors:
		d.logger.Info("Received command to publish sensor data immediately")
		if _, err := d.deps.Telemetry.PublishOnce(ctx); err != nil {
			return
		}
		d.deps.Display.DisplayMessage("Sensors sent", d.cfg.SuccessColor)

	case payload.ActionSetInterval:
		if act.Interval == nil || !(*act.Interval > 0) || math.IsInf(*act.Interval, 1) {
			d.logger.Warn("set_interval needs a positive numeric interval")
			return
		}
		if *act.Interval >= maxIntervalMillis {
			d.logger.Warn("set_interval %vms is too long", *act.Interval)
			return
		}
		interval := time.Duration(*act.Interval * float64(time.Millisecond))
		if interval <= 0 {
			d.logger.Warn("set_interval %vms is too short", *act.Interval)
			return
		}
		d.logger.Info("Changing sensor publish interval to %v", interval)

		d.mu.Lock()
		d.interval = interval
		d.mu.Unlock()

		d.deps.Telemetry.Stop()
		if err := d.deps.Telemetry.Start(interval); err != nil {
			d.logger.Error("Telemetry not restarted: %v", err)
		}

	case payload.ActionClear:
		d.deps.Display.Clear()

	case payload.ActionReboot:
		d.logger.Warn("Reboot requested")
		if err := d.deps.System.Reboot(); err != nil {
			d.logger.Error("Error rebooting: %v", err)
		}

	default:
		d.logger.Info("Unknown command action: %q", act.Action)
	}
}

// ClampVolume limits a requested volume to 0-100.
func ClampVolume(v float64) int {
	return audio.ClampVolume(v)
}
