package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/grego360/sense-hat-mqtt/api"
	"github.com/grego360/sense-hat-mqtt/audio"
	"github.com/grego360/sense-hat-mqtt/bus"
	"github.com/grego360/sense-hat-mqtt/config"
	"github.com/grego360/sense-hat-mqtt/dispatch"
	"github.com/grego360/sense-hat-mqtt/display"
	"github.com/grego360/sense-hat-mqtt/joystick"
	"github.com/grego360/sense-hat-mqtt/sensors"
	"github.com/grego360/sense-hat-mqtt/system"
	"github.com/grego360/sense-hat-mqtt/telemetry"
)

type AgentApp struct {
	log    *LeveledLogger
	cfg    *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	driver     display.Driver
	display    *display.Controller
	audio      *audio.Player
	bus        bus.Client
	hub        *api.Hub
	influx     *telemetry.InfluxSink
	telemetry  *telemetry.Publisher
	joystick   *joystick.Bridge
	dispatcher *dispatch.Dispatcher
	api        *api.Server

	faults      chan error
	destroyOnce sync.Once
}

func NewAgentApp(opts *Options) (*AgentApp, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &AgentApp{
		log:    NewLeveledLogger(logger, opts.LogLevel),
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		bus:    opts.Bus,
		faults: make(chan error, 1),
	}

	if err := app.init(); err != nil {
		app.Destroy()
		return nil, err
	}
	return app, nil
}

func (app *AgentApp) init() error {
	cfg := app.cfg

	driverType, err := display.ParseDriverType(cfg.Display.Driver)
	if err != nil {
		return err
	}
	driver := display.NewDriver(driverType)
	if driver == nil {
		return fmt.Errorf("failed to create display driver of type %v", driverType)
	}
	if err := driver.Initialize(app.ctx, display.DriverConfig{
		Logger:        app.log.Named("display"),
		Device:        cfg.Display.Device,
		ScrollCommand: cfg.Display.ScrollCommand,
	}); err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	app.driver = driver

	displayCfg := display.DefaultConfig()
	displayCfg.DefaultRotation = cfg.Display.DefaultRotation
	displayCfg.ErrorColor = display.RGB(config.RGB(cfg.Display.ErrorColor))
	displayCfg.ScrollSpeed = cfg.Display.ScrollSpeed
	app.display = display.NewController(driver, displayCfg, app.log.Named("display"))
	app.display.Reset()
	app.log.Printf("Display initialized - driver: %v", driverType)

	app.audio = audio.NewPlayer(audio.Config{
		SoundsDir:     cfg.Audio.SoundsDir,
		Files:         cfg.Audio.Sounds,
		FallbackSound: cfg.Audio.FallbackSound,
		MixerControl:  cfg.Audio.MixerControl,
	}, app.log.Named("audio"))
	app.audio.SetVolume(cfg.Audio.DefaultVolume)

	if app.bus == nil {
		backend, err := bus.ParseBackend(cfg.Bus.Backend)
		if err != nil {
			return err
		}
		app.bus, err = bus.NewClient(bus.Config{
			Backend:        backend,
			Host:           cfg.Bus.Host,
			Port:           cfg.Bus.Port,
			Username:       cfg.Bus.Username,
			Password:       cfg.Bus.Password,
			ClientID:       cfg.Bus.ClientID,
			QoS:            byte(cfg.Bus.QoS),
			ConnectTimeout: cfg.Bus.ConnectTimeout,
			KeepAlive:      cfg.Bus.KeepAlive,
			HealthInterval: cfg.Bus.HealthInterval,
		}, app.log.Named("bus"))
		if err != nil {
			return err
		}
	}

	var publisher bus.Publisher = app.bus
	if cfg.API.Enabled {
		app.hub = api.NewHub(cfg.API.History)
		publisher = bus.Tee(app.bus, app.hub)
	}

	var sinks []telemetry.Sink
	if cfg.Influx.Enabled {
		app.influx = telemetry.NewInfluxSink(telemetry.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
			Device: cfg.Influx.Device,
		})
		sinks = append(sinks, app.influx)
		app.log.Printf("InfluxDB sink enabled - %s/%s", cfg.Influx.URL, cfg.Influx.Bucket)
	}

	reader := sensors.NewCommandReader(cfg.Sensors.Command, cfg.Sensors.Timeout, app.log.Named("sensors"))
	app.telemetry = telemetry.NewPublisher(reader, publisher, cfg.Topics.Sensors, app.log.Named("telemetry"),
		telemetry.WithSinks(sinks...))

	deps := dispatch.Deps{
		Display:   app.display,
		Audio:     app.audio,
		Telemetry: app.telemetry,
		System:    system.NewRebooter(cfg.System.RebootCommand, cfg.System.RebootDelay, app.log.Named("system")),
		Bus:       app.bus,
	}

	if cfg.Joystick.Enabled {
		jsCfg := joystick.DefaultConfig()
		jsCfg.Topic = cfg.Topics.Joystick
		if len(cfg.Joystick.Command) > 0 {
			jsCfg.Command = cfg.Joystick.Command
		}
		jsCfg.PulseColor = display.RGB(config.RGB(cfg.Display.SuccessColor))
		app.joystick = joystick.NewBridge(jsCfg, publisher, app.display, app.log.Named("joystick"))
		deps.Joystick = app.joystick
	}

	dispatchCfg := dispatch.Config{
		Topics: dispatch.Topics{
			Message:  cfg.Topics.Message,
			Command:  cfg.Topics.Command,
			Sensors:  cfg.Topics.Sensors,
			Joystick: cfg.Topics.Joystick,
		},
		TextColor:       display.RGB(config.RGB(cfg.Display.DefaultColor)),
		ErrorColor:      display.RGB(config.RGB(cfg.Display.ErrorColor)),
		SuccessColor:    display.RGB(config.RGB(cfg.Display.SuccessColor)),
		WarningColor:    display.RGB(config.RGB(cfg.Display.WarningColor)),
		PublishInterval: cfg.Sensors.PublishInterval,
	}
	app.dispatcher = dispatch.New(dispatchCfg, deps, app.log.Named("dispatch"))

	if cfg.API.Enabled {
		app.api = api.New(api.Config{
			Listen:       cfg.API.Listen,
			MessageTopic: cfg.Topics.Message,
			CommandTopic: cfg.Topics.Command,
		}, app.dispatcher, app.Status, app.hub, app.log.Named("api"))
	}

	return nil
}

// Start runs the dispatcher and connects to the broker. A failed first
// connection is returned; later reconnects are left to the bus client.
func (app *AgentApp) Start() error {
	app.goSafe("dispatcher", func() error {
		return app.dispatcher.Run(app.ctx)
	})

	if err := app.bus.Connect(app.ctx); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	if app.joystick != nil {
		if err := app.joystick.Start(app.ctx); err != nil {
			app.log.Warn("Joystick monitoring disabled: %v", err)
		}
	}

	if app.api != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			defer app.recoverFault("api")
			if err := app.api.Start(app.ctx); err != nil {
				app.log.Error("API server stopped: %v", err)
			}
		}()
	}

	app.log.Printf("Agent started and waiting for messages...")
	return nil
}

// goSafe runs fn in the background. A panic or an error other than
// cancellation is reported on Faults.
func (app *AgentApp) goSafe(name string, fn func() error) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		defer app.recoverFault(name)
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			app.reportFault(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

func (app *AgentApp) recoverFault(name string) {
	if r := recover(); r != nil {
		app.reportFault(fmt.Errorf("%s panic: %v", name, r))
	}
}

// reportFault keeps the first fault; later ones are only logged.
func (app *AgentApp) reportFault(err error) {
	select {
	case app.faults <- err:
	default:
		app.log.Error("Additional fault: %v", err)
	}
}

// Faults delivers the first fatal error raised by a background goroutine.
func (app *AgentApp) Faults() <-chan error {
	return app.faults
}

// Status is served on the local API.
func (app *AgentApp) Status() api.Status {
	st := api.Status{
		Bus: api.BusStatus{
			Backend:   app.cfg.Bus.Backend,
			Connected: app.bus.Connected(),
		},
		Display: api.DisplayStatus{
			Rotation: app.display.Rotation(),
			Busy:     app.display.Busy(),
		},
		Telemetry: api.TelemetryStatus{
			Running: app.telemetry.Running(),
			Period:  app.dispatcher.Interval().String(),
			Last:    app.telemetry.Last(),
		},
	}
	if app.joystick != nil {
		st.Joystick.Running = app.joystick.Running()
	}
	return st
}

// Fault stops the background loops, shows the error on the display and drops
// the broker connection. The error replaces any message in progress and the
// display is left as is so it stays visible after exit.
func (app *AgentApp) Fault(err error) {
	app.log.Error("Fatal error: %v", err)
	if app.joystick != nil {
		app.joystick.Stop()
	}
	if app.telemetry != nil {
		app.telemetry.Stop()
	}
	if app.display != nil {
		app.display.Interrupt("Error", display.RGB(config.RGB(app.cfg.Display.ErrorColor)))
	}
	if app.bus != nil {
		app.bus.Close()
	}
}

func (app *AgentApp) Destroy() {
	app.destroyOnce.Do(app.destroy)
}

func (app *AgentApp) destroy() {
	app.log.Printf("Shutting down agent...")

	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()

	if app.joystick != nil {
		app.joystick.Stop()
		app.log.Printf("Joystick shutdown complete")
	}

	if app.telemetry != nil {
		app.telemetry.Stop()
		app.log.Printf("Telemetry shutdown complete")
	}

	if app.display != nil {
		app.display.Close()
		app.log.Printf("Display cleared")
	}

	if app.driver != nil {
		app.driver.Cleanup()
	}

	if app.audio != nil {
		app.audio.Close()
	}

	if app.influx != nil {
		app.influx.Close()
	}

	if app.bus != nil {
		if err := app.bus.Close(); err != nil {
			app.log.Printf("Error closing bus connection: %v", err)
		} else {
			app.log.Printf("Bus connection closed")
		}
	}
}
