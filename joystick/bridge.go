// Package joystick runs the joystick helper process and turns its output into
// bus events.
package joystick

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/grego360/sense-hat-mqtt/display"
	"github.com/grego360/sense-hat-mqtt/logging"
)

type Event struct {
	Action    string    `json:"action"`
	Direction string    `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// SubprocessError wraps a failure to run the helper.
type SubprocessError struct {
	Op  string
	Err error
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("joystick helper %s: %v", e.Op, e.Err)
}

func (e *SubprocessError) Unwrap() error { return e.Err }

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Display is the part of the display controller the pulse uses.
type Display interface {
	Pixels() ([]display.RGB, error)
	SetPixels(pixels []display.RGB) error
	SetBackgroundColor(color display.RGB)
	Clear()
}

const helperScript = `import json, sys, time
from sense_hat import SenseHat
sense = SenseHat()
print("Joystick monitor started", flush=True)
while True:
    for e in sense.stick.get_events():
        print(json.dumps({"action": e.action, "direction": e.direction}), flush=True)
    time.sleep(0.05)
`

var DefaultCommand = []string{"python3", "-u", "-c", helperScript}

type Config struct {
	Command       []string
	Topic         string
	PulseColor    display.RGB
	PulseDuration time.Duration
	StopGrace     time.Duration
	EventBuffer   int
}

func DefaultConfig() Config {
	return Config{
		Command:       DefaultCommand,
		Topic:         "home/sensehat/joystick",
		PulseColor:    display.Green,
		PulseDuration: 200 * time.Millisecond,
		StopGrace:     2 * time.Second,
		EventBuffer:   16,
	}
}

type Option func(*Bridge)

// WithAfterFunc replaces the timer used to end the pulse.
func WithAfterFunc(f func(d time.Duration, fn func())) Option {
	return func(b *Bridge) { b.afterFunc = f }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

type Bridge struct {
	cfg       Config
	bus       Publisher
	display   Display
	logger    logging.Logger
	afterFunc func(d time.Duration, fn func())
	now       func() time.Time

	events chan Event

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex

	mu     sync.Mutex
	cmd    *exec.Cmd
	quit   chan struct{}
	exited chan struct{}

	// pulse state; saved holds the grid from before the first overlapping
	// pulse and only the timer of generation pulseGen restores it.
	pulseMu     sync.Mutex
	pulseActive bool
	pulseGen    uint64
	saved       []display.RGB
}

func NewBridge(cfg Config, bus Publisher, disp Display, logger logging.Logger, opts ...Option) *Bridge {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultCommand
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 16
	}
	b := &Bridge{
		cfg:     cfg,
		bus:     bus,
		display: disp,
		logger:  logging.OrNop(logger),
		afterFunc: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		now:    time.Now,
		events: make(chan Event, cfg.EventBuffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Events delivers every valid record in the order the helper printed it.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cmd != nil
}

// Start spawns the helper unless it is already running.
func (b *Bridge) Start(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.Running() {
		return nil
	}

	argv := b.cfg.Command
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &SubprocessError{Op: "start", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &SubprocessError{Op: "start", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &SubprocessError{Op: "start", Err: err}
	}

	quit := make(chan struct{})
	exited := make(chan struct{})

	b.mu.Lock()
	b.cmd = cmd
	b.quit = quit
	b.exited = exited
	b.mu.Unlock()

	b.logger.Info("Started joystick helper (pid %d)", cmd.Process.Pid)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		b.readStdout(stdout, quit)
	}()
	go func() {
		defer readers.Done()
		b.readStderr(stderr)
	}()

	go func() {
		readers.Wait()
		err := cmd.Wait()

		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		if err != nil && code != 0 {
			b.logger.Warn("Joystick helper exited with code %d: %v", code, err)
		} else {
			b.logger.Info("Joystick helper exited with code %d", code)
		}

		b.mu.Lock()
		if b.cmd == cmd {
			b.cmd = nil
			b.quit = nil
			b.exited = nil
		}
		b.mu.Unlock()
		close(exited)
	}()

	return nil
}

func (b *Bridge) readStdout(r io.Reader, quit <-chan struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		b.handleLine(scanner.Text(), quit)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		b.logger.Warn("%v", &SubprocessError{Op: "read stdout", Err: err})
	}
}

func (b *Bridge) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			b.logger.Warn("Joystick helper: %s", line)
		}
	}
}

// HandleLine parses one helper line and queues the event it carries. It
// blocks while the queue is full.
func (b *Bridge) HandleLine(line string) (Event, bool) {
	return b.handleLine(line, nil)
}

func (b *Bridge) handleLine(line string, quit <-chan struct{}) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, false
	}
	if !strings.HasPrefix(line, "{") {
		b.logger.Info("Joystick helper output: %s", line)
		return Event{}, false
	}

	var record struct {
		Action    string `json:"action"`
		Direction string `json:"direction"`
	}
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		b.logger.Warn("Dropping malformed joystick record %q: %v", line, err)
		return Event{}, false
	}
	if record.Action == "" || record.Direction == "" {
		b.logger.Debug("Dropping incomplete joystick record %q", line)
		return Event{}, false
	}

	ev := Event{Action: record.Action, Direction: record.Direction}
	select {
	case b.events <- ev:
		return ev, true
	case <-quit:
		b.logger.Debug("Bridge stopping, dropped %s %s", ev.Action, ev.Direction)
		return ev, false
	}
}

// PublishEvent stamps ev, publishes it and pulses the display. The pulse does
// not wait for a scrolling message to finish.
func (b *Bridge) PublishEvent(ctx context.Context, ev Event) error {
	ev.Timestamp = b.now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode joystick event: %w", err)
	}

	b.logger.Info("Joystick %s %s", ev.Direction, ev.Action)
	pubErr := b.bus.Publish(ctx, b.cfg.Topic, data)
	if pubErr != nil {
		b.logger.Error("Error publishing joystick event: %v", pubErr)
	}

	b.pulse()
	return pubErr
}

func (b *Bridge) pulse() {
	if b.display == nil {
		return
	}

	b.pulseMu.Lock()
	if !b.pulseActive {
		previous, err := b.display.Pixels()
		if err != nil {
			b.logger.Debug("Pixels not captured before pulse: %v", err)
			previous = nil
		}
		b.saved = previous
		b.pulseActive = true
	}
	b.pulseGen++
	gen := b.pulseGen
	b.pulseMu.Unlock()

	b.display.SetBackgroundColor(b.cfg.PulseColor)

	b.afterFunc(b.cfg.PulseDuration, func() {
		b.pulseMu.Lock()
		if gen != b.pulseGen {
			b.pulseMu.Unlock()
			return
		}
		previous := b.saved
		b.saved = nil
		b.pulseActive = false
		b.pulseMu.Unlock()

		if previous != nil {
			if err := b.display.SetPixels(previous); err == nil {
				return
			}
		}
		b.display.Clear()
	})
}

// Stop terminates the helper: SIGTERM first, SIGKILL after the grace period.
// It returns once the helper has exited.
func (b *Bridge) Stop() {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.Lock()
	cmd, quit, exited := b.cmd, b.quit, b.exited
	b.mu.Unlock()

	if cmd == nil {
		return
	}

	close(quit)
	b.logger.Info("Stopping joystick helper")
	signalGroup(cmd, syscall.SIGTERM)

	select {
	case <-exited:
		return
	case <-time.After(b.cfg.StopGrace):
	}

	b.logger.Warn("Joystick helper ignored SIGTERM, killing")
	signalGroup(cmd, syscall.SIGKILL)
	<-exited
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		cmd.Process.Signal(sig)
	}
}
