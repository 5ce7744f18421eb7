// Package system runs host-level actions requested over the bus.
package system

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/grego360/sense-hat-mqtt/logging"
)

// DefaultRebootCommand needs a sudoers entry for the service user.
var DefaultRebootCommand = []string{"sudo", "reboot"}

// Starter launches a command without waiting for it to finish.
type Starter func(name string, args ...string) (wait func() error, err error)

func execStarter(name string, args ...string) (func() error, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Wait, nil
}

type Option func(*Rebooter)

func WithStarter(s Starter) Option {
	return func(r *Rebooter) { r.start = s }
}

type Rebooter struct {
	command []string
	logger  logging.Logger
	start   Starter

	// delay lets the caller's last bus messages go out before the host goes down.
	delay time.Duration
	sleep func(context.Context, time.Duration) error
}

func NewRebooter(command []string, delay time.Duration, logger logging.Logger, opts ...Option) *Rebooter {
	if len(command) == 0 {
		command = DefaultRebootCommand
	}
	r := &Rebooter{
		command: command,
		logger:  logging.OrNop(logger),
		start:   execStarter,
		delay:   delay,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reboot starts the reboot command and returns once it is running. The
// command's exit status is only logged. With a delay configured, Reboot
// returns at once and the command is started, or its start failure logged,
// after the delay.
func (r *Rebooter) Reboot() error {
	if r.delay <= 0 {
		return r.run()
	}

	r.logger.Warn("Rebooting in %v", r.delay)
	go func() {
		if err := r.sleep(context.Background(), r.delay); err != nil {
			return
		}
		if err := r.run(); err != nil {
			r.logger.Error("Error rebooting: %v", err)
		}
	}()
	return nil
}

func (r *Rebooter) run() error {
	r.logger.Warn("Rebooting system: %s", strings.Join(r.command, " "))
	wait, err := r.start(r.command[0], r.command[1:]...)
	if err != nil {
		return fmt.Errorf("start %s: %w", r.command[0], err)
	}

	go func() {
		if err := wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				r.logger.Error("Reboot command exited with status %d", exitErr.ExitCode())
				return
			}
			r.logger.Error("Reboot command failed: %v", err)
		}
	}()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
