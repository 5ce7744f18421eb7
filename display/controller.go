// Package display owns the 8x8 pixel grid: its buffer, rotation and the busy
// lock that keeps a scrolling message from being overwritten by another one.
package display

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/grego360/sense-hat-mqtt/logging"
)

// Skipped is returned by DisplayMessage when a message is already scrolling.
const Skipped time.Duration = -1

// HardwareCallError wraps a failed driver call.
type HardwareCallError struct {
	Op  string
	Err error
}

func (e *HardwareCallError) Error() string {
	return fmt.Sprintf("display %s: %v", e.Op, e.Err)
}

func (e *HardwareCallError) Unwrap() error { return e.Err }

// Config holds display policy and message timing.
type Config struct {
	DefaultRotation int
	ErrorColor      RGB

	// Message duration is len(text)*CharDelay + BaseDelay.
	CharDelay time.Duration
	BaseDelay time.Duration

	// ReleaseSlack keeps the busy lock held a little past the clear.
	ReleaseSlack time.Duration

	// FallbackDelay replaces the message duration when rendering fails.
	FallbackDelay time.Duration

	ScrollSpeed float64
}

func DefaultConfig() Config {
	return Config{
		DefaultRotation: 180,
		ErrorColor:      Red,
		CharDelay:       110 * time.Millisecond,
		BaseDelay:       2000 * time.Millisecond,
		ReleaseSlack:    100 * time.Millisecond,
		FallbackDelay:   1500 * time.Millisecond,
		ScrollSpeed:     0.1,
	}
}

// Timer is the part of *time.Timer the controller needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc in production.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Option func(*Controller)

// WithAfterFunc replaces the timer source.
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Controller) { c.afterFunc = f }
}

// Controller serializes access to a Driver.
type Controller struct {
	mu        sync.Mutex
	driver    Driver
	cfg       Config
	logger    logging.Logger
	afterFunc AfterFunc

	rotation int
	busy     bool

	// gen is bumped whenever pending timers are superseded
	gen          uint64
	clearTimer   Timer
	releaseTimer Timer
}

func NewController(driver Driver, cfg Config, logger logging.Logger, opts ...Option) *Controller {
	if !validRotation(cfg.DefaultRotation) {
		cfg.DefaultRotation = 0
	}
	c := &Controller{
		driver:    driver,
		cfg:       cfg,
		logger:    logging.OrNop(logger),
		afterFunc: realAfterFunc,
		rotation:  cfg.DefaultRotation,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reset clears the grid and applies the default rotation.
func (c *Controller) Reset() {
	c.Clear()
	c.SetRotation(c.cfg.DefaultRotation)
}

// Clear turns every pixel off.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Controller) clearLocked() {
	c.logger.Debug("Clearing display")
	c.writeLocked("clear", Fill(Black))
}

func (c *Controller) writeLocked(op string, pixels []RGB) error {
	if err := c.driver.SetPixels(pixels); err != nil {
		herr := &HardwareCallError{Op: op, Err: err}
		c.logger.Error("%v", herr)
		return herr
	}
	return nil
}

// SetRotation applies rotation if it is one of 0, 90, 180 or 270 and the
// configured default otherwise. It returns the applied value.
func (c *Controller) SetRotation(rotation int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !validRotation(rotation) {
		c.logger.Debug("Rotation %d not supported, using %d", rotation, c.cfg.DefaultRotation)
		rotation = c.cfg.DefaultRotation
	}
	c.rotation = rotation
	c.logger.Info("Setting display rotation to %d degrees", rotation)
	if err := c.driver.SetRotation(rotation); err != nil {
		c.logger.Error("%v", &HardwareCallError{Op: "set_rotation", Err: err})
	}
	return rotation
}

func (c *Controller) Rotation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotation
}

// SetBackgroundColor fills the whole grid with color.
func (c *Controller) SetBackgroundColor(color RGB) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("Setting background color to RGB(%d, %d, %d)", color[0], color[1], color[2])
	c.writeLocked("set_color", Fill(color))
}

// SetPixels writes a full grid directly. It does not consult the busy lock.
func (c *Controller) SetPixels(pixels []RGB) error {
	if len(pixels) != Cells {
		return fmt.Errorf("pixel grid must have %d cells, got %d", Cells, len(pixels))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked("set_pixels", pixels)
}

// Pixels reads the grid back from the driver. Nothing is cached, so a failed
// read is always reported.
func (c *Controller) Pixels() ([]RGB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pixels, err := c.driver.GetPixels()
	if err != nil {
		return nil, &HardwareCallError{Op: "get_pixels", Err: err}
	}
	return pixels, nil
}

// Busy reports whether a message currently holds the display.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// MessageDuration is how long text keeps the display.
func (c *Controller) MessageDuration(text string) time.Duration {
	return time.Duration(utf8.RuneCountInString(text))*c.cfg.CharDelay + c.cfg.BaseDelay
}

// DisplayMessage scrolls text unless another message is in progress, in which
// case it returns Skipped and changes nothing. The display is cleared when the
// returned duration has elapsed and released shortly after.
func (c *Controller) DisplayMessage(text string, color RGB) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		c.logger.Info("Display busy, skipping message %q", text)
		return Skipped
	}
	return c.showLocked(text, color)
}

// Interrupt drops any message in progress and shows text in its place.
func (c *Controller) Interrupt(text string, color RGB) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		c.logger.Debug("Interrupting message in progress")
	}
	c.stopTimersLocked()
	return c.showLocked(text, color)
}

func (c *Controller) showLocked(text string, color RGB) time.Duration {
	c.busy = true

	c.logger.Info("Displaying message: %s", text)
	c.clearLocked()

	duration := c.MessageDuration(text)
	if err := c.driver.ShowMessage(text, color, c.cfg.ScrollSpeed); err != nil {
		c.logger.Error("%v", &HardwareCallError{Op: "show_message", Err: err})
		if err := c.driver.ShowMessage("Error", c.cfg.ErrorColor, c.cfg.ScrollSpeed); err != nil {
			c.logger.Debug("Error fallback not shown: %v", err)
		}
		c.scheduleLocked(c.cfg.FallbackDelay, c.cfg.FallbackDelay)
		return duration
	}

	c.scheduleLocked(duration, duration+c.cfg.ReleaseSlack)
	return duration
}

// scheduleLocked arms the clear and release timers for the current message.
func (c *Controller) scheduleLocked(clearAfter, releaseAfter time.Duration) {
	c.stopTimersLocked()
	gen := c.gen

	c.clearTimer = c.afterFunc(clearAfter, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return
		}
		c.clearLocked()
	})
	c.releaseTimer = c.afterFunc(releaseAfter, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return
		}
		c.busy = false
		c.releaseTimer = nil
		c.logger.Debug("Display released")
	})
}

func (c *Controller) stopTimersLocked() {
	c.gen++
	if c.clearTimer != nil {
		c.clearTimer.Stop()
		c.clearTimer = nil
	}
	if c.releaseTimer != nil {
		c.releaseTimer.Stop()
		c.releaseTimer = nil
	}
}

// Close cancels pending timers, releases the lock and leaves the grid blank at
// the default rotation.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopTimersLocked()
	c.busy = false
	c.mu.Unlock()

	c.Reset()
}
