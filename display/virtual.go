package display

import (
	"context"
	"fmt"
)

// ShownMessage records one ShowMessage call on the virtual driver.
type ShownMessage struct {
	Text     string
	Color    RGB
	Speed    float64
	Rotation int
}

// VirtualDriver keeps the grid in memory. It is used off-device and in tests;
// the Fail* fields inject hardware errors.
type VirtualDriver struct {
	baseDriver

	pixels   []RGB
	messages []ShownMessage

	FailShow  error
	FailRead  error
	FailWrite error
}

func NewVirtualDriver() Driver {
	return &VirtualDriver{pixels: Fill(Black)}
}

func (v *VirtualDriver) Initialize(ctx context.Context, config DriverConfig) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.initializeBase(ctx, config)
	v.logger.Info("Initialized virtual display")
	return nil
}

func (v *VirtualDriver) Clear() error {
	return v.SetPixels(Fill(Black))
}

func (v *VirtualDriver) SetPixels(pixels []RGB) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.FailWrite != nil {
		return v.FailWrite
	}
	if len(pixels) != Cells {
		return fmt.Errorf("pixel grid must have %d cells, got %d", Cells, len(pixels))
	}
	v.pixels = append(v.pixels[:0], pixels...)
	return nil
}

func (v *VirtualDriver) GetPixels() ([]RGB, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.FailRead != nil {
		return nil, v.FailRead
	}
	return append([]RGB(nil), v.pixels...), nil
}

func (v *VirtualDriver) SetRotation(rotation int) error {
	if !validRotation(rotation) {
		return fmt.Errorf("invalid rotation %d", rotation)
	}
	v.mu.Lock()
	v.rotation = rotation
	v.mu.Unlock()
	return nil
}

func (v *VirtualDriver) ShowMessage(text string, color RGB, speed float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.FailShow != nil {
		return v.FailShow
	}
	v.messages = append(v.messages, ShownMessage{Text: text, Color: color, Speed: speed, Rotation: v.rotation})
	return nil
}

// Messages returns every message shown so far.
func (v *VirtualDriver) Messages() []ShownMessage {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]ShownMessage(nil), v.messages...)
}

// CurrentRotation returns the rotation last applied.
func (v *VirtualDriver) CurrentRotation() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rotation
}

func (v *VirtualDriver) Cleanup() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cleanupBase()
}
