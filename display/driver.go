package display

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/grego360/sense-hat-mqtt/logging"
)

// DriverType selects the pixel-grid backend
type DriverType int

const (
	DriverSenseHat DriverType = iota
	DriverVirtual
)

func (t DriverType) String() string {
	switch t {
	case DriverSenseHat:
		return "sensehat"
	case DriverVirtual:
		return "virtual"
	}
	return fmt.Sprintf("DriverType(%d)", int(t))
}

// ParseDriverType maps a configuration name to a DriverType
func ParseDriverType(name string) (DriverType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sensehat", "sense-hat", "":
		return DriverSenseHat, nil
	case "virtual", "memory":
		return DriverVirtual, nil
	}
	return DriverSenseHat, fmt.Errorf("unknown display driver %q", name)
}

// DriverConfig contains configuration for a display driver
type DriverConfig struct {
	Logger logging.Logger

	// Device is the framebuffer device. Empty means autodetect.
	Device string

	// ScrollCommand starts the scrolling-text helper. The text, color
	// ("r,g,b"), speed and rotation are appended as arguments.
	ScrollCommand []string
}

// Driver is the pixel-grid collaborator. Pixel slices are always Width*Height
// long, row-major, in display (rotated) coordinates.
type Driver interface {
	// Initialize opens the device
	Initialize(ctx context.Context, config DriverConfig) error

	// Clear turns every pixel off
	Clear() error

	// SetPixels writes the whole grid
	SetPixels(pixels []RGB) error

	// GetPixels reads the whole grid back
	GetPixels() ([]RGB, error)

	// SetRotation changes the orientation used by subsequent writes and redraws
	SetRotation(rotation int) error

	// ShowMessage starts scrolling text and returns once rendering has begun
	ShowMessage(text string, color RGB, speed float64) error

	// Cleanup releases the device
	Cleanup()
}

func NewDriver(driverType DriverType) Driver {
	switch driverType {
	case DriverSenseHat:
		log.Printf("Creating Sense HAT framebuffer driver")
		return NewSenseHatDriver()
	case DriverVirtual:
		log.Printf("Creating virtual display driver")
		return NewVirtualDriver()
	default:
		log.Printf("Unknown display driver type: %v", driverType)
		return nil
	}
}
