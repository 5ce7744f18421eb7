package display

import (
	"context"
	"sync"

	"github.com/grego360/sense-hat-mqtt/logging"
)

const (
	Width  = 8
	Height = 8
	Cells  = Width * Height
)

// RGB is one pixel. Components are expected in 0-255.
type RGB [3]int

var (
	Black  = RGB{0, 0, 0}
	White  = RGB{255, 255, 255}
	Red    = RGB{255, 0, 0}
	Green  = RGB{0, 255, 0}
	Orange = RGB{255, 165, 0}
)

// Fill returns a full grid of c.
func Fill(c RGB) []RGB {
	out := make([]RGB, Cells)
	for i := range out {
		out[i] = c
	}
	return out
}

// baseDriver contains state shared by the concrete drivers
type baseDriver struct {
	mu       sync.RWMutex
	logger   logging.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	rotation int
}

func (b *baseDriver) initializeBase(ctx context.Context, config DriverConfig) {
	b.logger = logging.OrNop(config.Logger)
	b.ctx, b.cancel = context.WithCancel(ctx)
}

func (b *baseDriver) cleanupBase() {
	if b.cancel != nil {
		b.cancel()
	}
}

// physicalIndex maps a display coordinate to the framebuffer cell it lands on
// for the given rotation.
func physicalIndex(row, col, rotation int) int {
	switch rotation {
	case 90:
		return col*Width + (Width - 1 - row)
	case 180:
		return (Height-1-row)*Width + (Width - 1 - col)
	case 270:
		return (Height-1-col)*Width + row
	default:
		return row*Width + col
	}
}

func validRotation(r int) bool {
	return r == 0 || r == 90 || r == 180 || r == 270
}

// pack565 converts a pixel to the RGB565 layout the framebuffer uses.
func pack565(c RGB) uint16 {
	r := uint16(clampByte(c[0])>>3) & 0x1F
	g := uint16(clampByte(c[1])>>2) & 0x3F
	b := uint16(clampByte(c[2])>>3) & 0x1F
	return r<<11 | g<<5 | b
}

func unpack565(v uint16) RGB {
	return RGB{
		int((v & 0xF800) >> 8),
		int((v & 0x07E0) >> 3),
		int((v & 0x001F) << 3),
	}
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
