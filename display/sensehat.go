package display

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// SenseHatFramebufferName is what the LED matrix kernel driver reports in /sys/class/graphics/fb*/name
	SenseHatFramebufferName = "RPi-Sense FB"

	framebufferBytes = Cells * 2
)

// scrollScript renders scrolling text through the sense_hat python library,
// which ships with a font and its own scroll loop.
const scrollScript = `import sys
from sense_hat import SenseHat
s = SenseHat()
s.set_rotation(int(sys.argv[4]), False)
s.show_message(sys.argv[1], scroll_speed=float(sys.argv[3]), text_colour=[int(c) for c in sys.argv[2].split(",")])
`

// DefaultScrollCommand is used when DriverConfig.ScrollCommand is empty.
var DefaultScrollCommand = []string{"python3", "-c", scrollScript}

var sysGraphicsGlob = "/sys/class/graphics/fb*"

type SenseHatDriver struct {
	baseDriver

	fb            *os.File
	device        string
	scrollCommand []string
}

func NewSenseHatDriver() Driver {
	return &SenseHatDriver{}
}

func (s *SenseHatDriver) Initialize(ctx context.Context, config DriverConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initializeBase(ctx, config)

	s.scrollCommand = config.ScrollCommand
	if len(s.scrollCommand) == 0 {
		s.scrollCommand = DefaultScrollCommand
	}

	device := config.Device
	if device == "" {
		found, err := findSenseHatFramebuffer()
		if err != nil {
			return err
		}
		device = found
	}

	fb, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open framebuffer %s: %w", device, err)
	}
	s.fb = fb
	s.device = device

	s.logger.Info("Initialized Sense HAT framebuffer at %s", device)
	return nil
}

func findSenseHatFramebuffer() (string, error) {
	dirs, err := filepath.Glob(sysGraphicsGlob)
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		name, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(name)) == SenseHatFramebufferName {
			return filepath.Join("/dev", filepath.Base(dir)), nil
		}
	}
	return "", fmt.Errorf("no framebuffer named %q found", SenseHatFramebufferName)
}

func (s *SenseHatDriver) Clear() error {
	return s.SetPixels(Fill(Black))
}

func (s *SenseHatDriver) SetPixels(pixels []RGB) error {
	if len(pixels) != Cells {
		return fmt.Errorf("pixel grid must have %d cells, got %d", Cells, len(pixels))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(pixels)
}

func (s *SenseHatDriver) writeLocked(pixels []RGB) error {
	if s.fb == nil {
		return fmt.Errorf("framebuffer not initialized")
	}

	buf := make([]byte, framebufferBytes)
	for i, p := range pixels {
		offset := physicalIndex(i/Width, i%Width, s.rotation) * 2
		binary.LittleEndian.PutUint16(buf[offset:], pack565(p))
	}
	_, err := s.fb.WriteAt(buf, 0)
	return err
}

func (s *SenseHatDriver) GetPixels() ([]RGB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readLocked()
}

func (s *SenseHatDriver) readLocked() ([]RGB, error) {
	if s.fb == nil {
		return nil, fmt.Errorf("framebuffer not initialized")
	}

	buf := make([]byte, framebufferBytes)
	if _, err := s.fb.ReadAt(buf, 0); err != nil {
		return nil, err
	}

	pixels := make([]RGB, Cells)
	for i := range pixels {
		offset := physicalIndex(i/Width, i%Width, s.rotation) * 2
		pixels[i] = unpack565(binary.LittleEndian.Uint16(buf[offset:]))
	}
	return pixels, nil
}

// SetRotation redraws the current image in the new orientation.
func (s *SenseHatDriver) SetRotation(rotation int) error {
	if !validRotation(rotation) {
		return fmt.Errorf("invalid rotation %d", rotation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fb == nil {
		s.rotation = rotation
		return nil
	}

	pixels, err := s.readLocked()
	if err != nil {
		return err
	}
	s.rotation = rotation
	return s.writeLocked(pixels)
}

// ShowMessage starts the scroll helper and reaps it in the background.
func (s *SenseHatDriver) ShowMessage(text string, color RGB, speed float64) error {
	s.mu.RLock()
	ctx := s.ctx
	rotation := s.rotation
	argv := append([]string{}, s.scrollCommand...)
	s.mu.RUnlock()

	if ctx == nil {
		return fmt.Errorf("driver not initialized")
	}

	argv = append(argv,
		text,
		fmt.Sprintf("%d,%d,%d", clampByte(color[0]), clampByte(color[1]), clampByte(color[2])),
		strconv.FormatFloat(speed, 'f', -1, 64),
		strconv.Itoa(rotation),
	)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start scroll helper: %w", err)
	}

	logger := s.logger
	go func() {
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			logger.Warn("Scroll helper exited: %v", err)
		}
	}()
	return nil
}

func (s *SenseHatDriver) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupBase()
	if s.fb != nil {
		s.fb.Close()
		s.fb = nil
	}
}
