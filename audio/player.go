// Package audio plays notification sounds, sets the mixer volume and speaks
// text through the system's command-line tools. Every call returns
// immediately; failures are logged.
package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/grego360/sense-hat-mqtt/logging"
)

const DefaultFallbackSound = "/usr/share/sounds/alsa/Front_Right.wav"

// Runner executes one external command, feeding stdin when it is non-empty.
type Runner func(ctx context.Context, stdin string, name string, args ...string) error

func execRunner(ctx context.Context, stdin string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

type Config struct {
	SoundsDir string

	// Files overrides the file played for a tag.
	Files map[string]string

	FallbackSound string
	MixerControl  string
}

type Option func(*Player)

// WithRunner replaces command execution.
func WithRunner(r Runner) Option {
	return func(p *Player) { p.run = r }
}

type Player struct {
	cfg    Config
	logger logging.Logger
	run    Runner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPlayer(cfg Config, logger logging.Logger, opts ...Option) *Player {
	if cfg.FallbackSound == "" {
		cfg.FallbackSound = DefaultFallbackSound
	}
	if cfg.MixerControl == "" {
		cfg.MixerControl = "Master"
	}
	p := &Player{
		cfg:    cfg,
		logger: logging.OrNop(logger),
		run:    execRunner,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Player) soundFile(sound Sound) string {
	config, ok := GetSoundConfig(sound)
	if !ok {
		config, _ = GetSoundConfig(SoundMessage)
	}
	file := config.File
	if override, ok := p.cfg.Files[config.Tag]; ok && override != "" {
		file = override
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(p.cfg.SoundsDir, file)
}

// Play plays sound, falling back to the system sound when its file is
// missing or playback fails.
func (p *Player) Play(sound Sound) {
	path := p.soundFile(sound)
	p.async(func(ctx context.Context) {
		if _, err := os.Stat(path); err != nil {
			p.logger.Warn("Sound file not found: %s", path)
			p.playFallback(ctx)
			return
		}
		if err := p.run(ctx, "", "aplay", path); err != nil {
			p.logger.Error("Error playing sound %s: %v", path, err)
			p.playFallback(ctx)
		}
	})
}

func (p *Player) playFallback(ctx context.Context) {
	if err := p.run(ctx, "", "aplay", p.cfg.FallbackSound); err != nil {
		p.logger.Error("Error playing fallback sound: %v", err)
	}
}

// SetVolume sets the mixer level. level is clamped to 0-100.
func (p *Player) SetVolume(level int) {
	level = ClampVolume(float64(level))
	p.logger.Debug("Setting volume to %d%%", level)
	p.async(func(ctx context.Context) {
		if err := p.run(ctx, "", "amixer", "set", p.cfg.MixerControl, fmt.Sprintf("%d%%", level)); err != nil {
			p.logger.Error("Error setting volume: %v", err)
		}
	})
}

// Speak reads text aloud. The text is passed on stdin, never through a shell.
func (p *Player) Speak(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	p.async(func(ctx context.Context) {
		if err := p.run(ctx, text+"\n", "festival", "--tts"); err != nil {
			p.logger.Error("Error with text-to-speech: %v", err)
		}
	})
}

func (p *Player) async(f func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		f(p.ctx)
	}()
}

// Wait blocks until every started command has finished.
func (p *Player) Wait() {
	p.wg.Wait()
}

// Close kills running commands and waits for them.
func (p *Player) Close() {
	p.cancel()
	p.wg.Wait()
}

// ClampVolume rounds v and limits it to 0-100. NaN maps to 0.
func ClampVolume(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Min(100, math.Max(0, v))))
}
