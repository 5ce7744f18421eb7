// Package config loads the agent configuration: defaults, overlaid by an
// optional YAML file, overlaid by command-line flags in package main.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string         `yaml:"log_level"`
	Bus      BusConfig      `yaml:"bus"`
	Topics   TopicsConfig   `yaml:"topics"`
	Display  DisplayConfig  `yaml:"display"`
	Audio    AudioConfig    `yaml:"audio"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Joystick JoystickConfig `yaml:"joystick"`
	System   SystemConfig   `yaml:"system"`
	API      APIConfig      `yaml:"api"`
	Influx   InfluxConfig   `yaml:"influx"`
}

type BusConfig struct {
	// Backend is "mqtt" or "redis".
	Backend        string        `yaml:"backend"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ClientID       string        `yaml:"client_id"`
	QoS            int           `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

type TopicsConfig struct {
	Message  string `yaml:"message"`
	Command  string `yaml:"command"`
	Sensors  string `yaml:"sensors"`
	Joystick string `yaml:"joystick"`
}

type DisplayConfig struct {
	Driver          string   `yaml:"driver"`
	Device          string   `yaml:"device"`
	ScrollCommand   []string `yaml:"scroll_command"`
	DefaultRotation int      `yaml:"default_rotation"`
	ScrollSpeed     float64  `yaml:"scroll_speed"`
	DefaultColor    []int    `yaml:"default_color"`
	ErrorColor      []int    `yaml:"error_color"`
	SuccessColor    []int    `yaml:"success_color"`
	WarningColor    []int    `yaml:"warning_color"`
}

type AudioConfig struct {
	SoundsDir     string            `yaml:"sounds_dir"`
	Sounds        map[string]string `yaml:"sounds"`
	FallbackSound string            `yaml:"fallback_sound"`
	MixerControl  string            `yaml:"mixer_control"`
	DefaultVolume int               `yaml:"default_volume"`
}

type SensorsConfig struct {
	Command         []string      `yaml:"command"`
	Timeout         time.Duration `yaml:"timeout"`
	PublishInterval time.Duration `yaml:"publish_interval"`
}

type JoystickConfig struct {
	Enabled bool     `yaml:"enabled"`
	Command []string `yaml:"command"`
}

type SystemConfig struct {
	RebootCommand []string      `yaml:"reboot_command"`
	RebootDelay   time.Duration `yaml:"reboot_delay"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// History is the number of publications replayed to new /events clients.
	History int `yaml:"history"`
}

type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
	Device  string `yaml:"device"`
}

// Defaults returns a configuration usable as-is against a local broker.
// Every call draws a fresh client id suffix.
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Bus: BusConfig{
			Backend:        "mqtt",
			Host:           "127.0.0.1",
			Port:           1883,
			ClientID:       "rpi-sense-hat-" + clientSuffix(),
			ConnectTimeout: 10 * time.Second,
			KeepAlive:      30 * time.Second,
			HealthInterval: 30 * time.Second,
		},
		Topics: TopicsConfig{
			Message:  "home/sensehat/message",
			Command:  "home/sensehat/command",
			Sensors:  "home/sensehat/sensors",
			Joystick: "home/sensehat/joystick",
		},
		Display: DisplayConfig{
			Driver:          "sensehat",
			DefaultRotation: 180,
			ScrollSpeed:     0.1,
			DefaultColor:    []int{255, 255, 255},
			ErrorColor:      []int{255, 0, 0},
			SuccessColor:    []int{0, 255, 0},
			WarningColor:    []int{255, 165, 0},
		},
		Audio: AudioConfig{
			SoundsDir:     "./sounds",
			MixerControl:  "Master",
			DefaultVolume: 80,
		},
		Sensors: SensorsConfig{
			Timeout:         10 * time.Second,
			PublishInterval: 30 * time.Second,
		},
		Joystick: JoystickConfig{
			Enabled: true,
		},
		System: SystemConfig{
			RebootCommand: []string{"sudo", "reboot"},
			RebootDelay:   time.Second,
		},
		API: APIConfig{
			Listen:  "127.0.0.1:8080",
			History: 100,
		},
		Influx: InfluxConfig{
			Bucket: "sensehat",
		},
	}
}

func clientSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnv replaces ${VAR} with the variable's value. Unset variables
// are left in place so Validate can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// Load reads path over Defaults() and validates the result. An empty path
// yields the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Parse(cfg, data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse overlays YAML data onto cfg. Keys missing from data keep cfg's values.
func Parse(cfg *Config, data []byte) error {
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

var validLogLevels = map[string]bool{
	"none": true, "off": true, "error": true, "warn": true, "warning": true, "info": true, "debug": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		fail("log_level must be one of none, error, warn, info, debug (got %q)", c.LogLevel)
	}

	switch strings.ToLower(c.Bus.Backend) {
	case "mqtt", "redis":
	default:
		fail("bus.backend must be mqtt or redis (got %q)", c.Bus.Backend)
	}
	if c.Bus.Host == "" {
		fail("bus.host is required")
	}
	if c.Bus.Port <= 0 || c.Bus.Port > 65535 {
		fail("bus.port out of range: %d", c.Bus.Port)
	}
	if c.Bus.QoS < 0 || c.Bus.QoS > 2 {
		fail("bus.qos must be 0, 1 or 2 (got %d)", c.Bus.QoS)
	}

	for name, topic := range map[string]string{
		"message": c.Topics.Message, "command": c.Topics.Command,
		"sensors": c.Topics.Sensors, "joystick": c.Topics.Joystick,
	} {
		if topic == "" {
			fail("topics.%s is required", name)
		}
	}

	switch strings.ToLower(c.Display.Driver) {
	case "", "sensehat", "sense-hat", "virtual", "memory":
	default:
		fail("display.driver must be sensehat or virtual (got %q)", c.Display.Driver)
	}
	switch c.Display.DefaultRotation {
	case 0, 90, 180, 270:
	default:
		fail("display.default_rotation must be 0, 90, 180 or 270 (got %d)", c.Display.DefaultRotation)
	}
	for name, color := range map[string][]int{
		"default_color": c.Display.DefaultColor, "error_color": c.Display.ErrorColor,
		"success_color": c.Display.SuccessColor, "warning_color": c.Display.WarningColor,
	} {
		if err := checkColor(color); err != nil {
			fail("display.%s: %v", name, err)
		}
	}

	if c.Audio.DefaultVolume < 0 || c.Audio.DefaultVolume > 100 {
		fail("audio.default_volume must be within 0-100 (got %d)", c.Audio.DefaultVolume)
	}

	if c.Sensors.PublishInterval <= 0 {
		fail("sensors.publish_interval must be positive")
	}
	if c.Sensors.Timeout <= 0 {
		fail("sensors.timeout must be positive")
	}

	if c.API.Enabled && c.API.Listen == "" {
		fail("api.listen is required when the api is enabled")
	}

	if c.Influx.Enabled {
		if c.Influx.URL == "" {
			fail("influx.url is required when influx is enabled")
		}
		if c.Influx.Bucket == "" {
			fail("influx.bucket is required when influx is enabled")
		}
	}

	for field, value := range map[string]string{
		"bus.username": c.Bus.Username, "bus.password": c.Bus.Password, "influx.token": c.Influx.Token,
	} {
		if m := envVarPattern.FindStringSubmatch(value); m != nil {
			fail("%s: environment variable ${%s} is not set", field, m[1])
		}
	}

	return errors.Join(errs...)
}

func checkColor(c []int) error {
	if len(c) != 3 {
		return fmt.Errorf("want 3 components, got %d", len(c))
	}
	for _, v := range c {
		if v < 0 || v > 255 {
			return fmt.Errorf("component %d out of range 0-255", v)
		}
	}
	return nil
}

// RGB returns a validated color as a fixed triple.
func RGB(c []int) [3]int {
	var out [3]int
	copy(out[:], c)
	return out
}
