// Package sensors reads the environmental and motion sensors through a
// short-lived helper command.
package sensors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/grego360/sense-hat-mqtt/logging"
)

type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Orientation struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Sample is one reading. It is published verbatim.
type Sample struct {
	Temperature   float64     `json:"temperature"`
	Humidity      float64     `json:"humidity"`
	Pressure      float64     `json:"pressure"`
	Orientation   Orientation `json:"orientation"`
	Accelerometer *Vector     `json:"accelerometer,omitempty"`
	Gyroscope     *Vector     `json:"gyroscope,omitempty"`
	Magnetometer  *Vector     `json:"magnetometer,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

type Reader interface {
	Read(ctx context.Context) (Sample, error)
}

// ReadError is returned for a helper that fails, times out or prints
// something that is not a reading.
type ReadError struct {
	Output string
	Err    error
}

func (e *ReadError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("read sensors: %v (output %q)", e.Err, e.Output)
	}
	return fmt.Sprintf("read sensors: %v", e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

const helperScript = `import json
from sense_hat import SenseHat
s = SenseHat()
o = s.get_orientation_degrees()
a = s.get_accelerometer_raw()
g = s.get_gyroscope_raw()
m = s.get_compass_raw()
print(json.dumps({
    "temperature": s.get_temperature(),
    "humidity": s.get_humidity(),
    "pressure": s.get_pressure(),
    "orientation": {"roll": o["roll"], "pitch": o["pitch"], "yaw": o["yaw"]},
    "accelerometer": a,
    "gyroscope": g,
    "magnetometer": m,
}))
`

// DefaultCommand prints one JSON reading.
var DefaultCommand = []string{"python3", "-c", helperScript}

const DefaultTimeout = 10 * time.Second

// CommandReader runs a helper command per reading.
type CommandReader struct {
	command []string
	timeout time.Duration
	logger  logging.Logger
}

func NewCommandReader(command []string, timeout time.Duration, logger logging.Logger) *CommandReader {
	if len(command) == 0 {
		command = DefaultCommand
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandReader{
		command: command,
		timeout: timeout,
		logger:  logging.OrNop(logger),
	}
}

// Read runs the helper and parses its output. The timestamp is left zero.
func (r *CommandReader) Read(ctx context.Context) (Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		r.logger.Warn("Sensor helper stderr: %s", msg)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return Sample{}, &ReadError{Output: strings.TrimSpace(stdout.String()), Err: err}
	}

	sample, err := Parse(stdout.Bytes())
	if err != nil {
		return Sample{}, err
	}
	r.logger.Debug("Read sensor data: temp=%.2f°C, humidity=%.2f%%, pressure=%.2fhPa",
		sample.Temperature, sample.Humidity, sample.Pressure)
	return sample, nil
}

type rawSample struct {
	Temperature   *float64     `json:"temperature"`
	Humidity      *float64     `json:"humidity"`
	Pressure      *float64     `json:"pressure"`
	Orientation   *Orientation `json:"orientation"`
	Accelerometer *Vector      `json:"accelerometer"`
	Gyroscope     *Vector      `json:"gyroscope"`
	Magnetometer  *Vector      `json:"magnetometer"`
}

// Parse accepts either a JSON reading or the legacy
// "<temperature> <humidity> <pressure>" line.
func Parse(out []byte) (Sample, error) {
	text := strings.TrimSpace(string(out))
	if text == "" {
		return Sample{}, &ReadError{Err: errors.New("empty output")}
	}

	var sample Sample
	if strings.HasPrefix(text, "{") {
		var raw rawSample
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return Sample{}, &ReadError{Output: text, Err: err}
		}
		if raw.Temperature == nil || raw.Humidity == nil || raw.Pressure == nil {
			return Sample{}, &ReadError{Output: text, Err: errors.New("missing temperature, humidity or pressure")}
		}
		sample = Sample{
			Temperature:   *raw.Temperature,
			Humidity:      *raw.Humidity,
			Pressure:      *raw.Pressure,
			Accelerometer: raw.Accelerometer,
			Gyroscope:     raw.Gyroscope,
			Magnetometer:  raw.Magnetometer,
		}
		if raw.Orientation != nil {
			sample.Orientation = *raw.Orientation
		}
	} else {
		fields := strings.Fields(text)
		if len(fields) != 3 {
			return Sample{}, &ReadError{Output: text, Err: fmt.Errorf("expected 3 values, got %d", len(fields))}
		}
		var values [3]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return Sample{}, &ReadError{Output: text, Err: err}
			}
			values[i] = v
		}
		sample = Sample{Temperature: values[0], Humidity: values[1], Pressure: values[2]}
	}

	for _, v := range []float64{sample.Temperature, sample.Humidity, sample.Pressure} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, &ReadError{Output: text, Err: errors.New("non-finite reading")}
		}
	}

	sample.Temperature = Round2(sample.Temperature)
	sample.Humidity = Round2(sample.Humidity)
	sample.Pressure = Round2(sample.Pressure)
	return sample, nil
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
