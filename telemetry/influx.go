package telemetry

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/grego360/sense-hat-mqtt/sensors"
)

const InfluxMeasurement = "sensehat"

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	Device string
}

// InfluxSink writes each reading as one point.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	device   string
}

func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		device:   cfg.Device,
	}
}

func (s *InfluxSink) Write(ctx context.Context, sample sensors.Sample) error {
	p := influxdb2.NewPoint(
		InfluxMeasurement,
		map[string]string{"device": s.device},
		sampleFields(sample),
		sample.Timestamp,
	)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) Close() {
	s.client.Close()
}

func sampleFields(sample sensors.Sample) map[string]interface{} {
	fields := map[string]interface{}{
		"temperature": sample.Temperature,
		"humidity":    sample.Humidity,
		"pressure":    sample.Pressure,
		"roll":        sample.Orientation.Roll,
		"pitch":       sample.Orientation.Pitch,
		"yaw":         sample.Orientation.Yaw,
	}
	addVector(fields, "accel", sample.Accelerometer)
	addVector(fields, "gyro", sample.Gyroscope)
	addVector(fields, "mag", sample.Magnetometer)
	return fields
}

func addVector(fields map[string]interface{}, prefix string, v *sensors.Vector) {
	if v == nil {
		return
	}
	fields[prefix+"_x"] = v.X
	fields[prefix+"_y"] = v.Y
	fields[prefix+"_z"] = v.Z
}
