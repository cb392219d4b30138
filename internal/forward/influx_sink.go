package forward

import (
	"context"
	"time"

	"github.com/nerrad567/jimi-tracker/internal/infrastructure/influxdb"
	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// FixWriter is the part of *influxdb.Client the InfluxDB sink needs.
type FixWriter interface {
	WriteFix(f influxdb.Fix) error
}

// InfluxSink mirrors points into the gps measurement.
type InfluxSink struct {
	w FixWriter
}

// NewInfluxSink returns a sink writing through w.
func NewInfluxSink(w FixWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Push implements Sink. The write is batched by the client, so Push
// returns as soon as the fix is buffered.
func (s *InfluxSink) Push(ctx context.Context, p telemetry.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ts, err := p.Time()
	if err != nil {
		ts = time.Now().UTC()
	}

	return s.w.WriteFix(influxdb.Fix{
		DeviceID:  p.DeviceID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Speed:     p.Speed,
		Ignition:  p.Ignition(),
		Time:      ts,
	})
}
