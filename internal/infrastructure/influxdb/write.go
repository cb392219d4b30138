package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the tracker.
const (
	MeasurementGPS = "gps"
)

// Fix is one GPS fix in the shape written to the gps measurement.
type Fix struct {
	DeviceID  string
	Latitude  float64
	Longitude float64
	Speed     float64
	Ignition  bool
	Time      time.Time
}

// NewFixPoint builds the line-protocol point for a fix.
//
// The device ID is the only tag; everything else is a field so a device
// keeps one series regardless of how its values vary.
func NewFixPoint(f Fix) *write.Point {
	return write.NewPoint(
		MeasurementGPS,
		map[string]string{
			"device_id": f.DeviceID,
		},
		map[string]interface{}{
			"latitude":  f.Latitude,
			"longitude": f.Longitude,
			"speed":     f.Speed,
			"ignition":  f.Ignition,
		},
		f.Time,
	)
}

// WriteFix writes a GPS fix at the fix's own timestamp.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Failures surface through the SetOnError callback.
//
// Parameters:
//   - f: The fix to record
//
// Returns:
//   - error: ErrNotConnected after Close, nil otherwise
func (c *Client) WriteFix(f Fix) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.writeAPI.WritePoint(NewFixPoint(f))
	c.written.Add(1)
	return nil
}
