package telemetry

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the canonical timestamp format. Values are always UTC,
// so the trailing Z is written literally.
const TimestampLayout = "2006-01-02T15:04:05.999999Z"

// Point is a normalised telemetry record.
//
// A Point is built once by Normalize and then treated as immutable. Raw is the
// original payload; callers must not modify it.
type Point struct {
	DeviceID  string         `json:"device_id"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Speed     float64        `json:"speed"`
	Timestamp string         `json:"timestamp"`
	Raw       map[string]any `json:"raw"`
}

// Ignition reports the ignition flag carried in the raw payload.
//
// Accepted encodings are a JSON boolean, a non-zero number, or a string such
// as "true", "1" or "on". Anything else, including absence, reads as off.
func (p Point) Ignition() bool {
	v, ok := p.Raw["ignition"]
	if !ok || v == nil {
		return false
	}

	switch x := v.(type) {
	case bool:
		return x
	case string:
		s := strings.TrimSpace(x)
		if strings.EqualFold(s, "on") {
			return true
		}
		b, err := strconv.ParseBool(s)
		return err == nil && b
	default:
		f, ok := toFloat(x)
		return ok && f != 0
	}
}

// Time parses the canonical timestamp.
func (p Point) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, p.Timestamp)
}

// MarshalIndent returns the point as indented JSON, the same encoding used
// for the persisted store image.
func (p Point) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// FormatTime renders t in the canonical timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
