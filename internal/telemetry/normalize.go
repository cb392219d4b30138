package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field aliases, in priority order. Keys are case-sensitive.
var (
	DeviceIDKeys  = []string{"imei", "deviceId", "DeviceId", "device_id", "imei_code", "id"}
	LatitudeKeys  = []string{"lat", "latitude", "Lat"}
	LongitudeKeys = []string{"lon", "lng", "longitude", "Lon"}
	SpeedKeys     = []string{"speed", "spd", "velocity"}
	TimestampKeys = []string{"gpstime", "time", "timestamp", "date"}
)

// Epoch values at or above this are taken to be milliseconds.
const epochMillisThreshold = 1e12

// ISO-8601 shapes accepted for string timestamps. Layouts without a zone
// parse as UTC. Fractional seconds are accepted after any seconds field.
var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Normalize converts a raw payload into a canonical Point.
//
// Each canonical field is taken from the first alias present with a
// non-null, non-blank value. A present zero (for example "speed": 0) is a
// real value and stops the search.
//
// Parameters:
//   - raw: Decoded payload object; it becomes Point.Raw unchanged
//   - now: Clock used when no usable timestamp is present (nil means time.Now)
//
// Returns:
//   - Point: The canonical record, valid only when the rejection is nil
//   - *Rejection: Non-nil if device_id or either coordinate is unresolved
func Normalize(raw map[string]any, now func() time.Time) (Point, *Rejection) {
	if now == nil {
		now = time.Now
	}

	deviceID := ""
	if v, ok := lookup(raw, DeviceIDKeys); ok {
		deviceID = toDeviceID(v)
	}
	if deviceID == "" {
		return Point{}, reject(ReasonMissingDeviceID)
	}

	lat, latOK := resolveFloat(raw, LatitudeKeys)
	lon, lonOK := resolveFloat(raw, LongitudeKeys)
	if !latOK || !lonOK {
		return Point{}, reject(ReasonMissingCoordinates)
	}

	speed, ok := resolveFloat(raw, SpeedKeys)
	if !ok {
		speed = 0
	}

	return Point{
		DeviceID:  deviceID,
		Latitude:  lat,
		Longitude: lon,
		Speed:     speed,
		Timestamp: resolveTimestamp(raw, now),
		Raw:       raw,
	}, nil
}

// lookup returns the value of the first alias that is present and usable.
func lookup(raw map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func resolveFloat(raw map[string]any, keys []string) (float64, bool) {
	v, ok := lookup(raw, keys)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func resolveTimestamp(raw map[string]any, now func() time.Time) string {
	v, ok := lookup(raw, TimestampKeys)
	if !ok {
		return FormatTime(now())
	}

	if s, isString := v.(string); isString {
		if t, ok := parseTimestamp(s); ok {
			return FormatTime(t)
		}
		return FormatTime(now())
	}

	if f, ok := toFloat(v); ok {
		if t, ok := fromEpoch(f); ok {
			return FormatTime(t)
		}
	}
	return FormatTime(now())
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Epoch seconds that still render as a four-digit year.
var (
	minEpochSeconds = float64(time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	maxEpochSeconds = float64(time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC).Unix())
)

// fromEpoch converts epoch seconds or milliseconds. Values outside years
// 0001 to 9999 are refused.
func fromEpoch(f float64) (time.Time, bool) {
	if math.Abs(f) >= epochMillisThreshold {
		f /= 1000
	}
	if f < minEpochSeconds || f > maxEpochSeconds {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC(), true
}

// toFloat coerces JSON numbers, Go numeric types and numeric strings.
// Non-finite results are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toDeviceID renders an identifier. Numbers keep their exact decimal text so
// a 15-digit IMEI is not mangled into exponent form.
func toDeviceID(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	default:
		return ""
	}
}
