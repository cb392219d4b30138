package store

import (
	"context"

	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// DefaultMaxPoints is the per-device log bound used when Options leaves it unset.
const DefaultMaxPoints = 1000

// Image is the whole persisted state. Logs are newest-first.
//
// The JSON encoding is the on-disk document of the file backend:
//
//	{"latest": {device_id: Point}, "logs": {device_id: [Point, ...]}}
type Image struct {
	Latest map[string]telemetry.Point   `json:"latest"`
	Logs   map[string][]telemetry.Point `json:"logs"`
}

// NewImage returns an empty image with both maps allocated.
func NewImage() *Image {
	return &Image{
		Latest: make(map[string]telemetry.Point),
		Logs:   make(map[string][]telemetry.Point),
	}
}

// Change describes one accepted append, handed to Backend.Commit.
type Change struct {
	// Point is the point just appended.
	Point telemetry.Point

	// Image is the full state after the append. It is only valid for the
	// duration of the Commit call and must not be modified or retained.
	Image *Image

	// MaxPoints is the per-device bound in force.
	MaxPoints int
}

// Backend is the durable medium behind a Store.
//
// Commit is called with the store lock held, once per append, and must not
// return until the change is durable.
type Backend interface {
	// Load returns the previously persisted image, or ErrNoImage.
	Load(ctx context.Context) (*Image, error)

	// Commit makes a change durable.
	Commit(ctx context.Context, c Change) error

	// Close releases backend resources.
	Close() error
}

// Trail is a device's recent track for map rendering.
type Trail struct {
	// Points is oldest-first, ending with the latest point.
	Points []telemetry.Point
	Latest telemetry.Point
}

// Stats summarises store contents and activity.
type Stats struct {
	Devices         int    `json:"devices"`
	Points          int    `json:"points"`
	MaxPoints       int    `json:"max_points_per_device"`
	Appends         uint64 `json:"appends"`
	PersistFailures uint64 `json:"persist_failures"`
}

// Options configures a Store.
type Options struct {
	// MaxPoints bounds each device's log. Zero means DefaultMaxPoints.
	MaxPoints int

	// Logger receives load and persistence diagnostics. Nil discards them.
	Logger Logger
}

// Logger defines the logging interface used by the store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
