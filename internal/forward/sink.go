package forward

import (
	"context"

	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// Sink is a forwarding target.
type Sink interface {
	// Name identifies the sink in logs, metrics and the sync tracker.
	Name() string

	// Push delivers one point. It must honour ctx cancellation.
	Push(ctx context.Context, p telemetry.Point) error
}

// Logger is the logging surface used by the dispatcher.
// logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
