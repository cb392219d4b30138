package erpnext

import (
	"context"
	"fmt"

	"github.com/nerrad567/jimi-tracker/internal/infrastructure/config"
	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// SinkName identifies the ERPNext sink to the dispatcher and sync tracker.
const SinkName = "erpnext"

// Sink forwards stored points to ERPNext.
type Sink struct {
	client *Client
	mode   string
}

// NewSink wraps client for forwarding in the given mode
// (config.ERPModeTelemetry or config.ERPModeGPSLog; empty means telemetry).
func NewSink(client *Client, mode string) (*Sink, error) {
	switch mode {
	case "":
		mode = config.ERPModeTelemetry
	case config.ERPModeTelemetry, config.ERPModeGPSLog:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	return &Sink{client: client, mode: mode}, nil
}

// Name implements forward.Sink.
func (s *Sink) Name() string { return SinkName }

// Mode returns the forwarding mode in force.
func (s *Sink) Mode() string { return s.mode }

// Push implements forward.Sink.
func (s *Sink) Push(ctx context.Context, p telemetry.Point) error {
	if s.mode == config.ERPModeTelemetry {
		return s.client.SendTelemetry(ctx, TelemetryFromPoint(p))
	}

	if err := s.client.CreateGPSLog(ctx, p); err != nil {
		return err
	}
	return s.client.UpsertVehicleLocation(ctx, p)
}
