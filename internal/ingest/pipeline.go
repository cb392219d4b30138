package ingest

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// Appender is the store surface the pipeline writes to.
type Appender interface {
	Append(ctx context.Context, p telemetry.Point) error
}

// Submitter is the forwarding surface. Submit must not block.
type Submitter interface {
	Submit(p telemetry.Point) error
}

// Observer is notified of every stored point.
type Observer func(p telemetry.Point)

// Logger is the logging surface used by the pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Pipeline.
type Options struct {
	// Forwarder may be nil when nothing is forwarded.
	Forwarder Submitter

	// Now is the clock for points without a usable timestamp.
	Now func() time.Time

	Logger Logger
}

// Stats counts pipeline outcomes.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Invalid  int64 `json:"invalid"`
	Failed   int64 `json:"failed"`
}

// Pipeline ingests raw device payloads.
type Pipeline struct {
	store     Appender
	forwarder Submitter
	now       func() time.Time
	logger    Logger

	obsMu     sync.RWMutex
	observers []Observer

	accepted atomic.Int64
	rejected atomic.Int64
	invalid  atomic.Int64
	failed   atomic.Int64
}

// New returns a pipeline writing to store.
func New(store Appender, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Pipeline{
		store:     store,
		forwarder: opts.Forwarder,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// OnStored registers an observer for stored points.
func (p *Pipeline) OnStored(obs Observer) {
	p.obsMu.Lock()
	p.observers = append(p.observers, obs)
	p.obsMu.Unlock()
}

// Ingest normalises raw and, if accepted, stores and forwards it.
//
// Returns:
//   - telemetry.Point: The stored point (zero on rejection or failure)
//   - *telemetry.Rejection: Non-nil when the payload lacks required fields;
//     nothing is stored
//   - error: Store failure, returned as-is from Append
func (p *Pipeline) Ingest(ctx context.Context, raw map[string]any) (telemetry.Point, *telemetry.Rejection, error) {
	point, rej := telemetry.Normalize(raw, p.now)
	if rej != nil {
		p.rejected.Add(1)
		p.logger.Debug("payload rejected", "reason", rej.String())
		return telemetry.Point{}, rej, nil
	}

	if err := p.store.Append(ctx, point); err != nil {
		p.failed.Add(1)
		return telemetry.Point{}, nil, err
	}
	p.accepted.Add(1)

	if p.forwarder != nil {
		// Drops are logged by the dispatcher.
		_ = p.forwarder.Submit(point)
	}

	p.obsMu.RLock()
	observers := p.observers
	p.obsMu.RUnlock()
	for _, obs := range observers {
		obs(point)
	}

	return point, nil, nil
}

// IngestPayload decodes a JSON body, unwraps it and ingests the result.
// Undecodable bodies return an error wrapping ErrInvalidPayload.
func (p *Pipeline) IngestPayload(ctx context.Context, payload []byte) (telemetry.Point, *telemetry.Rejection, error) {
	decoded, err := telemetry.Decode(bytes.NewReader(payload))
	if err != nil {
		p.invalid.Add(1)
		return telemetry.Point{}, nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	raw, ok := telemetry.Unwrap(decoded)
	if !ok {
		p.invalid.Add(1)
		return telemetry.Point{}, nil, fmt.Errorf("%w: no object to normalise", ErrInvalidPayload)
	}

	return p.Ingest(ctx, raw)
}

// MessageHandler adapts the pipeline to an MQTT subscription. Rejections
// and failures come back as errors so the subscriber logs them.
func (p *Pipeline) MessageHandler(ctx context.Context) func(topic string, payload []byte) error {
	return func(topic string, payload []byte) error {
		point, rej, err := p.IngestPayload(ctx, payload)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", topic, err)
		}
		if rej != nil {
			return fmt.Errorf("%w: %s from %s", ErrRejected, rej.String(), topic)
		}
		p.logger.Debug("stored point from mqtt", "topic", topic, "device_id", point.DeviceID)
		return nil
	}
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Accepted: p.accepted.Load(),
		Rejected: p.rejected.Load(),
		Invalid:  p.invalid.Load(),
		Failed:   p.failed.Load(),
	}
}
