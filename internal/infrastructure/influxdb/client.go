package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/jimi-tracker/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	fallbackBatchSize    = 100
	fallbackFlushSeconds = 10
)

var errUnhealthy = errors.New("server reports unhealthy")

// Client records GPS fixes through the non-blocking, batched write API.
//
// All methods are safe for concurrent use. A zero Client behaves as a
// closed one.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	open atomic.Bool

	onErrorMu sync.RWMutex
	onError   func(err error)

	written     atomic.Uint64
	writeErrors atomic.Uint64
}

// Stats counts fixes handed to the write API and batches it failed to send.
type Stats struct {
	Written     uint64 `json:"written"`
	WriteErrors uint64 `json:"write_errors"`
}

// Connect pings the server and starts a batching writer for cfg.Org and
// cfg.Bucket. The ping is bounded by ctx and by a short internal timeout.
//
// Returns ErrDisabled when the section is switched off and an error wrapping
// ErrConnectionFailed when the server cannot be reached or is unhealthy.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch, flush := writeSettings(cfg)
	opts := influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(flush)
	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	if err := ping(ctx, raw); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:   raw,
		writeAPI: raw.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
	}
	c.open.Store(true)

	go c.drainErrors(c.writeAPI.Errors())
	return c, nil
}

// writeSettings returns the batch size and the flush interval in
// milliseconds, substituting fallbacks for non-positive config values.
func writeSettings(cfg config.InfluxDBConfig) (batch, flushMillis uint) {
	batch = fallbackBatchSize
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	seconds := fallbackFlushSeconds
	if cfg.FlushInterval > 0 {
		seconds = cfg.FlushInterval
	}
	return batch, uint(time.Duration(seconds) * time.Second / time.Millisecond) // #nosec G115 -- seconds is positive
}

func ping(ctx context.Context, raw influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := raw.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errUnhealthy
	}
	return nil
}

func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)

		c.onErrorMu.RLock()
		cb := c.onError
		c.onErrorMu.RUnlock()
		if cb != nil {
			cb(err)
		}
	}
}

// SetOnError registers the callback for failed batches. Writes return before
// the batch is sent, so this is the only place such failures appear.
func (c *Client) SetOnError(cb func(err error)) {
	c.onErrorMu.Lock()
	c.onError = cb
	c.onErrorMu.Unlock()
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Stats returns the write counters.
func (c *Client) Stats() Stats {
	return Stats{
		Written:     c.written.Load(),
		WriteErrors: c.writeErrors.Load(),
	}
}

// Flush sends buffered fixes and waits for the batch. No-op once closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// Close flushes pending fixes and releases the client. Calling it again,
// or on a zero Client, does nothing.
func (c *Client) Close() error {
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
