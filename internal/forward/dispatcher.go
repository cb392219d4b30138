package forward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// Defaults applied when Options leaves a field unset.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
	DefaultTimeout   = 15 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	Workers   int
	QueueSize int

	// Timeout bounds each individual sink push.
	Timeout time.Duration

	// Tracker, if set, records successful pushes.
	Tracker *SyncTracker

	Logger Logger
}

// Job is one queued point.
type Job struct {
	ID       string
	Point    telemetry.Point
	Enqueued time.Time
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Sinks     []string `json:"sinks"`
	Queued    int      `json:"queued"`
	Capacity  int      `json:"capacity"`
	Submitted int64    `json:"submitted"`
	Dropped   int64    `json:"dropped"`
	Delivered int64    `json:"delivered"`
	Failed    int64    `json:"failed"`
}

// Dispatcher fans points out to sinks from a bounded queue.
//
// Thread Safety:
//   - Submit, Stats and Close are safe for concurrent use.
//   - Jobs may be delivered in any order across workers.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Job
	timeout time.Duration
	tracker *SyncTracker
	logger  Logger

	// mu guards closed and the queue channel against send-after-close.
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	submitted atomic.Int64
	dropped   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewDispatcher starts the worker pool.
//
// Parameters:
//   - sinks: Targets every point is pushed to; may be empty
//   - opts: Pool sizing, timeout, tracker and logger
//
// Returns:
//   - *Dispatcher: Running dispatcher; call Close to stop it
func NewDispatcher(sinks []Sink, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sinks:   append([]Sink(nil), sinks...),
		queue:   make(chan Job, opts.QueueSize),
		timeout: opts.Timeout,
		tracker: opts.Tracker,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Submit queues p for forwarding without blocking.
//
// Returns:
//   - error: ErrQueueFull if the job was dropped, ErrClosed after Close
func (d *Dispatcher) Submit(p telemetry.Point) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	if len(d.sinks) == 0 {
		return nil
	}

	job := Job{ID: uuid.NewString(), Point: p, Enqueued: time.Now()}
	select {
	case d.queue <- job:
		d.submitted.Add(1)
		return nil
	default:
		d.dropped.Add(1)
		d.logger.Warn("forward queue full, dropping point",
			"job_id", job.ID,
			"device_id", p.DeviceID,
			"capacity", cap(d.queue),
		)
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		if d.ctx.Err() != nil {
			d.dropped.Add(1)
			continue
		}
		d.deliver(job)
	}
}

// deliver pushes one job to every sink in turn.
func (d *Dispatcher) deliver(job Job) {
	for _, sink := range d.sinks {
		if err := d.push(sink, job.Point); err != nil {
			d.failed.Add(1)
			d.logger.Warn("forward failed",
				"job_id", job.ID,
				"sink", sink.Name(),
				"device_id", job.Point.DeviceID,
				"error", err,
			)
			continue
		}

		d.delivered.Add(1)
		if d.tracker != nil {
			d.tracker.MarkSynced(sink.Name(), job.Point)
		}
		d.logger.Debug("forwarded",
			"job_id", job.ID,
			"sink", sink.Name(),
			"device_id", job.Point.DeviceID,
			"queued_for", time.Since(job.Enqueued),
		)
	}
}

func (d *Dispatcher) push(sink Sink, p telemetry.Point) (err error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()

	return sink.Push(ctx, p)
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return Stats{
		Sinks:     names,
		Queued:    len(d.queue),
		Capacity:  cap(d.queue),
		Submitted: d.submitted.Load(),
		Dropped:   d.dropped.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
	}
}

// Close stops intake and waits for queued jobs to drain.
//
// If ctx expires first, in-flight pushes are cancelled and the remaining
// queue is abandoned. Sinks that implement Close() error are closed once
// the workers have stopped. Close is idempotent.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var drainErr error
	select {
	case <-done:
	case <-ctx.Done():
		d.cancel()
		<-done
		drainErr = fmt.Errorf("forward drain: %w", ctx.Err())
	}
	d.cancel()

	var closeErrs []error
	for _, s := range d.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				closeErrs = append(closeErrs, fmt.Errorf("closing sink %s: %w", s.Name(), err))
			}
		}
	}

	return errors.Join(append([]error{drainErr}, closeErrs...)...)
}
