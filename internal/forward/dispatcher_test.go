package forward

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

func testPoint(id, ts string) telemetry.Point {
	return telemetry.Point{
		DeviceID:  id,
		Latitude:  -1.29,
		Longitude: 36.82,
		Timestamp: ts,
		Raw:       map[string]any{"imei": id},
	}
}

// recordingSink remembers every point it receives.
type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	points []telemetry.Point
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Push(_ context.Context, p telemetry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) received() []telemetry.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telemetry.Point(nil), s.points...)
}

// blockingSink holds each push until released or its context ends.
type blockingSink struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingSink() *blockingSink {
	return &blockingSink{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Push(ctx context.Context, _ telemetry.Point) error {
	s.started <- struct{}{}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type panicSink struct{}

func (panicSink) Name() string { return "panic" }

func (panicSink) Push(context.Context, telemetry.Point) error { panic("boom") }

func TestDispatcher_DeliversToEverySink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	tracker := NewSyncTracker()

	d := NewDispatcher([]Sink{a, b}, Options{Workers: 2, QueueSize: 8, Tracker: tracker})
	for _, ts := range []string{"2026-01-01T00:00:01Z", "2026-01-01T00:00:02Z"} {
		require.NoError(t, d.Submit(testPoint("3345689", ts)))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, a.received(), 2)
	assert.Len(t, b.received(), 2)
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	stats := d.Stats()
	assert.Equal(t, []string{"a", "b"}, stats.Sinks)
	assert.Equal(t, int64(2), stats.Submitted)
	assert.Equal(t, int64(4), stats.Delivered)
	assert.Zero(t, stats.Failed)

	assert.True(t, tracker.Synced("a", testPoint("3345689", "2026-01-01T00:00:02Z")))
	last, ok := tracker.LastSynced("b", "3345689")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC), last)
}

func TestDispatcher_FailingSinkDoesNotStopOthers(t *testing.T) {
	bad := &recordingSink{name: "erpnext", err: errors.New("503 Service Unavailable")}
	good := &recordingSink{name: "mqtt"}
	tracker := NewSyncTracker()

	d := NewDispatcher([]Sink{bad, good}, Options{Workers: 1, Tracker: tracker})
	p := testPoint("dev", "2026-01-01T00:00:00Z")
	require.NoError(t, d.Submit(p))
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, good.received(), 1)
	assert.Equal(t, int64(1), d.Stats().Failed)
	assert.Equal(t, int64(1), d.Stats().Delivered)
	assert.False(t, tracker.Synced("erpnext", p))
	assert.True(t, tracker.Synced("mqtt", p))
}

func TestDispatcher_SubmitNeverBlocks(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher([]Sink{sink}, Options{Workers: 1, QueueSize: 1})

	require.NoError(t, d.Submit(testPoint("dev", "2026-01-01T00:00:01Z")))
	<-sink.started // the worker holds the first job

	require.NoError(t, d.Submit(testPoint("dev", "2026-01-01T00:00:02Z")))

	done := make(chan error, 1)
	go func() { done <- d.Submit(testPoint("dev", "2026-01-01T00:00:03Z")) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
	assert.Equal(t, int64(1), d.Stats().Dropped)

	close(sink.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int64(2), d.Stats().Delivered)
}

func TestDispatcher_PerSinkTimeout(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher([]Sink{sink}, Options{Workers: 1, Timeout: 20 * time.Millisecond})

	require.NoError(t, d.Submit(testPoint("dev", "2026-01-01T00:00:00Z")))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int64(1), d.Stats().Failed)
	assert.Zero(t, d.Stats().Delivered)
}

func TestDispatcher_CloseDeadlineCancelsInFlight(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher([]Sink{sink}, Options{Workers: 1, Timeout: time.Minute})

	require.NoError(t, d.Submit(testPoint("dev", "2026-01-01T00:00:01Z")))
	<-sink.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), d.Stats().Failed)
}

func TestDispatcher_RecoversSinkPanic(t *testing.T) {
	after := &recordingSink{name: "after"}
	d := NewDispatcher([]Sink{panicSink{}, after}, Options{Workers: 1})

	require.NoError(t, d.Submit(testPoint("dev", "2026-01-01T00:00:00Z")))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int64(1), d.Stats().Failed)
	assert.Len(t, after.received(), 1)
}

func TestDispatcher_Closed(t *testing.T) {
	d := NewDispatcher([]Sink{&recordingSink{name: "a"}}, Options{})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.ErrorIs(t, d.Submit(testPoint("dev", "2026-01-01T00:00:00Z")), ErrClosed)
}

func TestDispatcher_NoSinks(t *testing.T) {
	d := NewDispatcher(nil, Options{})
	assert.NoError(t, d.Submit(testPoint("dev", "2026-01-01T00:00:00Z")))
	assert.Zero(t, d.Stats().Submitted)
	require.NoError(t, d.Close(context.Background()))
}

func TestSyncTracker_NeverMovesBackwards(t *testing.T) {
	tracker := NewSyncTracker()
	newer := testPoint("dev", "2026-01-01T00:00:05.5Z")
	older := testPoint("dev", "2026-01-01T00:00:05Z")

	tracker.MarkSynced("erpnext", newer)
	tracker.MarkSynced("erpnext", older)

	assert.True(t, tracker.Synced("erpnext", newer))
	assert.True(t, tracker.Synced("erpnext", older))
	assert.False(t, tracker.Synced("erpnext", testPoint("dev", "2026-01-01T00:00:06Z")))
	assert.False(t, tracker.Synced("kafka", newer))
	assert.False(t, tracker.Synced("erpnext", testPoint("other", "2026-01-01T00:00:05Z")))

	last, ok := tracker.LastSynced("erpnext", "dev")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 5, 500_000_000, time.UTC), last)
}

func TestSyncTracker_LateOlderPointNotSynced(t *testing.T) {
	tracker := NewSyncTracker()
	tracker.MarkSynced("erpnext", testPoint("dev", "2026-01-01T00:00:10Z"))

	// A late push carrying an older gpstime becomes the latest stored point
	// but has not reached the sink.
	late := testPoint("dev", "2026-01-01T00:00:03Z")
	assert.False(t, tracker.Synced("erpnext", late))

	moved := testPoint("dev", "2026-01-01T00:00:10Z")
	moved.Latitude = -1.3
	assert.False(t, tracker.Synced("erpnext", moved))

	tracker.MarkSynced("erpnext", late)
	assert.True(t, tracker.Synced("erpnext", late))
}

func TestSyncTracker_ForgetsOldestBeyondBound(t *testing.T) {
	tracker := NewSyncTracker()
	first := testPoint("dev", "2026-01-01T00:00:00Z")
	tracker.MarkSynced("erpnext", first)
	tracker.MarkSynced("erpnext", first)

	for i := 1; i < recentPerDevice; i++ {
		tracker.MarkSynced("erpnext", testPoint("dev", time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC).Format(time.RFC3339)))
	}
	assert.True(t, tracker.Synced("erpnext", first), "duplicate marks must not use a slot")

	tracker.MarkSynced("erpnext", testPoint("dev", "2026-01-01T00:01:00Z"))
	assert.False(t, tracker.Synced("erpnext", first))
	assert.True(t, tracker.Synced("erpnext", testPoint("dev", "2026-01-01T00:01:00Z")))
}
