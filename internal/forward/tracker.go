package forward

import (
	"sync"
	"time"

	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// recentPerDevice bounds how many delivered points are remembered per sink
// and device. Workers can finish out of order, so the latest stored point
// is not always the last one marked.
const recentPerDevice = 8

type syncKey struct {
	sink   string
	device string
}

// pointID identifies a stored point. Raw is left out; two pushes with the
// same normalised fields are treated as the same fix.
type pointID struct {
	timestamp string
	lat, lon  float64
	speed     float64
}

func idOf(p telemetry.Point) pointID {
	return pointID{timestamp: p.Timestamp, lat: p.Latitude, lon: p.Longitude, speed: p.Speed}
}

type syncState struct {
	newest time.Time
	recent [recentPerDevice]pointID
	n      int // total marks, recent is a ring indexed by n % len
}

func (s *syncState) has(id pointID) bool {
	for i := 0; i < min(s.n, recentPerDevice); i++ {
		if s.recent[i] == id {
			return true
		}
	}
	return false
}

// SyncTracker remembers, per sink and device, which points the sink accepted
// and the timestamp of the newest one.
type SyncTracker struct {
	mu    sync.RWMutex
	state map[syncKey]*syncState
}

// NewSyncTracker returns an empty tracker.
func NewSyncTracker() *SyncTracker {
	return &SyncTracker{state: make(map[syncKey]*syncState)}
}

// MarkSynced records that sink accepted p. An older point delivered late
// does not move LastSynced backwards.
func (t *SyncTracker) MarkSynced(sink string, p telemetry.Point) {
	ts, err := p.Time()
	if err != nil {
		return
	}
	k := syncKey{sink: sink, device: p.DeviceID}
	id := idOf(p)

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.state[k]
	if !ok {
		s = &syncState{}
		t.state[k] = s
	}
	if ts.After(s.newest) {
		s.newest = ts
	}
	if !s.has(id) {
		s.recent[s.n%recentPerDevice] = id
		s.n++
	}
}

// LastSynced returns the timestamp of the newest point sink accepted for
// the device.
func (t *SyncTracker) LastSynced(sink, deviceID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.state[syncKey{sink: sink, device: deviceID}]
	if !ok {
		return time.Time{}, false
	}
	return s.newest, true
}

// Synced reports whether sink accepted this exact point. A newer point
// having been delivered does not count.
func (t *SyncTracker) Synced(sink string, p telemetry.Point) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.state[syncKey{sink: sink, device: p.DeviceID}]
	return ok && s.has(idOf(p))
}
