package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// Store holds the latest point and a bounded newest-first log per device.
//
// Every Append is written through to the Backend before it returns, so an
// acknowledged point survives a crash. One mutex guards the whole store:
// the persisted image is a single unit, and per-device locking would not let
// two appends write it concurrently anyway.
//
// All public methods are thread-safe.
type Store struct {
	mu        sync.Mutex
	backend   Backend
	maxPoints int
	latest    map[string]telemetry.Point
	logs      map[string][]telemetry.Point
	appends   uint64
	failures  uint64
	closed    bool
	logger    Logger
}

// Open loads the prior image from backend and returns a ready Store.
//
// A missing or unreadable image is not fatal: the store starts empty and a
// warning is logged. Loaded logs are trimmed to MaxPoints and latest is
// rebuilt from the head of each log.
//
// Parameters:
//   - ctx: Context for the backend load
//   - backend: Durable medium; the Store takes ownership and closes it
//   - opts: Bound and logger
//
// Returns:
//   - *Store: Store ready for use
//   - error: Only if backend is nil
func Open(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	if backend == nil {
		return nil, errors.New("store backend is required")
	}

	s := &Store{
		backend:   backend,
		maxPoints: opts.MaxPoints,
		logger:    opts.Logger,
	}
	if s.maxPoints <= 0 {
		s.maxPoints = DefaultMaxPoints
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}

	img, err := backend.Load(ctx)
	switch {
	case errors.Is(err, ErrNoImage):
		s.logger.Info("no persisted telemetry found, starting empty")
		img = NewImage()
	case err != nil:
		s.logger.Warn("persisted telemetry unreadable, starting empty", "error", err)
		img = NewImage()
	}

	s.latest, s.logs = repair(img, s.maxPoints)
	s.logger.Info("telemetry store loaded", "devices", len(s.logs), "max_points", s.maxPoints)

	return s, nil
}

// repair enforces the log bound and the latest == log[0] invariant on a
// loaded image. Devices with only a latest entry get a one-point log.
func repair(img *Image, maxPoints int) (map[string]telemetry.Point, map[string][]telemetry.Point) {
	latest := make(map[string]telemetry.Point, len(img.Latest))
	logs := make(map[string][]telemetry.Point, len(img.Logs))

	for id, log := range img.Logs {
		if id == "" || len(log) == 0 {
			continue
		}
		if len(log) > maxPoints {
			log = log[:maxPoints]
		}
		logs[id] = log
		latest[id] = log[0]
	}

	for id, p := range img.Latest {
		if id == "" {
			continue
		}
		if _, ok := logs[id]; !ok {
			logs[id] = []telemetry.Point{p}
			latest[id] = p
		}
	}

	return latest, logs
}

// Append records p as the device's latest point and prepends it to the
// device's log, dropping the oldest entries beyond the bound.
//
// A point with an empty DeviceID is ignored. If the backend cannot make the
// change durable the in-memory state is restored and an error wrapping
// ErrPersistFailed is returned; the caller must treat the point as not
// accepted.
func (s *Store) Append(ctx context.Context, p telemetry.Point) error {
	if p.DeviceID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	id := p.DeviceID
	prevLog, hadLog := s.logs[id]
	prevLatest := s.latest[id]

	keep := min(len(prevLog), s.maxPoints-1)
	log := make([]telemetry.Point, 0, keep+1)
	log = append(log, p)
	log = append(log, prevLog[:keep]...)

	s.latest[id] = p
	s.logs[id] = log

	err := s.backend.Commit(ctx, Change{
		Point:     p,
		Image:     &Image{Latest: s.latest, Logs: s.logs},
		MaxPoints: s.maxPoints,
	})
	if err != nil {
		if hadLog {
			s.logs[id] = prevLog
			s.latest[id] = prevLatest
		} else {
			delete(s.logs, id)
			delete(s.latest, id)
		}
		s.failures++
		s.logger.Error("telemetry point not persisted", "device_id", id, "error", err)
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	s.appends++
	return nil
}

// LatestAll returns a snapshot of the latest point per device.
func (s *Store) LatestAll() map[string]telemetry.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]telemetry.Point, len(s.latest))
	for id, p := range s.latest {
		out[id] = p
	}
	return out
}

// Log returns up to limit points for deviceID, newest first. Unknown devices
// and non-positive limits yield an empty, non-nil slice.
func (s *Store) Log(deviceID string, limit int) []telemetry.Point {
	if limit <= 0 {
		return []telemetry.Point{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[deviceID]
	n := min(limit, len(log))
	out := make([]telemetry.Point, n)
	copy(out, log[:n])
	return out
}

// Trails returns each device's last n points oldest-first, ready to draw as
// a polyline, together with its latest point.
func (s *Store) Trails(n int) map[string]Trail {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Trail, len(s.logs))
	for id, log := range s.logs {
		k := max(0, min(n, len(log)))
		points := make([]telemetry.Point, k)
		for i := 0; i < k; i++ {
			points[i] = log[k-1-i]
		}
		out[id] = Trail{Points: points, Latest: s.latest[id]}
	}
	return out
}

// Devices returns the known device IDs in sorted order.
func (s *Store) Devices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.latest))
	for id := range s.latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns a summary of the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := 0
	for _, log := range s.logs {
		points += len(log)
	}
	return Stats{
		Devices:         len(s.latest),
		Points:          points,
		MaxPoints:       s.maxPoints,
		Appends:         s.appends,
		PersistFailures: s.failures,
	}
}

// Close closes the backend. Reads keep working on the in-memory state;
// further appends fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("closing store backend: %w", err)
	}
	return nil
}
