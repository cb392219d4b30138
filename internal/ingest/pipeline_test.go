package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/jimi-tracker/internal/store"
	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

var fixedNow = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

type fakeStore struct {
	err    error
	points []telemetry.Point
}

func (f *fakeStore) Append(_ context.Context, p telemetry.Point) error {
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, p)
	return nil
}

type fakeForwarder struct {
	mu     sync.Mutex
	points []telemetry.Point
	err    error
}

func (f *fakeForwarder) Submit(p telemetry.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
	return f.err
}

func TestIngest_StoresForwardsAndNotifies(t *testing.T) {
	st := &fakeStore{}
	fwd := &fakeForwarder{}
	p := New(st, Options{Forwarder: fwd, Now: fixedNow})

	var observed []telemetry.Point
	p.OnStored(func(pt telemetry.Point) { observed = append(observed, pt) })

	point, rej, err := p.Ingest(context.Background(), map[string]any{
		"imei": "3345689", "lat": -1.29, "lng": 36.82, "gpstime": nil,
	})
	require.NoError(t, err)
	require.Nil(t, rej)

	assert.Equal(t, "3345689", point.DeviceID)
	assert.Equal(t, "2026-02-03T04:05:06Z", point.Timestamp)
	assert.Equal(t, []telemetry.Point{point}, st.points)
	assert.Equal(t, []telemetry.Point{point}, fwd.points)
	assert.Equal(t, []telemetry.Point{point}, observed)
	assert.Equal(t, Stats{Accepted: 1}, p.Stats())
}

func TestIngest_RejectionStoresNothing(t *testing.T) {
	st := &fakeStore{}
	fwd := &fakeForwarder{}
	p := New(st, Options{Forwarder: fwd})

	_, rej, err := p.Ingest(context.Background(), map[string]any{"lat": 1.0, "lon": 2.0})
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, telemetry.ReasonMissingDeviceID, rej.Reason)

	_, rej, err = p.Ingest(context.Background(), map[string]any{"imei": "x", "lat": 1.0})
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, telemetry.ReasonMissingCoordinates, rej.Reason)

	assert.Empty(t, st.points)
	assert.Empty(t, fwd.points)
	assert.Equal(t, int64(2), p.Stats().Rejected)
}

func TestIngest_StoreFailureIsReturned(t *testing.T) {
	persistErr := errors.New("disk full")
	fwd := &fakeForwarder{}
	p := New(&fakeStore{err: persistErr}, Options{Forwarder: fwd})

	_, rej, err := p.Ingest(context.Background(), map[string]any{"imei": "x", "lat": 1.0, "lon": 2.0})
	assert.Nil(t, rej)
	assert.ErrorIs(t, err, persistErr)
	assert.Empty(t, fwd.points, "nothing is forwarded unless stored")
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestIngest_ForwarderErrorIgnored(t *testing.T) {
	st := &fakeStore{}
	p := New(st, Options{Forwarder: &fakeForwarder{err: errors.New("forward: queue full")}})

	_, rej, err := p.Ingest(context.Background(), map[string]any{"imei": "x", "lat": 1.0, "lon": 2.0})
	assert.NoError(t, err)
	assert.Nil(t, rej)
	assert.Len(t, st.points, 1)
}

func TestIngestPayload(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantID   string
		wantErr  error
		rejected bool
	}{
		{"object", `{"imei":"1","lat":1,"lon":2}`, "1", nil, false},
		{"array takes first", `[{"deviceId":"2","latitude":1,"longitude":2},{"imei":"3"}]`, "2", nil, false},
		{"data wrapper", `{"data":{"device_id":"4","Lat":"1.5","Lon":"2.5"}}`, "4", nil, false},
		{"empty array", `[]`, "", ErrInvalidPayload, false},
		{"scalar", `42`, "", ErrInvalidPayload, false},
		{"not json", `imei=1`, "", ErrInvalidPayload, false},
		{"trailing data", `{"imei":"1"} {}`, "", ErrInvalidPayload, false},
		{"rejected", `{"imei":"1"}`, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&fakeStore{}, Options{Now: fixedNow})
			point, rej, err := p.IngestPayload(context.Background(), []byte(tt.payload))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.rejected {
				assert.NotNil(t, rej)
				return
			}
			require.Nil(t, rej)
			assert.Equal(t, tt.wantID, point.DeviceID)
		})
	}
}

func TestMessageHandler(t *testing.T) {
	st := &fakeStore{}
	p := New(st, Options{Now: fixedNow})
	handle := p.MessageHandler(context.Background())

	require.NoError(t, handle("jimi/push/gw", []byte(`{"imei":"3345689","lat":-1.29,"lon":36.82}`)))
	assert.Len(t, st.points, 1)

	assert.ErrorIs(t, handle("jimi/push/gw", []byte(`{"lat":1,"lon":2}`)), ErrRejected)
	assert.ErrorIs(t, handle("jimi/push/gw", []byte(`nope`)), ErrInvalidPayload)
}

func TestIngest_WithFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.json")

	st, err := store.Open(ctx, store.NewFileBackend(path), store.Options{MaxPoints: 3})
	require.NoError(t, err)
	p := New(st, Options{Now: fixedNow})

	for i := 0; i < 5; i++ {
		_, rej, err := p.Ingest(ctx, map[string]any{
			"imei": "3345689", "lat": -1.29, "lon": 36.82, "speed": i,
		})
		require.NoError(t, err)
		require.Nil(t, rej)
	}
	require.NoError(t, st.Close())

	reopened, err := store.Open(ctx, store.NewFileBackend(path), store.Options{MaxPoints: 3})
	require.NoError(t, err)
	log := reopened.Log("3345689", 10)
	require.Len(t, log, 3)
	assert.Equal(t, 4.0, log[0].Speed)
	assert.Equal(t, log[0], reopened.LatestAll()["3345689"])
}
