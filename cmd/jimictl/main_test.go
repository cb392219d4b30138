package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/jimi-tracker/internal/erpnext"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/config"
	"github.com/nerrad567/jimi-tracker/internal/store"
	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// recorder is a fake tracker or ERPNext site that keeps every JSON body.
type recorder struct {
	mu     sync.Mutex
	bodies []map[string]any
	status int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.bodies = append(r.bodies, body)
	r.mu.Unlock()

	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck // Test server
}

func (r *recorder) received() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.bodies...)
}

func newRecorder(t *testing.T, status int) (*recorder, *httptest.Server) {
	t.Helper()
	rec := &recorder{status: status}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return rec, srv
}

func clearERPEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ERP_URL", "ERP_API_KEY", "ERP_API_SECRET", "JIMI_ERP_URL", "JIMI_ERP_API_KEY", "JIMI_ERP_API_SECRET", "SAVE_PATH", "JIMI_STORAGE_PATH"} {
		t.Setenv(k, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunSimulate(t *testing.T) {
	rec, srv := newRecorder(t, http.StatusOK)

	var reported []string
	var mu sync.Mutex
	sum, err := runSimulate(context.Background(), simulateOptions{
		endpoint:    srv.URL,
		imeis:       []string{"dev-a", "dev-b"},
		count:       3,
		concurrency: 2,
		seed:        42,
	}, func(imei string, _ pushResult) {
		mu.Lock()
		reported = append(reported, imei)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, simulateSummary{Sent: 6, Accepted: 6}, sum)
	assert.Len(t, reported, 6)

	bodies := rec.received()
	require.Len(t, bodies, 6)
	for _, b := range bodies {
		assert.Contains(t, []any{"dev-a", "dev-b"}, b["imei"])
		assert.InDelta(t, simBaseLat+simSpread/2, b["lat"], simSpread/2)
		assert.InDelta(t, simBaseLon+simSpread/2, b["lon"], simSpread/2)
		speed, ok := b["speed"].(float64)
		require.True(t, ok)
		assert.GreaterOrEqual(t, speed, 0.0)
		assert.LessOrEqual(t, speed, float64(simMaxSpeed))

		gpstime, present := b["gpstime"]
		assert.True(t, present, "gpstime should be sent as null")
		assert.Nil(t, gpstime)
	}
}

func TestRunSimulate_CountsRejections(t *testing.T) {
	_, srv := newRecorder(t, http.StatusBadRequest)

	sum, err := runSimulate(context.Background(), simulateOptions{
		endpoint: srv.URL,
		imeis:    []string{"dev-a"},
		count:    2,
		interval: time.Millisecond,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, simulateSummary{Sent: 2, Rejected: 2}, sum)
}

func TestRunSimulate_Validation(t *testing.T) {
	_, err := runSimulate(context.Background(), simulateOptions{imeis: []string{"a"}}, nil)
	assert.Error(t, err)

	_, err = runSimulate(context.Background(), simulateOptions{count: 1}, nil)
	assert.Error(t, err)
}

func TestRunSimulate_TransportError(t *testing.T) {
	_, srv := newRecorder(t, http.StatusOK)
	url := srv.URL
	srv.Close()

	sum, err := runSimulate(context.Background(), simulateOptions{
		endpoint: url,
		imeis:    []string{"dev-a"},
		count:    3,
	}, nil)

	assert.Error(t, err)
	assert.Zero(t, sum.Sent)
}

func TestPushCommand(t *testing.T) {
	rec, srv := newRecorder(t, http.StatusOK)

	out, err := execute(t, "push", "--endpoint", srv.URL, "--imei", "JIMI123", "--speed", "0", "--ignition")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "200 "), out)

	bodies := rec.received()
	require.Len(t, bodies, 1)
	assert.Equal(t, "JIMI123", bodies[0]["imei"])
	assert.Equal(t, 0.0, bodies[0]["speed"])
	assert.Equal(t, true, bodies[0]["ignition"])
	assert.NotContains(t, bodies[0], "gpstime")
}

func TestPushCommand_Rejected(t *testing.T) {
	_, srv := newRecorder(t, http.StatusBadRequest)

	_, err := execute(t, "push", "--endpoint", srv.URL)
	assert.Error(t, err)
}

func TestERPTestCommand(t *testing.T) {
	clearERPEnv(t)
	rec, srv := newRecorder(t, http.StatusOK)

	out, err := execute(t, "erp-test", "--url", srv.URL, "--key", "k", "--secret", "s", "--imei", "JIMI9")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	bodies := rec.received()
	require.Len(t, bodies, 1)
	assert.Equal(t, "Vehicle Telemetry", bodies[0]["doctype"])
	assert.Equal(t, "JIMI9", bodies[0]["imei"])
}

func TestERPTestCommand_NoURL(t *testing.T) {
	clearERPEnv(t)

	_, err := execute(t, "erp-test")
	assert.ErrorIs(t, err, erpnext.ErrNotConfigured)
}

// writeImage stores points through a file-backed store and returns its path.
func writeImage(t *testing.T, points ...telemetry.Point) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storage.json")
	st, err := store.Open(context.Background(), store.NewFileBackend(path), store.Options{MaxPoints: 10})
	require.NoError(t, err)
	for _, p := range points {
		require.NoError(t, st.Append(context.Background(), p))
	}
	require.NoError(t, st.Close())
	return path
}

func point(id string, sec int) telemetry.Point {
	return telemetry.Point{
		DeviceID:  id,
		Latitude:  float64(sec),
		Longitude: 36.8,
		Timestamp: telemetry.FormatTime(time.Date(2026, 1, 1, 0, 0, sec, 0, time.UTC)),
		Raw:       map[string]any{"imei": id},
	}
}

func TestERPBulk(t *testing.T) {
	clearERPEnv(t)
	rec, srv := newRecorder(t, http.StatusOK)
	path := writeImage(t, point("b", 1), point("a", 2), point("b", 3))

	out, err := execute(t, "erp-bulk", "--url", srv.URL, "--store", path)
	require.NoError(t, err)
	assert.Contains(t, out, "sent 3 of 3 records")

	bodies := rec.received()
	require.Len(t, bodies, 3)
	var got []string
	for _, b := range bodies {
		got = append(got, b["imei"].(string)+"@"+b["timestamp"].(string))
	}
	assert.Equal(t, []string{
		"a@2026-01-01T00:00:02Z",
		"b@2026-01-01T00:00:01Z",
		"b@2026-01-01T00:00:03Z",
	}, got)
}

func TestERPBulk_ReportsFailures(t *testing.T) {
	_, srv := newRecorder(t, http.StatusInternalServerError)
	path := writeImage(t, point("a", 1), point("a", 2))

	client, err := erpnext.NewClient(config.ERPConfig{URL: srv.URL})
	require.NoError(t, err)

	var out bytes.Buffer
	err = runERPBulk(context.Background(), client, path, &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "sent 0 of 2 records")
	assert.Contains(t, out.String(), "#0 a:")
	assert.Contains(t, out.String(), "#1 a:")
}

func TestERPBulk_MissingImage(t *testing.T) {
	client, err := erpnext.NewClient(config.ERPConfig{URL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	err = runERPBulk(context.Background(), client, filepath.Join(t.TempDir(), "none.json"), &bytes.Buffer{})
	assert.ErrorIs(t, err, store.ErrNoImage)
}
