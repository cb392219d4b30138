package influxdb_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/jimi-tracker/internal/infrastructure/config"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "jimi-dev-token",
		Org:           "jimi",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		client, err := influxdb.Connect(context.Background(), testConfig())
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close()
	}
}

func TestNewFixPoint(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := influxdb.NewFixPoint(influxdb.Fix{
		DeviceID:  "3345689",
		Latitude:  -1.29,
		Longitude: 36.82,
		Speed:     42,
		Ignition:  true,
		Time:      ts,
	})

	if p.Name() != influxdb.MeasurementGPS {
		t.Errorf("Name() = %q, want %q", p.Name(), influxdb.MeasurementGPS)
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", p.Time(), ts)
	}

	tags := p.TagList()
	if len(tags) != 1 || tags[0].Key != "device_id" || tags[0].Value != "3345689" {
		t.Errorf("tags = %+v, want only device_id=3345689", tags)
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	want := map[string]interface{}{
		"latitude":  -1.29,
		"longitude": 36.82,
		"speed":     42.0,
		"ignition":  true,
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %v, want %v", k, fields[k], v)
		}
	}
	if len(fields) != len(want) {
		t.Errorf("fields = %v, want %d entries", fields, len(want))
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
	if err := client.WriteFix(influxdb.Fix{DeviceID: "x"}); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("WriteFix() on zero client error = %v, want ErrNotConnected", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() on zero client error = %v, want ErrNotConnected", err)
	}
	if got := client.Stats(); got != (influxdb.Stats{}) {
		t.Errorf("Stats() on zero client = %+v, want zero", got)
	}
	client.Flush()
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect() with default batch settings")
	}
}

func TestHealthCheck(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := client.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() should fail for a cancelled context")
	}
}

func TestWriteFix(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	writeErrs := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case writeErrs <- err:
		default:
		}
	})

	err = client.WriteFix(influxdb.Fix{
		DeviceID:  "test-device",
		Latitude:  -1.29,
		Longitude: 36.82,
		Time:      time.Now(),
	})
	if err != nil {
		t.Fatalf("WriteFix() error = %v", err)
	}
	client.Flush()
	if got := client.Stats().Written; got != 1 {
		t.Errorf("Stats().Written = %d, want 1", got)
	}
	client.Close()
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	select {
	case err := <-writeErrs:
		t.Errorf("async write error = %v", err)
	default:
	}
	if err := client.WriteFix(influxdb.Fix{DeviceID: "test-device"}); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("WriteFix() after Close error = %v, want ErrNotConnected", err)
	}
}
