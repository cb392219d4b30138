package erpnext

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/jimi-tracker/internal/infrastructure/config"
	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// Doctype names on the ERPNext side.
const (
	DoctypeVehicleTelemetry = "Vehicle Telemetry"
	DoctypeGPSLog           = "GPS Log"
	DoctypeVehicle          = "Vehicle"
)

const (
	defaultTimeout = 15 * time.Second

	// maxErrorBody caps how much of an error response is kept in the error.
	maxErrorBody = 4 << 10
)

// Telemetry is one Vehicle Telemetry record.
type Telemetry struct {
	IMEI      string  `json:"imei"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Ignition  bool    `json:"ignition"`

	// Timestamp is ISO-8601 UTC. Empty means now.
	Timestamp string `json:"timestamp"`
}

// TelemetryFromPoint maps a stored point onto a Vehicle Telemetry record.
func TelemetryFromPoint(p telemetry.Point) Telemetry {
	return Telemetry{
		IMEI:      p.DeviceID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Speed:     p.Speed,
		Ignition:  p.Ignition(),
		Timestamp: p.Timestamp,
	}
}

// Client talks to one ERPNext site.
//
// Thread Safety:
//   - Safe for concurrent use; it holds no mutable state.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	now       func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock sets the time source used for records without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient builds a client from the erp config section.
//
// Parameters:
//   - cfg: ERP settings; URL is required, credentials are optional
//   - opts: Optional overrides
//
// Returns:
//   - *Client: Ready client
//   - error: ErrNotConfigured when cfg.URL is empty
func NewClient(cfg config.ERPConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		http:      &http.Client{Timeout: timeout},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalised site URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SendTelemetry creates one Vehicle Telemetry document.
func (c *Client) SendTelemetry(ctx context.Context, t Telemetry) error {
	if t.Timestamp == "" {
		t.Timestamp = telemetry.FormatTime(c.now())
	}

	doc := struct {
		Doctype string `json:"doctype"`
		Telemetry
	}{Doctype: DoctypeVehicleTelemetry, Telemetry: t}

	if _, err := c.do(ctx, http.MethodPost, c.resourceURL(DoctypeVehicleTelemetry), doc); err != nil {
		return fmt.Errorf("sending telemetry for %s: %w", t.IMEI, err)
	}
	return nil
}

// CreateGPSLog creates one GPS Log document carrying the raw payload.
func (c *Client) CreateGPSLog(ctx context.Context, p telemetry.Point) error {
	doc := map[string]any{
		"doctype":     DoctypeGPSLog,
		"device_imei": p.DeviceID,
		"latitude":    p.Latitude,
		"longitude":   p.Longitude,
		"speed_kmh":   p.Speed,
		"timestamp":   p.Timestamp,
		"raw_payload": p.Raw,
	}

	if _, err := c.do(ctx, http.MethodPost, c.resourceURL(DoctypeGPSLog), doc); err != nil {
		return fmt.Errorf("creating gps log for %s: %w", p.DeviceID, err)
	}
	return nil
}

// UpsertVehicleLocation records the point as the last known location of the
// Vehicle named by the device ID, creating the Vehicle when the lookup does
// not return 200.
func (c *Client) UpsertVehicleLocation(ctx context.Context, p telemetry.Point) error {
	location := map[string]any{
		"last_latitude":  p.Latitude,
		"last_longitude": p.Longitude,
		"last_seen":      p.Timestamp,
	}
	vehicleURL := c.resourceURL(DoctypeVehicle, p.DeviceID)

	status, err := c.do(ctx, http.MethodGet, vehicleURL, nil)
	if err == nil && status == http.StatusOK {
		if _, err := c.do(ctx, http.MethodPut, vehicleURL, location); err != nil {
			return fmt.Errorf("updating vehicle %s: %w", p.DeviceID, err)
		}
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("looking up vehicle %s: %w", p.DeviceID, ctxErr)
	}

	location["doctype"] = DoctypeVehicle
	location["name"] = p.DeviceID
	location["vehicle_name"] = p.DeviceID
	if _, err := c.do(ctx, http.MethodPost, c.resourceURL(DoctypeVehicle), location); err != nil {
		return fmt.Errorf("creating vehicle %s: %w", p.DeviceID, err)
	}
	return nil
}

// BulkFailure is one record BulkUpload could not send.
type BulkFailure struct {
	Index int
	IMEI  string
	Err   error
}

// BulkResult summarises a BulkUpload run.
type BulkResult struct {
	Sent   int
	Failed []BulkFailure
}

// BulkUpload sends records one after another. A failed record is noted in
// the result and the run continues.
func (c *Client) BulkUpload(ctx context.Context, records []Telemetry) BulkResult {
	var res BulkResult
	for i, rec := range records {
		if err := c.SendTelemetry(ctx, rec); err != nil {
			res.Failed = append(res.Failed, BulkFailure{Index: i, IMEI: rec.IMEI, Err: err})
			continue
		}
		res.Sent++
	}
	return res
}

func (c *Client) resourceURL(doctype string, name ...string) string {
	u := c.baseURL + "/api/resource/" + url.PathEscape(doctype)
	for _, n := range name {
		u += "/" + url.PathEscape(n)
	}
	return u
}

// do sends one request with a JSON body (nil for none) and returns the
// status code. Any status outside 2xx is returned as an error.
func (c *Client) do(ctx context.Context, method, target string, body any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" && c.apiSecret != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.apiSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // Best-effort error detail
		return resp.StatusCode, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(text)))
	}

	io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse
	return resp.StatusCode, nil
}
