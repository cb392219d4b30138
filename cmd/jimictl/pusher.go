package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// Simulated points are scattered in a 0.02° square north-east of this
// corner of Nairobi.
const (
	simBaseLat  = -1.29
	simBaseLon  = 36.82
	simSpread   = 0.02
	simMaxSpeed = 120
)

const pushTimeout = 10 * time.Second

// pusher posts JSON payloads to a tracker push endpoint.
type pusher struct {
	endpoint string
	http     *http.Client
}

func newPusher(endpoint string) *pusher {
	return &pusher{
		endpoint: endpoint,
		http:     &http.Client{Timeout: pushTimeout},
	}
}

// pushResult is what the tracker answered.
type pushResult struct {
	Status int
	Body   string
}

// push sends payload and returns the response. Only transport failures are
// errors; a 4xx is reported in the result.
func (p *pusher) push(ctx context.Context, payload any) (pushResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return pushResult{}, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return pushResult{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return pushResult{}, fmt.Errorf("posting to %s: %w", p.endpoint, err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return pushResult{}, fmt.Errorf("reading response: %w", err)
	}
	return pushResult{Status: resp.StatusCode, Body: string(bytes.TrimSpace(text))}, nil
}

// simulatedPayload returns a random point for imei. gpstime is null so the
// tracker stamps it on arrival.
func simulatedPayload(rng *rand.Rand, imei string) map[string]any {
	return map[string]any{
		"imei":    imei,
		"lat":     simBaseLat + rng.Float64()*simSpread,
		"lon":     simBaseLon + rng.Float64()*simSpread,
		"speed":   rng.IntN(simMaxSpeed + 1),
		"gpstime": nil,
	}
}
