package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

const defaultLogLimit = 100

// TrailPoint is one vertex of a dashboard trail.
type TrailPoint struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Speed     float64 `json:"speed"`
	Timestamp string  `json:"timestamp"`
}

// DeviceView is a device's entry in /api/devices.
type DeviceView struct {
	Trail     []TrailPoint    `json:"trail"`
	Latest    telemetry.Point `json:"latest"`
	ERPSynced bool            `json:"erp_synced"`
}

// handleLatest returns the latest point of every device.
func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.LatestAll())
}

// handleLog returns a device's log, newest first.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	imei := chi.URLParam(r, "imei")

	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeValidationError(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, s.store.Log(imei, limit))
}

// handleDevices returns each device's recent trail (oldest first), its
// latest point, and whether that point has reached the ERP.
func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	trails := s.store.Trails(s.dashCfg.TrailLength)

	out := make(map[string]DeviceView, len(trails))
	for id, t := range trails {
		view := DeviceView{
			Trail:  make([]TrailPoint, len(t.Points)),
			Latest: t.Latest,
		}
		for i, p := range t.Points {
			view.Trail[i] = TrailPoint{
				Lat:       p.Latitude,
				Lon:       p.Longitude,
				Speed:     p.Speed,
				Timestamp: p.Timestamp,
			}
		}
		if s.tracker != nil {
			view.ERPSynced = s.tracker.Synced(s.syncSink, t.Latest)
		}
		out[id] = view
	}

	writeJSON(w, http.StatusOK, out)
}
