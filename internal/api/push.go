package api

import (
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// PushResponse acknowledges a stored push.
type PushResponse struct {
	Status string `json:"status"`
	Stored bool   `json:"stored"`
}

// TestPushResponse returns the stored point for a manual test push.
type TestPushResponse struct {
	Status string          `json:"status"`
	Parsed telemetry.Point `json:"parsed"`
}

// handlePush receives device pushes from JIMI's cloud or a gateway.
//
// The body is JSON or a form. A form field "data" holding a JSON object
// replaces the form. The payload is then unwrapped and ingested; the
// response never waits on forwarding.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePush(r)
	if err != nil {
		s.logger.Warn("failed to parse push",
			"error", err,
			"content_type", r.Header.Get("Content-Type"),
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeBadRequest(w, "invalid payload")
		return
	}

	raw, ok := telemetry.Unwrap(payload)
	if !ok {
		writeJSON(w, http.StatusBadRequest, RejectionResponse{Error: "invalid payload", Received: payload})
		return
	}

	s.ingest(w, r, raw, func(telemetry.Point) any {
		return PushResponse{Status: "ok", Stored: true}
	})
}

// handleTestPush stores a point built from form fields imei, lat, lon and
// an optional speed, stamped with the current time.
func (s *Server) handleTestPush(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeBadRequest(w, "invalid form body")
		return
	}

	imei := r.PostForm.Get("imei")
	if imei == "" {
		writeValidationError(w, "imei is required")
		return
	}
	lat, err := formFloat(r, "lat", true)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}
	lon, err := formFloat(r, "lon", true)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}
	speed, err := formFloat(r, "speed", false)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	raw := map[string]any{
		"imei":  imei,
		"lat":   lat,
		"lon":   lon,
		"speed": speed,
		"time":  telemetry.FormatTime(s.now()),
	}

	s.ingest(w, r, raw, func(p telemetry.Point) any {
		return TestPushResponse{Status: "ok", Parsed: p}
	})
}

// ingest runs raw through the pipeline and writes the outcome.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request, raw map[string]any, ok func(telemetry.Point) any) {
	point, rej, err := s.pipeline.Ingest(r.Context(), raw)
	if err != nil {
		s.logger.Error("failed to store point",
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "failed to store point")
		return
	}
	if rej != nil {
		s.logger.Warn("missing essential fields in payload",
			"reason", rej.String(),
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeJSON(w, http.StatusBadRequest, RejectionResponse{Error: rej.String(), Received: raw})
		return
	}

	writeJSON(w, http.StatusOK, ok(point))
}

// decodePush reads a push body as JSON or as a form.
func decodePush(r *http.Request) (any, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // Empty or odd types fall through to form parsing
	if mediaType == "application/json" {
		return telemetry.Decode(r.Body)
	}

	if err := parseForm(r); err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			payload[k] = v[0]
		}
	}

	if data, ok := payload["data"].(string); ok {
		if inner, err := telemetry.Decode(strings.NewReader(data)); err == nil {
			if m, ok := inner.(map[string]any); ok {
				return m, nil
			}
		}
	}
	return payload, nil
}

// parseForm fills r.PostForm from a urlencoded or multipart body.
func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // Unknown types parse as urlencoded
	var err error
	if strings.HasPrefix(mediaType, "multipart/") {
		err = r.ParseMultipartForm(maxRequestBodySize)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return fmt.Errorf("parsing form: %w", err)
	}
	return nil
}

var errRequired = errors.New("is required")

// formFloat parses a numeric form field. Absent optional fields read as 0.
func formFloat(r *http.Request, name string, required bool) (float64, error) {
	v := strings.TrimSpace(r.PostForm.Get(name))
	if v == "" {
		if required {
			return 0, fmt.Errorf("%s %w", name, errRequired)
		}
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a finite number", name)
	}
	return f, nil
}
