package telemetry

// Reason identifies why a payload could not be normalised.
type Reason string

// Rejection reasons reported back to the pushing device.
const (
	ReasonMissingDeviceID    Reason = "missing_device_id"
	ReasonMissingCoordinates Reason = "missing_coordinates"
)

// Rejection is returned by Normalize instead of a Point when a required field
// cannot be resolved. It is a value, not an error: the ingestion boundary
// decides how to report it.
type Rejection struct {
	Reason Reason
}

// String returns the reason code.
func (r *Rejection) String() string {
	if r == nil {
		return ""
	}
	return string(r.Reason)
}

func reject(reason Reason) *Rejection {
	return &Rejection{Reason: reason}
}
