// Package telemetry turns heterogeneous tracker pushes into canonical points.
//
// JIMI trackers and the gateways in front of them disagree on field names:
// the same IMEI can arrive as "imei", "deviceId" or "imei_code", latitude as
// "lat" or "Lat", and the fix time as an epoch number or an ISO-8601 string.
// Normalize resolves each canonical field through a fixed priority list of
// aliases and either returns a Point or a Rejection describing what was
// missing.
//
// # Canonical point
//
//	{
//	  "device_id": "864895030000001",
//	  "latitude": -1.2921,
//	  "longitude": 36.8219,
//	  "speed": 42.5,
//	  "timestamp": "2023-11-14T22:13:20Z",
//	  "raw": { ...original payload... }
//	}
//
// Timestamps are always UTC with a literal Z suffix. When the payload carries
// nothing parseable the ingestion time is used instead.
//
// # Payload envelopes
//
// Unwrap handles the envelopes seen at the ingestion boundary: a JSON array
// (the first element is used) and an object whose "data" member is itself an
// object. Decode reads JSON with json.Number so large IMEIs keep every digit.
//
// Normalize is pure and safe to call from any goroutine.
package telemetry
