// Package erpnext pushes telemetry into an ERPNext instance over its REST
// resource API.
//
// Two record shapes are supported:
//
//   - Vehicle Telemetry (mode "telemetry", default): one document per point
//     with imei, latitude, longitude, speed, ignition and timestamp.
//   - GPS Log (mode "gps_log"): one GPS Log document per point carrying the
//     raw payload, followed by an upsert of the Vehicle named by the IMEI
//     with its last known location.
//
// Requests authenticate with "Authorization: token {key}:{secret}" when both
// credentials are set. Any status outside 2xx is an error wrapping
// ErrUnexpectedStatus; nothing is retried.
//
// Sink adapts a Client to forward.Sink for the dispatcher.
package erpnext
