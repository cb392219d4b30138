// Package forward fans stored points out to external systems.
//
// Forwarding is fire-and-forget. Ingestion calls Dispatcher.Submit, which
// never blocks: the point is queued for a small worker pool, or dropped with
// a warning when the queue is full. Each worker pushes the point to every
// registered Sink under a per-sink timeout. Failures are logged and
// discarded; nothing is retried and nothing propagates back to the caller.
//
// Sinks provided here:
//   - MQTTSink publishes retained per-device state
//   - InfluxSink mirrors fixes into an InfluxDB time series
//   - KafkaSink appends points to a Kafka topic keyed by device
//
// The ERPNext sink lives in package erpnext.
//
// A SyncTracker, when given to the dispatcher, records the recent points
// each sink accepted per device. The dashboard uses it to flag devices whose
// latest point reached the ERP.
package forward
