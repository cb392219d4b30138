// Package api implements the tracker's HTTP server and WebSocket feed.
//
// This package provides:
//   - POST /jimi/push for device pushes (JSON or form bodies)
//   - POST /test/push for manual points from the dashboard or curl
//   - Read endpoints /api/latest, /api/log/{imei} and /api/devices
//   - Health and metrics under /api/v1
//   - A WebSocket hub at /ws that broadcasts every stored point
//   - The embedded dashboard at / and /static/
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Handlers hand raw payloads to the ingest pipeline, which stores them and
// queues forwarding. A push is acknowledged once the point is durable; it
// never waits on the ERP, MQTT, InfluxDB or Kafka.
//
// The server has no authentication. Run it behind a reverse proxy or on a
// private network.
package api
