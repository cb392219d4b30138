// Package ingest is the single path by which a device push becomes a stored
// point: normalise, append to the store, hand to the forwarder, notify
// observers.
//
// The HTTP push endpoints and the MQTT ingest subscription both go through
// a Pipeline, so a point arriving by either route is treated identically.
// Forwarding never delays the caller; observers run synchronously after the
// point is durable and must not block.
package ingest
