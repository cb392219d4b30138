package ingest

import "errors"

var (
	// ErrInvalidPayload is returned by IngestPayload when the bytes are not
	// JSON or hold no object to normalise.
	ErrInvalidPayload = errors.New("ingest: invalid payload")

	// ErrRejected is returned by the MQTT handler for payloads the
	// normaliser rejects, so the subscriber logs them.
	ErrRejected = errors.New("ingest: payload rejected")
)
