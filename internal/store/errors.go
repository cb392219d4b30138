package store

import "errors"

// Domain-specific errors for the device state store.
var (
	// ErrPersistFailed is returned by Append when the durable write fails.
	// The point is not accepted and the in-memory state is unchanged.
	ErrPersistFailed = errors.New("persisting telemetry point failed")

	// ErrLoadFailed wraps backend errors reading a prior image.
	ErrLoadFailed = errors.New("loading store image failed")

	// ErrNoImage is returned by Backend.Load when nothing has been persisted yet.
	ErrNoImage = errors.New("no persisted store image")

	// ErrClosed is returned by Append after Close.
	ErrClosed = errors.New("store is closed")
)
