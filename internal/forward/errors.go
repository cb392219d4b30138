package forward

import "errors"

var (
	// ErrQueueFull is returned by Submit when the job queue has no room.
	// The job is dropped.
	ErrQueueFull = errors.New("forward: queue full")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("forward: dispatcher closed")
)
