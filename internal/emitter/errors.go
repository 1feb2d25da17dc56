package emitter

import "errors"

// Errors returned by the emitter client.
// Transport failures are returned wrapped as produced by the mqtt package.
var (
	// ErrInvalidChannel is returned when a channel is empty.
	ErrInvalidChannel = errors.New("emitter: channel cannot be empty")

	// ErrInvalidLink is returned when a link name is empty.
	ErrInvalidLink = errors.New("emitter: link cannot be empty")

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = errors.New("emitter: handler cannot be nil")

	// ErrUnknownHandler is returned when removing a handler id that is not registered.
	ErrUnknownHandler = errors.New("emitter: unknown handler")

	// ErrLoopRunning is returned when Loop is called while another Loop runs.
	ErrLoopRunning = errors.New("emitter: loop already running")

	// ErrRequestFailed is returned when the broker answers a request with a
	// non-200 status.
	ErrRequestFailed = errors.New("emitter: request failed")

	// ErrTimeout is returned when no response arrives in time.
	ErrTimeout = errors.New("emitter: timeout waiting for response")

	// ErrMalformedResponse is returned when a response cannot be decoded.
	ErrMalformedResponse = errors.New("emitter: malformed response")
)
