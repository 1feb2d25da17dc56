package recorder

import "errors"

// Errors returned by the recorder.
var (
	// ErrNoChannels is returned by Start when no channels are configured.
	ErrNoChannels = errors.New("recorder: no channels configured")

	// ErrAlreadyRunning is returned by Start on a running recorder.
	ErrAlreadyRunning = errors.New("recorder: already running")

	// ErrNotRunning is returned by Stop on a recorder that is not running.
	ErrNotRunning = errors.New("recorder: not running")
)
