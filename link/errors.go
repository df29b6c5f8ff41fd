package link

import (
	"errors"
)

var (
	// ErrClosed is returned for calls made after the link started closing.
	ErrClosed = errors.New("link: closed")
	// ErrAlreadyStarted is returned by a second Open.
	ErrAlreadyStarted = errors.New("link: already running")
	// ErrNoCallContext is returned by Transfer when ctx does not come from a dispatched request.
	ErrNoCallContext = errors.New("link: no call in context")
	// ErrNotTransferred is returned by Handoff before a transfer completed.
	ErrNotTransferred = errors.New("link: not transferred")
)

// RemoteError reports that the peer's handler failed. Only the failure text
// crosses the wire.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return "link: remote " + e.Method + " failed: " + e.Message
}
