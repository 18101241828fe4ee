package session

import (
	"errors"
	"fmt"

	"ig-streamer/src/models"
)

var (
	// ErrClosed is returned by operations on a closed session
	ErrClosed = errors.New("session closed")

	// ErrUnsubscribed is returned to registrations still waiting when the
	// subscription is torn down
	ErrUnsubscribed = errors.New("subscription torn down")

	// ErrDisconnected is the cause of a connect attempt that ended disconnected
	ErrDisconnected = errors.New("transport disconnected")
)

// -----------------------------------------------------------------------------

// TransportError is a connect or subscribe failure reported by the channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// -----------------------------------------------------------------------------

// ValidationError is a subscription the channel refused synchronously.
type ValidationError struct {
	Key models.MSubscriptionKey
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid subscription %s: %v", e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
