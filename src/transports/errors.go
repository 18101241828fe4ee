package transports

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by requests sent while no session is open.
	ErrNotConnected = errors.New("no session is open")

	// ErrNoListener is returned by Connect before SetListener.
	ErrNoListener = errors.New("no transport listener installed")

	errStopped = errors.New("transport stopped")
)

// -----------------------------------------------------------------------------

// ServerError is a notification by which the push server refused or ended
// the session. Op is the notification tag (CONERR, END or ERROR).
type ServerError struct {
	Op      string
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Op, e.Code, e.Message)
}

// Fatal reports whether reconnecting cannot help. A refused session
// creation means the credentials or the adapter set are wrong.
func (e *ServerError) Fatal() bool {
	return e.Op == "CONERR"
}
