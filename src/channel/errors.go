package channel

import (
	"errors"
	"fmt"

	"ig-streamer/src/interfaces"
)

var (
	// ErrNotConnected is returned by Subscribe without a live transport session
	ErrNotConnected = fmt.Errorf("%w: not connected", interfaces.ErrChannelUnavailable)

	// ErrForeignSubscription is returned for subscriptions of another channel
	ErrForeignSubscription = errors.New("subscription does not belong to this channel")
)

// -----------------------------------------------------------------------------

// SubscriptionError is a rejection reported by the server for one item.
type SubscriptionError struct {
	Code    int
	Message string
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription rejected (%d): %s", e.Code, e.Message)
}
