package interfaces

import (
	"errors"

	"ig-streamer/src/models"
)

// ErrChannelUnavailable marks a Subscribe failure caused by the transport
// session rather than by the request. The same request can be sent again
// once the channel reports connected.
var ErrChannelUnavailable = errors.New("channel unavailable")

// -----------------------------------------------------------------------------

// IChannel is the boundary between the session and the push transport. All
// calls are fire-and-observe: results surface through the status callback
// and the subscription event streams.
type IChannel interface {
	// Connect asks the transport to open a session
	Connect() error

	// Disconnect asks the transport to close its session
	Disconnect() error

	// OnStatus registers the status callback. Must be set before Connect.
	OnStatus(fn func(models.MConnectionStatus))

	// Subscribe opens one item. A returned error means the request was
	// rejected before reaching the server; errors matching
	// ErrChannelUnavailable are not about the request itself.
	Subscribe(req models.MSubscriptionRequest) (IChannelSubscription, error)

	// Unsubscribe releases a binding; its event stream completes
	Unsubscribe(sub IChannelSubscription) error

	// UnsubscribeAll releases every binding and returns their requests
	UnsubscribeAll() []models.MSubscriptionRequest
}

// -----------------------------------------------------------------------------

// IChannelSubscription is one live binding of an item on the transport.
type IChannelSubscription interface {
	// Request returns what was subscribed
	Request() models.MSubscriptionRequest

	// Events delivers acknowledgements, updates and failures in order and is
	// closed when the binding ends.
	Events() <-chan models.MChannelEvent
}
