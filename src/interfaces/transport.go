package interfaces

import (
	"context"

	"ig-streamer/src/logger"
	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// ITransport is a raw push-protocol client. It speaks in subscription ids and
// positional field values; the channel adapter turns those into names.
type ITransport interface {
	// GetName returns the client name
	GetName() string

	// GetType returns the transport type
	GetType() string

	// SetListener installs the callback receiver. Must be set before Connect.
	SetListener(l ITransportListener)

	// Connect starts the session in the background; status changes are
	// reported to the listener.
	Connect(ctx context.Context) error

	// Disconnect closes the session and stops reconnecting
	Disconnect() error

	// IsRunning returns true between Connect and Disconnect
	IsRunning() bool

	// Subscribe sends a subscription request for one item
	Subscribe(subID int, mode models.MSubscriptionMode, item string, fields []string, snapshot bool) error

	// Unsubscribe sends a deletion request for a subscription
	Unsubscribe(subID int) error
}

// -----------------------------------------------------------------------------

// ITransportListener receives transport callbacks. Implementations must not
// block and must not call back into the transport while handling them.
type ITransportListener interface {
	OnStatusChange(status string)
	OnSubscribe(subID int)
	OnSubscribeError(subID int, code int, message string)
	OnUnsubscribe(subID int)
	OnItemUpdate(subID int, itemPos int, values []models.MRawValue)
}

// -----------------------------------------------------------------------------

// ITransportConstructor builds a transport from the streaming configuration.
// Implementations register one under their type name.
type ITransportConstructor func(config *models.MStreamingConfig, logger *logger.Logger, name string) (ITransport, error)
