package interfaces

import "ig-streamer/src/models"

// -----------------------------------------------------------------------------

// IEventSink receives every typed event produced by the daemon
type IEventSink interface {
	// OnEvent handles one event; it must not block for long
	OnEvent(event *models.MStreamEvent)

	// Close flushes and releases the sink
	Close() error
}

// -----------------------------------------------------------------------------

// IPublisher defines the interface for publishing streamed events
type IPublisher interface {
	IEventSink

	// Connect establishes connection to the message broker
	Connect() error

	// Disconnect closes the connection to the message broker
	Disconnect() error

	// IsConnected returns the current connection status
	IsConnected() bool
}
