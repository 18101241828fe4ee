package factories

import (
	"fmt"

	"ig-streamer/src/config"
	"ig-streamer/src/interfaces"
	"ig-streamer/src/logger"
	"ig-streamer/src/transports"
)

// -----------------------------------------------------------------------------

// TransportFactory creates push transports based on configuration
type TransportFactory struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewTransportFactory creates a new TransportFactory instance
func NewTransportFactory(config *config.Config, logger *logger.Logger) *TransportFactory {
	return &TransportFactory{
		Name:   "TransportFactory",
		Config: config,
		Logger: logger,
	}
}

// -----------------------------------------------------------------------------

// CreateTransport creates the transport configured under streaming.transport
// using the dynamic registry. name identifies the instance in the logs.
func (tf *TransportFactory) CreateTransport(name string) (interfaces.ITransport, error) {
	transportType := tf.Config.Streaming.Transport
	if transportType == "" {
		transportType = transports.TypeLightstreamer
	}

	// Dynamically fetch the constructor from the transport package registry
	constructor, err := transports.GetConstructor(transportType)
	if err != nil {
		return nil, fmt.Errorf("%w (registered: %v)", err, transports.Registered())
	}

	transport, err := constructor(&tf.Config.Streaming, tf.Logger, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport %s: %w", name, err)
	}

	tf.Logger.Info("%s : successfully created transport %s of type %s",
		tf.Name,
		transport.GetName(),
		transport.GetType(),
	)

	return transport, nil
}
