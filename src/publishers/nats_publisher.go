package publishers

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ig-streamer/src/interfaces"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// -----------------------------------------------------------------------------

// NATSPublisher implements interfaces.IPublisher: every streamed event is
// serialized and sent to <prefix>.<type>.<key> over NATS Core or JetStream.
type NATSPublisher struct {
	name   string
	config *models.MNATSConfig
	logger *logger.Logger

	useJetStream bool

	mu sync.RWMutex

	nc         *nats.Conn             // NATS core connection
	js         nats.JetStreamContext  // JetStream context (if enabled)
	serializer interfaces.ISerializer // serialize message before sending

	connected atomic.Bool
	published atomic.Uint64
	failed    atomic.Uint64
}

var _ interfaces.IPublisher = (*NATSPublisher)(nil)

// -----------------------------------------------------------------------------

// NewNATSPublisher creates a new NATS publisher instance
func NewNATSPublisher(config *models.MNATSConfig, logger *logger.Logger, serializer interfaces.ISerializer) *NATSPublisher {
	return &NATSPublisher{
		name:   config.ClientID,
		config: config,
		logger: logger,

		serializer: serializer,
	}
}

// -----------------------------------------------------------------------------

// OnEvent publishes one event. Failures are logged and counted; the stream
// is never blocked by the broker.
func (np *NATSPublisher) OnEvent(event *models.MStreamEvent) {
	msg, err := np.buildMessage(event)
	if err != nil {
		np.failed.Add(1)
		np.logger.Error("%s : failed to serialize %s event for %s: %v", np.name, event.Type, event.Key, err)
		return
	}

	if np.useJetStream {
		err = np.PublishJetStream(msg)
	} else {
		err = np.Publish(msg)
	}

	if err != nil {
		np.failed.Add(1)
		np.logger.Error("%s : failed to publish %s event for %s to NATS subject %s: %v",
			np.name, event.Type, event.Key, msg.Subject, err)
		return
	}
	np.published.Add(1)
}

// buildMessage serializes event and fills the subject and headers.
func (np *NATSPublisher) buildMessage(event *models.MStreamEvent) (*nats.Msg, error) {
	data, err := np.serializer.Marshal(event)
	if err != nil {
		return nil, err
	}

	msg := nats.NewMsg(np.getSubject(Subject(event)))
	msg.Data = data
	msg.Header.Set("Content-Type", np.serializer.ContentType())
	msg.Header.Set("Ig-Event-Type", string(event.Type))
	if np.useJetStream {
		msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	}
	return msg, nil
}

// -----------------------------------------------------------------------------

// Publish sends a message to a NATS core subject.
func (np *NATSPublisher) Publish(msg *nats.Msg) error {
	if !np.IsConnected() {
		return fmt.Errorf("nats client not connected")
	}
	np.mu.RLock()
	nc := np.nc
	np.mu.RUnlock()

	// This is fire-and-forget; use PublishJetStream for persistence
	return nc.PublishMsg(msg)
}

// -----------------------------------------------------------------------------

// PublishJetStream sends a message using JetStream and waits for its ack.
func (np *NATSPublisher) PublishJetStream(msg *nats.Msg) error {
	if !np.IsConnected() {
		return fmt.Errorf("nats client not connected")
	}
	np.mu.RLock()
	js := np.js
	np.mu.RUnlock()
	if js == nil {
		return fmt.Errorf("jetstream is not initialized or enabled")
	}

	if _, err := js.PublishMsg(msg); err != nil {
		return fmt.Errorf("jetstream publish failed for %s: %w", msg.Subject, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Connect establishes connection to NATS server and sets up JetStream context if configured.
func (np *NATSPublisher) Connect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc != nil && np.nc.IsConnected() {
		return nil
	}
	if len(np.config.Servers) == 0 {
		return fmt.Errorf("no nats server configured")
	}

	opts := []nats.Option{
		nats.Name(np.config.ClientID),
		nats.Timeout(np.config.ConnectTimeout),
		nats.ReconnectWait(np.config.ReconnectWait),
		nats.MaxReconnects(np.config.MaxReconnects),
		nats.FlusherTimeout(np.config.FlushTimeout),

		// Connection Event Handlers
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(nc *nats.Conn) {
			np.logger.Info("%s : NATS connected to %s", np.name, nc.ConnectedUrl())
			np.connected.Store(true)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			np.logger.Warning("%s : NATS connection closed", np.name)
			np.connected.Store(false)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			np.logger.Warning("%s : NATS disconnected, attempting reconnect: %v", np.name, err)
			np.connected.Store(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			np.logger.Info("%s : NATS successfully reconnected to %s", np.name, nc.ConnectedUrl())
			np.connected.Store(true)
		}),
	}

	var err error
	np.nc, err = nats.Connect(strings.Join(np.config.Servers, ","), opts...)
	if err != nil {
		return fmt.Errorf("nats connection failed: %w", err)
	}

	if np.nc.IsConnected() {
		np.connected.Store(true)
	} else {
		np.logger.Warning("%s : NATS not reachable yet, retrying in background", np.name)
	}

	if np.config.JetStream != nil && np.config.JetStream.Enabled {
		np.useJetStream = true
		np.logger.Info("%s : publisher using NATS JetStream for persistent publishing (%s payloads)", np.name, np.serializer.Name())

		np.js, err = np.nc.JetStream()
		if err != nil {
			np.logger.Error("%s : failed to create JetStream context: %v", np.name, err)
			return fmt.Errorf("jetstream context creation failed: %w", err)
		}

		if err := np.ensureStreamExists(); err != nil {
			np.logger.Warning("%s : failed to ensure stream exists: %v (continuing anyway)", np.name, err)
		}
	} else {
		np.useJetStream = false
		np.logger.Info("%s : publisher using NATS Core (fire-and-forget, %s payloads)", np.name, np.serializer.Name())
	}

	return nil
}

// -----------------------------------------------------------------------------

// ensureStreamExists creates the JetStream stream when it is missing.
func (np *NATSPublisher) ensureStreamExists() error {
	if np.js == nil || np.config.JetStream == nil {
		return fmt.Errorf("jetstream not initialized")
	}

	streamName := np.config.JetStream.StreamName
	if streamName == "" {
		return fmt.Errorf("stream name not configured")
	}

	stream, err := np.js.StreamInfo(streamName)
	if err == nil {
		np.logger.Info("%s : JetStream stream '%s' already exists with %d subjects",
			np.name, streamName, len(stream.Config.Subjects))
		return nil
	}

	np.logger.Info("%s : creating JetStream stream '%s'", np.name, streamName)

	_, err = np.js.AddStream(np.streamConfig())
	if err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", streamName, err)
	}

	np.logger.Info("%s : created JetStream stream '%s' with subjects: %v",
		np.name, streamName, np.streamConfig().Subjects)
	return nil
}

// streamConfig builds the stream definition from configuration. Without
// explicit subjects the stream captures everything under the prefix.
func (np *NATSPublisher) streamConfig() *nats.StreamConfig {
	js := np.config.JetStream

	maxAge := js.MaxAge
	if maxAge == 0 {
		maxAge = 72 * time.Hour
	}
	subjects := js.Subjects
	if len(subjects) == 0 {
		subjects = []string{np.getSubject(">")}
	}

	return &nats.StreamConfig{
		Name:       js.StreamName,
		Subjects:   subjects,
		Retention:  nats.LimitsPolicy,
		Storage:    nats.FileStorage,
		Replicas:   js.Replicas,
		MaxAge:     maxAge,
		MaxMsgs:    js.MaxMsgs,
		MaxBytes:   js.MaxBytes,
		MaxMsgSize: int32(js.MaxMsgSize),
		Discard:    nats.DiscardOld,
		Duplicates: 2 * time.Minute,
	}
}

// -----------------------------------------------------------------------------

// Disconnect flushes pending messages and closes the NATS connection
func (np *NATSPublisher) Disconnect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc == nil || np.nc.IsClosed() {
		return nil
	}

	if np.nc.IsConnected() {
		timeout := np.config.FlushTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		if err := np.nc.FlushTimeout(timeout); err != nil {
			np.logger.Warning("%s : flush before close failed: %v", np.name, err)
		}
	}
	np.nc.Close()
	np.connected.Store(false)
	np.logger.Info("%s : NATS connection closed successfully", np.name)
	return nil
}

// Close implements interfaces.IEventSink.
func (np *NATSPublisher) Close() error {
	return np.Disconnect()
}

// -----------------------------------------------------------------------------

// IsConnected returns connection status
func (np *NATSPublisher) IsConnected() bool {
	return np.connected.Load()
}

// GetName returns client identifier
func (np *NATSPublisher) GetName() string {
	return np.name
}

// Stats returns the publish counters
func (np *NATSPublisher) Stats() models.MPublisherStats {
	return models.MPublisherStats{Published: np.published.Load(), Failed: np.failed.Load()}
}

// -----------------------------------------------------------------------------

// getSubject prepends the configured subject prefix if it exists.
func (np *NATSPublisher) getSubject(subject string) string {
	if np.config.SubjectPrefix != "" {
		return fmt.Sprintf("%s.%s", np.config.SubjectPrefix, subject)
	}
	return subject
}

// Subject returns the un-prefixed subject of an event: <type>.<key> in
// lower case type, the key's ':' turned into token separators and
// characters NATS reserves replaced.
func Subject(event *models.MStreamEvent) string {
	key := strings.Map(func(r rune) rune {
		switch r {
		case ':':
			return '.'
		case ' ', '\t', '*', '>':
			return '_'
		}
		return r
	}, event.Key)
	if key == "" {
		key = "_"
	}
	return strings.ToLower(string(event.Type)) + "." + key
}
