package ingestor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"ig-streamer/src/config"
	"ig-streamer/src/factories"
	"ig-streamer/src/interfaces"
	"ig-streamer/src/journal"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"
	"ig-streamer/src/publishers"
	"ig-streamer/src/serializers"
)

// -----------------------------------------------------------------------------
// Core Application and Configuration Structs
// -----------------------------------------------------------------------------

// Ingestor runs the streaming session of the configured account and hands
// every typed event to its sinks (NATS publisher, journal).
type Ingestor struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	// Publisher routes events to the message bus; nil when NATS is disabled
	Publisher *publishers.NATSPublisher
	// Journal keeps finished candles and deals; nil when disabled
	Journal *journal.Journal
	Source  *MarketDataSource

	mu      sync.RWMutex
	sinks   []interfaces.IEventSink
	stopped bool
	events  atomic.Uint64
}

var _ interfaces.IDataSource = (*Ingestor)(nil)

// -----------------------------------------------------------------------------

// NewIngestor creates the ingestor, the transport configured under
// streaming.transport and the sinks enabled in config.
func NewIngestor(cfg *config.Config, log *logger.Logger) (*Ingestor, error) {
	transport, err := factories.NewTransportFactory(cfg, log).CreateTransport(cfg.Name + "-" + cfg.Streaming.Transport)
	if err != nil {
		return nil, err
	}
	mdi := newIngestor(cfg, log, transport)

	if cfg.NATS.Enabled {
		serializer, err := serializers.New(cfg.NATS.Serializer)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS serializer: %w", err)
		}
		mdi.Publisher = publishers.NewNATSPublisher(&cfg.NATS, log, serializer)
		mdi.AddSink(mdi.Publisher)
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(&cfg.Journal, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		mdi.Journal = j
		mdi.AddSink(j)
	}

	return mdi, nil
}

func newIngestor(cfg *config.Config, log *logger.Logger, transport interfaces.ITransport) *Ingestor {
	mdi := &Ingestor{
		Name:   "StreamIngestor",
		Config: cfg,
		Logger: log,
	}
	mdi.Source = NewMarketDataSource(cfg, transport, log, mdi.dispatch)
	return mdi
}

// AddSink registers an additional event receiver. Must be called before Start.
func (mdi *Ingestor) AddSink(sink interfaces.IEventSink) {
	mdi.mu.Lock()
	mdi.sinks = append(mdi.sinks, sink)
	mdi.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Public Lifecycle Methods
// -----------------------------------------------------------------------------

func (mdi *Ingestor) GetName() string {
	return mdi.Name
}

// Start connects the publisher, then the streaming session and its
// configured subscriptions.
func (mdi *Ingestor) Start(ctx context.Context) error {
	mdi.Logger.Info("%s : starting stream ingestor", mdi.Name)

	// 1. Connect to publisher first - fail fast if publisher unavailable
	if mdi.Publisher != nil {
		mdi.Logger.Info("%s : connecting to publisher", mdi.Name)
		if err := mdi.Publisher.Connect(); err != nil {
			return fmt.Errorf("failed to connect to publisher: %w", err)
		}
	}

	// 2. Start the streaming session
	if err := mdi.Source.Start(ctx); err != nil {
		mdi.Logger.Error("%s : streaming source %s startup error: %v", mdi.Name, mdi.Source.GetName(), err)
		return err
	}

	mdi.Logger.Info("%s : ingestor started successfully", mdi.Name)
	return nil
}

// -----------------------------------------------------------------------------

// Stop shuts the streaming session down, then flushes and closes the sinks.
// It is idempotent.
func (mdi *Ingestor) Stop() error {
	mdi.mu.Lock()
	if mdi.stopped {
		mdi.mu.Unlock()
		return nil
	}
	mdi.stopped = true
	sinks := mdi.sinks
	mdi.mu.Unlock()

	mdi.Logger.Info("%s : stopping ingestor", mdi.Name)
	err := mdi.Source.Stop()
	if err != nil {
		mdi.Logger.Error("%s : %v", mdi.Name, err)
	}

	// Close sinks after the source has stopped
	for _, sink := range sinks {
		if cerr := sink.Close(); cerr != nil {
			mdi.Logger.Error("%s : failed to close sink: %v", mdi.Name, cerr)
		}
	}

	mdi.Logger.Info("%s : ingestor stopped after %d events", mdi.Name, mdi.events.Load())
	return err
}

// -----------------------------------------------------------------------------
// Status Methods
// -----------------------------------------------------------------------------

// GetStatus returns the session status and its subscriptions.
func (mdi *Ingestor) GetStatus() *models.MSessionStatus {
	return mdi.Source.GetStatus()
}

// WatchStatus streams status changes, starting with the current one, until
// ctx is done or the session closes.
func (mdi *Ingestor) WatchStatus(ctx context.Context) <-chan models.MConnectionStatus {
	sub := mdi.Source.Session.StatusStream()
	out := make(chan models.MConnectionStatus)

	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case st, ok := <-sub.C():
				if !ok {
					return
				}
				select {
				case out <- st:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Subscriptions returns the registry view of the session.
func (mdi *Ingestor) Subscriptions(ctx context.Context) ([]models.MSubscriptionInfo, error) {
	return mdi.Source.Session.Subscriptions(ctx)
}

// Stats returns the event counters of the ingestor and its sinks.
func (mdi *Ingestor) Stats() models.MIngestorStats {
	stats := models.MIngestorStats{Events: mdi.events.Load()}
	if mdi.Publisher != nil {
		p := mdi.Publisher.Stats()
		stats.Publisher = &p
	}
	if mdi.Journal != nil {
		j := mdi.Journal.Stats()
		stats.Journal = &j
	}
	return stats
}

// -----------------------------------------------------------------------------
// Private/Helper Methods
// -----------------------------------------------------------------------------

// dispatch hands one event to every sink.
func (mdi *Ingestor) dispatch(event *models.MStreamEvent) {
	mdi.events.Add(1)

	mdi.mu.RLock()
	defer mdi.mu.RUnlock()
	for _, sink := range mdi.sinks {
		sink.OnEvent(event)
	}
}
