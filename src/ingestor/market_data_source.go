package ingestor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ig-streamer/src/channel"
	"ig-streamer/src/config"
	"ig-streamer/src/decoders"
	"ig-streamer/src/interfaces"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"
	"ig-streamer/src/session"
	"ig-streamer/src/streaming"

	"golang.org/x/sync/errgroup"
)

const stopTimeout = 10 * time.Second

// -----------------------------------------------------------------------------

// MarketDataSource holds the streaming pipeline of one account: transport,
// channel, session and the facades, plus the streams opened on them.
type MarketDataSource struct {
	Name      string
	Logger    *logger.Logger
	Config    *config.Config
	Transport interfaces.ITransport
	Session   *session.Session
	Client    *streaming.Client

	emit func(*models.MStreamEvent)

	mu      sync.Mutex
	closers []func() error
	wg      sync.WaitGroup
}

// -----------------------------------------------------------------------------

// NewMarketDataSource wires channel, session and facades over transport.
// Every decoded event is handed to emit.
func NewMarketDataSource(cfg *config.Config, transport interfaces.ITransport, log *logger.Logger, emit func(*models.MStreamEvent)) *MarketDataSource {
	name := cfg.Name
	ch := channel.NewChannel(name+"-channel", transport, log)
	sess := session.NewSession(ch, session.Options{
		Name: name + "-session",
		Listener: session.ListenerOptions{
			BufferSize: cfg.Delivery.BufferSize,
			Overflow:   cfg.Delivery.OverflowPolicy,
		},
	}, log)

	return &MarketDataSource{
		Name:      name,
		Logger:    log,
		Config:    cfg,
		Transport: transport,
		Session:   sess,
		Client:    streaming.NewClient(sess, log),
		emit:      emit,
	}
}

// -----------------------------------------------------------------------------

func (s *MarketDataSource) GetName() string {
	return s.Name
}

// -----------------------------------------------------------------------------

// Start connects the session and opens every configured subscription. It
// returns once all of them are acknowledged or rejected. Rejected items are
// logged and skipped; a refused connection aborts the start.
func (s *MarketDataSource) Start(ctx context.Context) error {
	subs := s.Config.Subscriptions
	s.Logger.Info("%s : starting streaming session, %d price, %d chart, %d market, %d account and %d deal subscriptions",
		s.Name, len(subs.Prices), len(subs.Charts), len(subs.Markets), len(subs.Accounts), len(subs.Deals))

	if _, err := s.Session.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect streaming session %s: %w", s.Name, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	open := func(what string, fn func(context.Context) error) {
		g.Go(func() error {
			err := fn(gctx)
			if err == nil {
				return nil
			}
			var te *session.TransportError
			if (errors.As(err, &te) && te.Op == "connect") || errors.Is(err, session.ErrClosed) || gctx.Err() != nil {
				return err
			}
			s.Logger.Error("%s : skipping %s: %v", s.Name, what, err)
			return nil
		})
	}

	for _, p := range subs.Prices {
		open("prices "+p.Epic, func(ctx context.Context) error {
			return s.SubscribePrices(ctx, p.Epic, p.Fields, p.Snapshot)
		})
	}
	for _, c := range subs.Charts {
		open("chart "+c.Epic+":"+c.Interval, func(ctx context.Context) error {
			return s.SubscribeChart(ctx, c.Epic, c.Interval, c.Fields)
		})
	}
	for _, m := range subs.Markets {
		open("market "+m.Epic, func(ctx context.Context) error {
			return s.SubscribeMarket(ctx, m.Epic, m.Fields)
		})
	}
	for _, a := range subs.Accounts {
		open("account "+a.AccountID, func(ctx context.Context) error {
			return s.SubscribeAccount(ctx, a.AccountID, a.Fields)
		})
	}
	for _, d := range subs.Deals {
		open("deals "+d.AccountID, func(ctx context.Context) error {
			return s.SubscribeDeals(ctx, d.AccountID, d.Fields)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to start streaming session %s: %w", s.Name, err)
	}
	s.Logger.Info("%s : streaming session started, %d streams open", s.Name, s.Streams())
	return nil
}

// -----------------------------------------------------------------------------

// Stop closes every stream, disconnects the session and releases it.
func (s *MarketDataSource) Stop() error {
	s.Logger.Info("%s : stopping streaming session", s.Name)

	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	for _, closeStream := range closers {
		if err := closeStream(); err != nil {
			s.Logger.Warning("%s : failed to close stream: %v", s.Name, err)
		}
	}
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := s.Session.Disconnect(ctx)
	if errors.Is(err, session.ErrClosed) {
		err = nil
	}
	s.Session.Close()

	if err != nil {
		return fmt.Errorf("failed to disconnect streaming session %s: %w", s.Name, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Subscription Methods
// -----------------------------------------------------------------------------

// SubscribePrices opens the tick stream of epic. selector names a field set
// of decoders.TickFields ("all", "day").
func (s *MarketDataSource) SubscribePrices(ctx context.Context, epic, selector string, snapshot bool) error {
	fields, err := decoders.Selector(models.EventTypeTick, selector)
	if err != nil {
		return err
	}
	stream, err := s.Client.Prices.Subscribe(ctx, epic, fields, snapshot)
	if err != nil {
		return err
	}
	pump(s, models.EventTypeTick, epic, stream)
	return nil
}

// SubscribeChart opens the candle stream of epic at interval.
func (s *MarketDataSource) SubscribeChart(ctx context.Context, epic, interval, selector string) error {
	fields, err := decoders.Selector(models.EventTypeCandle, selector)
	if err != nil {
		return err
	}
	stream, err := s.Client.Charts.Subscribe(ctx, epic, interval, fields)
	if err != nil {
		return err
	}
	pump(s, models.EventTypeCandle, epic+":"+interval, stream)
	return nil
}

// SubscribeMarket opens the market summary stream of epic.
func (s *MarketDataSource) SubscribeMarket(ctx context.Context, epic, selector string) error {
	fields, err := decoders.Selector(models.EventTypeMarket, selector)
	if err != nil {
		return err
	}
	stream, err := s.Client.Markets.Subscribe(ctx, epic, fields)
	if err != nil {
		return err
	}
	pump(s, models.EventTypeMarket, epic, stream)
	return nil
}

// SubscribeAccount opens the balance stream of accountID.
func (s *MarketDataSource) SubscribeAccount(ctx context.Context, accountID, selector string) error {
	fields, err := decoders.Selector(models.EventTypeAccount, selector)
	if err != nil {
		return err
	}
	stream, err := s.Client.Accounts.Subscribe(ctx, accountID, fields)
	if err != nil {
		return err
	}
	pump(s, models.EventTypeAccount, accountID, stream)
	return nil
}

// SubscribeDeals opens the trade notification stream of accountID.
func (s *MarketDataSource) SubscribeDeals(ctx context.Context, accountID, selector string) error {
	fields, err := decoders.Selector(models.EventTypeDeal, selector)
	if err != nil {
		return err
	}
	stream, err := s.Client.Deals.Subscribe(ctx, accountID, fields)
	if err != nil {
		return err
	}
	pump(s, models.EventTypeDeal, accountID, stream)
	return nil
}

// pump forwards the events of stream to the source until it completes.
func pump[T any](s *MarketDataSource, kind models.MEventType, key string, stream *streaming.Stream[T]) {
	s.mu.Lock()
	s.closers = append(s.closers, stream.Close)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ev := range stream.Events() {
			s.emit(&models.MStreamEvent{
				Type:       kind,
				Key:        key,
				ReceivedAt: time.Now().UTC(),
				Payload:    ev,
			})
		}
		if err := stream.Err(); err != nil {
			s.Logger.Warning("%s : %s stream %s ended: %v", s.Name, kind, key, err)
		} else {
			s.Logger.Debug("%s : %s stream %s completed", s.Name, kind, key)
		}
		if n := stream.Dropped(); n > 0 {
			s.Logger.Warning("%s : %s stream %s dropped %d events", s.Name, kind, key, n)
		}
	}()
}

// Streams returns how many streams this source opened.
func (s *MarketDataSource) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.closers)
}

// -----------------------------------------------------------------------------

func (s *MarketDataSource) GetStatus() *models.MSessionStatus {
	status := s.Session.Status()
	out := &models.MSessionStatus{
		Name:      s.Name,
		Status:    status.String(),
		Connected: status.IsConnected(),
		Endpoint:  s.Config.MaskedEndpoint(),
		AccountID: s.Config.Streaming.AccountID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if infos, err := s.Session.Subscriptions(ctx); err == nil {
		out.Subscriptions = infos
	}
	return out
}
