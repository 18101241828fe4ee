package session

import (
	"context"
	"sync"

	"ig-streamer/src/interfaces"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// Options configures a Session.
type Options struct {
	Name         string
	Listener     ListenerOptions
	StatusBuffer int
}

type connectResult struct {
	status models.MConnectionStatus
	err    error
}

// -----------------------------------------------------------------------------

// Session owns the connection state and the subscription registry of one
// channel. A single goroutine runs every state change; channel callbacks and
// API calls are posted to it as closures and run in FIFO order.
type Session struct {
	Name    string
	channel interfaces.IChannel
	logger  *logger.Logger
	opts    Options
	hub     *statusHub

	inboxMu sync.Mutex
	inbox   []func()
	wake    chan struct{}
	closed  bool
	done    chan struct{}

	// owned by the session goroutine
	status            models.MConnectionStatus
	lost              bool
	connectWaiters    []chan connectResult
	disconnectWaiters []chan error
	registry          *registry
}

// -----------------------------------------------------------------------------

// NewSession creates a session over channel and starts its goroutine.
func NewSession(channel interfaces.IChannel, opts Options, log *logger.Logger) *Session {
	if opts.Name == "" {
		opts.Name = "session"
	}
	if opts.StatusBuffer < 1 {
		opts.StatusBuffer = 16
	}

	s := &Session{
		Name:    opts.Name,
		channel: channel,
		logger:  log,
		opts:    opts,
		status:  models.Disconnected(false),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.hub = newStatusHub(s.status)
	s.registry = newRegistry(opts.Name, channel, log, s.post)

	channel.OnStatus(func(st models.MConnectionStatus) {
		_ = s.post(func() { s.onChannelStatus(st) })
	})

	go s.run()
	return s
}

// -----------------------------------------------------------------------------

// Connect opens the channel when the session is disconnected and waits until
// it is connected or the attempt ends disconnected. In any other status it
// returns the current status without touching the channel.
func (s *Session) Connect(ctx context.Context) (models.MConnectionStatus, error) {
	res := make(chan connectResult, 1)
	if err := s.post(func() { s.startConnect(res) }); err != nil {
		return s.Status(), err
	}

	select {
	case r := <-res:
		return r.status, r.err
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}
}

// -----------------------------------------------------------------------------

// Disconnect closes the channel and waits for the disconnected status.
// Subscriptions are kept and rebound on the next connection.
func (s *Session) Disconnect(ctx context.Context) error {
	res := make(chan error, 1)
	if err := s.post(func() { s.startDisconnect(res) }); err != nil {
		return err
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------

// Status returns the current connection status.
func (s *Session) Status() models.MConnectionStatus {
	return s.hub.get()
}

// StatusStream subscribes to status changes. The current status is delivered
// first; adjacent duplicates are never delivered.
func (s *Session) StatusStream() *StatusSubscription {
	return s.hub.subscribe(s.opts.StatusBuffer)
}

// ListenerOptions returns the delivery options new listeners should use.
func (s *Session) ListenerOptions() ListenerOptions {
	return s.opts.Listener
}

// -----------------------------------------------------------------------------

// Register attaches l to the subscription described by req and waits for the
// channel to acknowledge it. On error l is finished with that error.
func (s *Session) Register(ctx context.Context, req models.MSubscriptionRequest, l Listener) (*Handle, error) {
	if err := req.Validate(); err != nil {
		err = &ValidationError{Key: req.MSubscriptionKey, Err: err}
		l.Finish(err)
		return nil, err
	}

	res := make(chan error, 1)
	if err := s.post(func() { s.registry.register(req, l, res, s.status.IsConnected()) }); err != nil {
		l.Finish(err)
		return nil, err
	}

	handle := &Handle{Key: req.MSubscriptionKey, ListenerID: l.ID()}
	select {
	case err := <-res:
		if err != nil {
			l.Finish(err)
			return nil, err
		}
		return handle, nil
	case <-ctx.Done():
		l.Finish(ctx.Err())
		_ = s.Unregister(context.Background(), handle)
		return nil, ctx.Err()
	}
}

// Unregister detaches one listener; the last one unsubscribes the item.
func (s *Session) Unregister(ctx context.Context, h *Handle) error {
	return s.call(ctx, func() { s.registry.unregister(*h) })
}

// UnsubscribeAll tears down every subscription and returns their keys.
// Listener streams complete without error.
func (s *Session) UnsubscribeAll(ctx context.Context) ([]models.MSubscriptionKey, error) {
	var keys []models.MSubscriptionKey
	err := s.call(ctx, func() { keys = s.registry.unsubscribeAll() })
	return keys, err
}

// Subscriptions returns a view of the registry.
func (s *Session) Subscriptions(ctx context.Context) ([]models.MSubscriptionInfo, error) {
	var infos []models.MSubscriptionInfo
	err := s.call(ctx, func() { infos = s.registry.infos() })
	return infos, err
}

// -----------------------------------------------------------------------------

// Close stops the session goroutine, completes every listener and status
// stream and drops the channel bindings. The channel is not disconnected.
func (s *Session) Close() {
	s.inboxMu.Lock()
	if s.closed {
		s.inboxMu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.inbox = append(s.inbox, s.shutdown)
	s.inboxMu.Unlock()
	s.signal()

	<-s.done
	s.logger.Info("%s : closed", s.Name)
}

// -----------------------------------------------------------------------------

func (s *Session) post(fn func()) error {
	s.inboxMu.Lock()
	if s.closed {
		s.inboxMu.Unlock()
		return ErrClosed
	}
	s.inbox = append(s.inbox, fn)
	s.inboxMu.Unlock()
	s.signal()
	return nil
}

// call runs fn on the session goroutine and waits for it.
func (s *Session) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := s.post(func() { fn(); close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) run() {
	defer close(s.done)

	for {
		s.inboxMu.Lock()
		for len(s.inbox) == 0 {
			if s.closed {
				s.inboxMu.Unlock()
				return
			}
			s.inboxMu.Unlock()
			<-s.wake
			s.inboxMu.Lock()
		}
		batch := s.inbox
		s.inbox = nil
		s.inboxMu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Session) startConnect(res chan connectResult) {
	if s.status != models.Disconnected(false) {
		res <- connectResult{status: s.status}
		return
	}

	s.setStatus(models.Connecting())
	s.connectWaiters = append(s.connectWaiters, res)
	s.logger.Info("%s : connecting", s.Name)

	if err := s.channel.Connect(); err != nil {
		s.logger.Error("%s : channel connect failed: %v", s.Name, err)
		s.setStatus(models.Disconnected(false))
		s.resolveConnect(connectResult{status: s.status, err: &TransportError{Op: "connect", Err: err}})
	}
}

func (s *Session) startDisconnect(res chan error) {
	if s.status == models.Disconnected(false) {
		res <- nil
		return
	}

	s.setStatus(models.Disconnecting())
	s.disconnectWaiters = append(s.disconnectWaiters, res)
	s.logger.Info("%s : disconnecting", s.Name)

	if err := s.channel.Disconnect(); err != nil {
		s.logger.Error("%s : channel disconnect failed: %v", s.Name, err)
		s.resolveDisconnect(&TransportError{Op: "disconnect", Err: err})
		s.onChannelStatus(models.Disconnected(false))
	}
}

// -----------------------------------------------------------------------------

// onChannelStatus applies a status reported by the channel. A retrying
// disconnect or a stall marks the connection lost so the next connected
// status rebinds every subscription.
func (s *Session) onChannelStatus(st models.MConnectionStatus) {
	if !s.setStatus(st) {
		return
	}

	switch {
	case st.IsConnected():
		s.resolveConnect(connectResult{status: st})
		lost := s.lost
		s.lost = false
		s.registry.onConnected(lost)

	case st.Kind == models.StatusStalled:
		s.lost = true

	case st.IsDisconnected():
		s.lost = true
		if !st.Retrying {
			s.resolveConnect(connectResult{status: st, err: &TransportError{Op: "connect", Err: ErrDisconnected}})
			s.resolveDisconnect(nil)
		}
	}
}

func (s *Session) setStatus(st models.MConnectionStatus) bool {
	if st == s.status {
		return false
	}
	s.logger.Info("%s : status %s -> %s", s.Name, s.status, st)
	s.status = st
	s.hub.publish(st)
	return true
}

func (s *Session) resolveConnect(r connectResult) {
	for _, w := range s.connectWaiters {
		w <- r
	}
	s.connectWaiters = nil
}

func (s *Session) resolveDisconnect(err error) {
	for _, w := range s.disconnectWaiters {
		w <- err
	}
	s.disconnectWaiters = nil
}

func (s *Session) shutdown() {
	s.registry.shutdown()
	s.resolveConnect(connectResult{status: s.status, err: ErrClosed})
	s.resolveDisconnect(ErrClosed)
	s.hub.close()
}
