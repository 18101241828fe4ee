package channel

import (
	"context"
	"fmt"
	"sync"

	"ig-streamer/src/interfaces"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// Subscription is one binding of an item on the transport.
type Subscription struct {
	id    int
	owner *Channel
	req   models.MSubscriptionRequest
	queue *eventQueue
}

func (s *Subscription) Request() models.MSubscriptionRequest {
	return s.req
}

func (s *Subscription) Events() <-chan models.MChannelEvent {
	return s.queue.out
}

// -----------------------------------------------------------------------------

// Channel adapts an ITransport to the IChannel boundary: it maps transport
// status strings, allocates subscription ids and names positional values.
// All bindings are forgotten when the transport session is lost.
type Channel struct {
	Name      string
	transport interfaces.ITransport
	logger    *logger.Logger

	mu       sync.Mutex
	nextID   int
	bindings map[int]*Subscription
	live     bool
	statusFn func(models.MConnectionStatus)
}

// -----------------------------------------------------------------------------

// NewChannel wraps transport and installs itself as its listener.
func NewChannel(name string, transport interfaces.ITransport, log *logger.Logger) *Channel {
	c := &Channel{
		Name:      name,
		transport: transport,
		logger:    log,
		nextID:    1,
		bindings:  make(map[int]*Subscription),
	}
	transport.SetListener(c)
	return c
}

// -----------------------------------------------------------------------------

func (c *Channel) Connect() error {
	if err := c.transport.Connect(context.Background()); err != nil {
		return fmt.Errorf("%s : connect: %w", c.Name, err)
	}
	return nil
}

func (c *Channel) Disconnect() error {
	if err := c.transport.Disconnect(); err != nil {
		return fmt.Errorf("%s : disconnect: %w", c.Name, err)
	}
	return nil
}

func (c *Channel) OnStatus(fn func(models.MConnectionStatus)) {
	c.mu.Lock()
	c.statusFn = fn
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Subscribe validates req and sends it. The binding is registered before the
// request goes out so an immediate acknowledgement finds it.
func (c *Channel) Subscribe(req models.MSubscriptionRequest) (interfaces.IChannelSubscription, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if !c.live {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	sub := &Subscription{
		id:    c.nextID,
		owner: c,
		req:   req,
		queue: newEventQueue(),
	}
	c.nextID++
	c.bindings[sub.id] = sub
	c.mu.Unlock()

	if err := c.transport.Subscribe(sub.id, req.Mode, req.Item, req.Fields, req.Snapshot); err != nil {
		c.mu.Lock()
		delete(c.bindings, sub.id)
		c.mu.Unlock()
		sub.queue.close()
		return nil, fmt.Errorf("subscribe %s: %w: %w", req.MSubscriptionKey, interfaces.ErrChannelUnavailable, err)
	}

	c.logger.Debug("%s : subscribed %s as #%d fields=%v", c.Name, req.MSubscriptionKey, sub.id, req.Fields)
	return sub, nil
}

// -----------------------------------------------------------------------------

// Unsubscribe releases a binding. A binding already forgotten completes
// without a transport call.
func (c *Channel) Unsubscribe(s interfaces.IChannelSubscription) error {
	sub, ok := s.(*Subscription)
	if !ok || sub.owner != c {
		return ErrForeignSubscription
	}

	c.mu.Lock()
	_, bound := c.bindings[sub.id]
	delete(c.bindings, sub.id)
	live := c.live
	c.mu.Unlock()

	if !bound {
		sub.queue.close()
		return nil
	}

	var err error
	if live {
		err = c.transport.Unsubscribe(sub.id)
	}
	sub.queue.push(models.MChannelEvent{Kind: models.ChannelUnsubscribed})
	sub.queue.close()
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub.req.MSubscriptionKey, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// UnsubscribeAll releases every binding and returns their requests.
func (c *Channel) UnsubscribeAll() []models.MSubscriptionRequest {
	c.mu.Lock()
	subs := c.takeAll()
	live := c.live
	c.mu.Unlock()

	out := make([]models.MSubscriptionRequest, 0, len(subs))
	for _, sub := range subs {
		if live {
			if err := c.transport.Unsubscribe(sub.id); err != nil {
				c.logger.Warning("%s : failed to unsubscribe #%d: %v", c.Name, sub.id, err)
			}
		}
		sub.queue.push(models.MChannelEvent{Kind: models.ChannelUnsubscribed})
		sub.queue.close()
		out = append(out, sub.req)
	}
	return out
}

// -----------------------------------------------------------------------------

// Bindings returns the number of live bindings.
func (c *Channel) Bindings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bindings)
}

// -----------------------------------------------------------------------------
// ITransportListener

func (c *Channel) OnStatusChange(raw string) {
	st, err := models.ParseConnectionStatus(raw)
	if err != nil {
		c.logger.Warning("%s : ignoring status %q: %v", c.Name, raw, err)
		return
	}

	c.mu.Lock()
	var forgotten []*Subscription
	switch {
	case st.IsConnected():
		c.live = true
	case st.IsDisconnected():
		c.live = false
		forgotten = c.takeAll()
	}
	fn := c.statusFn
	c.mu.Unlock()

	for _, sub := range forgotten {
		sub.queue.close()
	}
	if len(forgotten) > 0 {
		c.logger.Info("%s : session lost, forgot %d bindings", c.Name, len(forgotten))
	}
	if fn != nil {
		fn(st)
	}
}

func (c *Channel) OnSubscribe(subID int) {
	if sub := c.lookup(subID); sub != nil {
		sub.queue.push(models.MChannelEvent{Kind: models.ChannelSubscribed})
	}
}

func (c *Channel) OnSubscribeError(subID int, code int, message string) {
	c.mu.Lock()
	sub := c.bindings[subID]
	delete(c.bindings, subID)
	c.mu.Unlock()
	if sub == nil {
		return
	}

	c.logger.Warning("%s : #%d %s rejected: %d %s", c.Name, subID, sub.req.MSubscriptionKey, code, message)
	sub.queue.push(models.MChannelEvent{Kind: models.ChannelFailed, Err: &SubscriptionError{Code: code, Message: message}})
	sub.queue.close()
}

func (c *Channel) OnUnsubscribe(subID int) {
	c.mu.Lock()
	sub := c.bindings[subID]
	delete(c.bindings, subID)
	c.mu.Unlock()
	if sub == nil {
		return
	}

	sub.queue.push(models.MChannelEvent{Kind: models.ChannelUnsubscribed})
	sub.queue.close()
}

// OnItemUpdate names the positional values with the subscribed field list.
func (c *Channel) OnItemUpdate(subID int, _ int, values []models.MRawValue) {
	sub := c.lookup(subID)
	if sub == nil {
		return
	}

	fields := sub.req.Fields
	if len(values) != len(fields) {
		c.logger.Warning("%s : #%d update carries %d values for %d fields", c.Name, subID, len(values), len(fields))
	}
	n := len(values)
	if n > len(fields) {
		n = len(fields)
	}

	upd := models.MRawUpdate{
		Item:   sub.req.Item,
		Fields: make(map[string]models.MRawValue, n),
		Order:  fields[:n],
	}
	for i := 0; i < n; i++ {
		upd.Fields[fields[i]] = values[i]
	}
	sub.queue.push(models.MChannelEvent{Kind: models.ChannelUpdate, Update: upd})
}

// -----------------------------------------------------------------------------

func (c *Channel) lookup(subID int) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bindings[subID]
}

// takeAll empties the binding table; c.mu must be held.
func (c *Channel) takeAll() []*Subscription {
	subs := make([]*Subscription, 0, len(c.bindings))
	for id := 1; id < c.nextID && len(subs) < len(c.bindings); id++ {
		if sub, ok := c.bindings[id]; ok {
			subs = append(subs, sub)
		}
	}
	c.bindings = make(map[int]*Subscription)
	return subs
}
