package session

import (
	"errors"
	"sort"

	"ig-streamer/src/interfaces"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// Handle identifies one registrant of a shared subscription.
type Handle struct {
	Key        models.MSubscriptionKey
	ListenerID string
}

// binding is one channel subscription of an entry. gen tags the events of
// the binding so events of a released binding can be recognised.
type binding struct {
	sub interfaces.IChannelSubscription
	gen uint64
}

// entry is one logical subscription shared by its listeners.
type entry struct {
	request   models.MSubscriptionRequest
	snapshot  models.MFieldSnapshot
	binding   *binding
	acked     bool
	waiters   []chan error
	listeners []Listener
	upgrade   *upgrade
}

// upgrade is a field-set change waiting for its acknowledgement. previous is
// the request the other listeners keep if it is rejected.
type upgrade struct {
	previous  models.MSubscriptionRequest
	listeners []string
	waiters   []chan error
}

// -----------------------------------------------------------------------------

// registry is the table of logical subscriptions. Every method runs on the
// session goroutine.
type registry struct {
	name    string
	channel interfaces.IChannel
	logger  *logger.Logger
	post    func(func()) error
	entries map[models.MSubscriptionKey]*entry
	gen     uint64
}

func newRegistry(name string, channel interfaces.IChannel, log *logger.Logger, post func(func()) error) *registry {
	return &registry{
		name:    name,
		channel: channel,
		logger:  log,
		post:    post,
		entries: make(map[models.MSubscriptionKey]*entry),
	}
}

// -----------------------------------------------------------------------------

// register attaches l to the entry of req, creating or upgrading it. res
// receives nil once the binding is acknowledged, or the failure. A binding
// the channel cannot make right now is retried on the next connection.
func (r *registry) register(req models.MSubscriptionRequest, l Listener, res chan error, connected bool) {
	key := req.MSubscriptionKey

	e, ok := r.entries[key]
	if !ok {
		e = &entry{
			request:   req,
			snapshot:  models.MFieldSnapshot{},
			waiters:   []chan error{res},
			listeners: []Listener{l},
		}
		if connected {
			if err := r.bindOrWait(e); err != nil {
				res <- &ValidationError{Key: key, Err: err}
				return
			}
		}
		r.entries[key] = e
		return
	}

	pendingOnly := e.upgrade != nil && !covers(e.upgrade.previous, req)
	if !covers(e.request, req) || pendingOnly {
		r.upgradeEntry(e, req, l, res, connected)
		return
	}

	e.listeners = append(e.listeners, l)
	if e.acked {
		res <- nil
		return
	}
	e.waiters = append(e.waiters, res)
	if connected && e.binding == nil {
		if err := r.bindOrWait(e); err != nil {
			r.reject(e, &ValidationError{Key: key, Err: err})
		}
	}
}

// upgradeEntry resubscribes e with the union of its fields and those of req.
// Until the union is acknowledged l and res belong to the upgrade, so a
// rejection only reaches them.
func (r *registry) upgradeEntry(e *entry, req models.MSubscriptionRequest, l Listener, res chan error, connected bool) {
	key := req.MSubscriptionKey
	if e.upgrade == nil {
		e.upgrade = &upgrade{previous: e.request}
	}
	e.upgrade.listeners = append(e.upgrade.listeners, l.ID())
	e.upgrade.waiters = append(e.upgrade.waiters, res)
	e.listeners = append(e.listeners, l)

	// already part of the pending union
	if covers(e.request, req) {
		if connected && e.binding == nil {
			if err := r.bindOrWait(e); err != nil {
				r.rollback(e, &ValidationError{Key: key, Err: err})
			}
		}
		return
	}

	e.request.Fields = models.FieldUnion(e.request.Fields, req.Fields)
	e.request.Snapshot = e.request.Snapshot || req.Snapshot
	r.logger.Info("%s : upgrading %s to fields %v", r.name, key, e.request.Fields)

	if e.binding == nil && !connected {
		return
	}
	r.release(e)
	e.snapshot = models.MFieldSnapshot{}
	if connected {
		if err := r.bindOrWait(e); err != nil {
			r.rollback(e, &ValidationError{Key: key, Err: err})
		}
	}
}

// rollback rejects the registrants of the pending upgrade of e and rebinds
// the request the other listeners were served with.
func (r *registry) rollback(e *entry, err error) {
	up := e.upgrade
	e.upgrade = nil
	key := e.request.MSubscriptionKey
	r.logger.Warning("%s : upgrade of %s rejected, keeping fields %v: %v", r.name, key, up.previous.Fields, err)

	for _, w := range up.waiters {
		w <- err
	}
	for _, id := range up.listeners {
		for i, l := range e.listeners {
			if l.ID() == id {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				l.Finish(err)
				break
			}
		}
	}

	r.release(e)
	e.request = up.previous
	e.snapshot = models.MFieldSnapshot{}
	if len(e.listeners) == 0 {
		r.resolve(e, err)
		delete(r.entries, key)
		return
	}
	if berr := r.bindOrWait(e); berr != nil {
		r.fail(e, &TransportError{Op: "subscribe", Err: berr})
	}
}

// reject ends a request the channel or the server refused: a pending
// upgrade is rolled back, otherwise the whole entry fails.
func (r *registry) reject(e *entry, err error) {
	if e.upgrade != nil {
		r.rollback(e, err)
		return
	}
	r.fail(e, err)
}

// -----------------------------------------------------------------------------

// unregister removes one listener; the last one releases the entry.
func (r *registry) unregister(h Handle) {
	e, ok := r.entries[h.Key]
	if !ok {
		return
	}
	for i, l := range e.listeners {
		if l.ID() == h.ListenerID {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			l.Finish(nil)
			break
		}
	}
	if len(e.listeners) > 0 {
		return
	}

	r.logger.Info("%s : last listener of %s gone, unsubscribing", r.name, h.Key)
	r.release(e)
	r.resolve(e, ErrUnsubscribed)
	delete(r.entries, h.Key)
}

// -----------------------------------------------------------------------------

// unsubscribeAll completes every listener without error and empties the table.
func (r *registry) unsubscribeAll() []models.MSubscriptionKey {
	keys := r.sortedKeys()
	for _, key := range keys {
		e := r.entries[key]
		e.binding = nil
		for _, l := range e.listeners {
			l.Finish(nil)
		}
		r.resolve(e, ErrUnsubscribed)
	}
	r.entries = make(map[models.MSubscriptionKey]*entry)

	released := r.channel.UnsubscribeAll()
	r.logger.Info("%s : unsubscribed %d entries (%d channel bindings)", r.name, len(keys), len(released))
	return keys
}

// -----------------------------------------------------------------------------

// onConnected binds entries. After a connection loss every entry is rebound
// with an empty snapshot; otherwise only unbound entries are. An entry the
// channel cannot bind yet stays registered for the next connection.
func (r *registry) onConnected(lost bool) {
	for _, key := range r.sortedKeys() {
		e := r.entries[key]
		if !lost && e.binding != nil {
			continue
		}
		r.release(e)
		e.snapshot = models.MFieldSnapshot{}
		if err := r.bindOrWait(e); err != nil {
			r.reject(e, &TransportError{Op: "resubscribe", Err: err})
		}
	}
}

// -----------------------------------------------------------------------------

// onEvent handles one event of a binding. Events of released bindings are
// ignored.
func (r *registry) onEvent(key models.MSubscriptionKey, gen uint64, ev models.MChannelEvent) {
	e, ok := r.entries[key]
	if !ok || e.binding == nil || e.binding.gen != gen {
		return
	}

	switch ev.Kind {
	case models.ChannelSubscribed:
		e.acked = true
		r.resolve(e, nil)

	case models.ChannelUpdate:
		next, changed := Merge(e.snapshot, ev.Update)
		e.snapshot = next
		if len(changed) == 0 {
			return
		}
		update := models.MItemUpdate{Key: key, Snapshot: next, Changed: changed}
		for _, l := range e.listeners {
			l.Deliver(update)
		}

	case models.ChannelFailed:
		r.logger.Error("%s : subscription %s rejected: %v", r.name, key, ev.Err)
		r.reject(e, &TransportError{Op: "subscribe", Err: ev.Err})

	case models.ChannelUnsubscribed:
		r.logger.Warning("%s : server dropped %s, rebinding on next connection", r.name, key)
		e.binding = nil
		e.acked = false
	}
}

// -----------------------------------------------------------------------------

func (r *registry) infos() []models.MSubscriptionInfo {
	keys := r.sortedKeys()
	out := make([]models.MSubscriptionInfo, 0, len(keys))
	for _, key := range keys {
		e := r.entries[key]
		out = append(out, models.MSubscriptionInfo{
			Key:          key,
			Fields:       append([]string(nil), e.request.Fields...),
			Snapshot:     e.request.Snapshot,
			Listeners:    len(e.listeners),
			Acknowledged: e.binding != nil && e.acked,
		})
	}
	return out
}

// shutdown completes every listener and drops the bindings.
func (r *registry) shutdown() {
	bound := false
	for _, e := range r.entries {
		if e.binding != nil {
			bound = true
		}
		for _, l := range e.listeners {
			l.Finish(nil)
		}
		r.resolve(e, ErrClosed)
	}
	r.entries = make(map[models.MSubscriptionKey]*entry)
	if bound {
		r.channel.UnsubscribeAll()
	}
}

// -----------------------------------------------------------------------------

func (r *registry) bind(e *entry) error {
	sub, err := r.channel.Subscribe(e.request)
	if err != nil {
		return err
	}
	r.gen++
	e.binding = &binding{sub: sub, gen: r.gen}
	e.acked = false
	go r.forward(e.request.MSubscriptionKey, r.gen, sub)
	return nil
}

// forward moves the events of one binding into the session goroutine. It
// drains the binding until the channel closes it.
func (r *registry) forward(key models.MSubscriptionKey, gen uint64, sub interfaces.IChannelSubscription) {
	for ev := range sub.Events() {
		_ = r.post(func() { r.onEvent(key, gen, ev) })
	}
}

// bindOrWait binds e. When the channel is unavailable e is left unbound
// and nil is returned; only a refused request is reported.
func (r *registry) bindOrWait(e *entry) error {
	err := r.bind(e)
	if err == nil || !errors.Is(err, interfaces.ErrChannelUnavailable) {
		return err
	}
	r.logger.Warning("%s : %s not bound (%v), waiting for the next connection", r.name, e.request.MSubscriptionKey, err)
	return nil
}

func (r *registry) release(e *entry) {
	if e.binding == nil {
		return
	}
	if err := r.channel.Unsubscribe(e.binding.sub); err != nil {
		r.logger.Warning("%s : failed to unsubscribe %s: %v", r.name, e.request.MSubscriptionKey, err)
	}
	e.binding = nil
	e.acked = false
}

func (r *registry) fail(e *entry, err error) {
	key := e.request.MSubscriptionKey
	r.resolve(e, err)
	for _, l := range e.listeners {
		l.Finish(err)
	}
	e.listeners = nil
	r.release(e)
	delete(r.entries, key)
}

// resolve answers every waiting registration of e, pending upgrade
// included.
func (r *registry) resolve(e *entry, err error) {
	for _, w := range e.waiters {
		w <- err
	}
	e.waiters = nil
	if e.upgrade != nil {
		for _, w := range e.upgrade.waiters {
			w <- err
		}
		e.upgrade = nil
	}
}

// covers reports whether a binding of have serves req.
func covers(have, req models.MSubscriptionRequest) bool {
	return models.FieldSubset(req.Fields, have.Fields) && (!req.Snapshot || have.Snapshot)
}

func (r *registry) sortedKeys() []models.MSubscriptionKey {
	keys := make([]models.MSubscriptionKey, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
