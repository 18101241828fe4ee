package session

import (
	"fmt"
	"sync"

	"ig-streamer/src/interfaces"
	"ig-streamer/src/models"
)

// fakeChannel records every call the session makes. With auto set it reports
// connected on Connect, disconnected on Disconnect and acknowledges each
// subscription. Requests naming rejectField are refused.
type fakeChannel struct {
	mu           sync.Mutex
	auto         bool
	statusFn     func(models.MConnectionStatus)
	connects     int
	disconnects  int
	subscribes   []models.MSubscriptionRequest
	unsubscribes []models.MSubscriptionRequest
	unsubAll     int
	live         []*fakeSub
	subscribeErr error
	rejectField  string
}

type fakeSub struct {
	req    models.MSubscriptionRequest
	events chan models.MChannelEvent
	once   sync.Once
}

func (s *fakeSub) Request() models.MSubscriptionRequest { return s.req }

func (s *fakeSub) Events() <-chan models.MChannelEvent { return s.events }

func (s *fakeSub) close() { s.once.Do(func() { close(s.events) }) }

func (s *fakeSub) update(values map[string]string) {
	upd := models.MRawUpdate{Item: s.req.Item, Fields: map[string]models.MRawValue{}}
	for _, f := range s.req.Fields {
		v, ok := values[f]
		if !ok {
			upd.Fields[f] = models.Unchanged()
			continue
		}
		upd.Fields[f] = models.Set(v)
	}
	upd.Order = s.req.Fields
	s.events <- models.MChannelEvent{Kind: models.ChannelUpdate, Update: upd}
}

// -----------------------------------------------------------------------------

func newFakeChannel(auto bool) *fakeChannel {
	return &fakeChannel{auto: auto}
}

func (f *fakeChannel) emit(st models.MConnectionStatus) {
	f.mu.Lock()
	fn := f.statusFn
	f.mu.Unlock()
	fn(st)
}

func (f *fakeChannel) Connect() error {
	f.mu.Lock()
	f.connects++
	auto := f.auto
	f.mu.Unlock()
	if auto {
		f.emit(models.Connecting())
		f.emit(models.ConnectedWebSocket(false))
	}
	return nil
}

func (f *fakeChannel) Disconnect() error {
	f.mu.Lock()
	f.disconnects++
	auto := f.auto
	f.mu.Unlock()
	if auto {
		f.emit(models.Disconnected(false))
	}
	return nil
}

func (f *fakeChannel) OnStatus(fn func(models.MConnectionStatus)) {
	f.mu.Lock()
	f.statusFn = fn
	f.mu.Unlock()
}

func (f *fakeChannel) Subscribe(req models.MSubscriptionRequest) (interfaces.IChannelSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	for _, field := range req.Fields {
		if f.rejectField != "" && field == f.rejectField {
			return nil, fmt.Errorf("field %s rejected", field)
		}
	}
	f.subscribes = append(f.subscribes, req)
	sub := &fakeSub{req: req, events: make(chan models.MChannelEvent, 64)}
	f.live = append(f.live, sub)
	if f.auto {
		sub.events <- models.MChannelEvent{Kind: models.ChannelSubscribed}
	}
	return sub, nil
}

func (f *fakeChannel) Unsubscribe(sub interfaces.IChannelSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fs := sub.(*fakeSub)
	f.unsubscribes = append(f.unsubscribes, fs.req)
	for i, s := range f.live {
		if s == fs {
			f.live = append(f.live[:i], f.live[i+1:]...)
			break
		}
	}
	fs.close()
	return nil
}

func (f *fakeChannel) UnsubscribeAll() []models.MSubscriptionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubAll++
	out := make([]models.MSubscriptionRequest, 0, len(f.live))
	for _, s := range f.live {
		out = append(out, s.req)
		s.close()
	}
	f.live = nil
	return out
}

// -----------------------------------------------------------------------------

func (f *fakeChannel) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeChannel) subscribeCount(item string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.subscribes {
		if r.Item == item {
			n++
		}
	}
	return n
}

func (f *fakeChannel) unsubscribeCount(item string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.unsubscribes {
		if r.Item == item {
			n++
		}
	}
	return n
}

func (f *fakeChannel) lastSub(item string) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.live) - 1; i >= 0; i-- {
		if f.live[i].req.Item == item {
			return f.live[i]
		}
	}
	return nil
}
