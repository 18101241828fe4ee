package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ig-streamer/src/interfaces"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subscribeCall struct {
	id       int
	mode     models.MSubscriptionMode
	item     string
	fields   []string
	snapshot bool
}

type fakeTransport struct {
	mu           sync.Mutex
	listener     interfaces.ITransportListener
	connects     int
	subscribes   []subscribeCall
	unsubscribes []int
	subscribeErr error
	ackInline    bool
}

func (f *fakeTransport) GetName() string { return "fake" }
func (f *fakeTransport) GetType() string { return "fake" }
func (f *fakeTransport) IsRunning() bool { return true }
func (f *fakeTransport) SetListener(l interfaces.ITransportListener) {
	f.listener = l
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.listener.OnStatusChange("DISCONNECTED")
	return nil
}

func (f *fakeTransport) Subscribe(id int, mode models.MSubscriptionMode, item string, fields []string, snapshot bool) error {
	f.mu.Lock()
	if f.subscribeErr != nil {
		f.mu.Unlock()
		return f.subscribeErr
	}
	f.subscribes = append(f.subscribes, subscribeCall{id, mode, item, fields, snapshot})
	inline := f.ackInline
	f.mu.Unlock()
	if inline {
		f.listener.OnSubscribe(id)
	}
	return nil
}

func (f *fakeTransport) Unsubscribe(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, id)
	return nil
}

// -----------------------------------------------------------------------------

func newTestChannel(t *testing.T) (*Channel, *fakeTransport, *[]models.MConnectionStatus) {
	t.Helper()
	tr := &fakeTransport{}
	ch := NewChannel("channel", tr, logger.NewNopLogger())
	var mu sync.Mutex
	statuses := &[]models.MConnectionStatus{}
	ch.OnStatus(func(st models.MConnectionStatus) {
		mu.Lock()
		*statuses = append(*statuses, st)
		mu.Unlock()
	})
	return ch, tr, statuses
}

func request(item string, fields ...string) models.MSubscriptionRequest {
	return models.MSubscriptionRequest{
		MSubscriptionKey: models.MSubscriptionKey{Mode: models.ModeMerge, Item: item},
		Fields:           fields,
		Snapshot:         true,
	}
}

func next(t *testing.T, sub interfaces.IChannelSubscription) models.MChannelEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(time.Second):
		require.FailNow(t, "no event")
	}
	return models.MChannelEvent{}
}

func closed(t *testing.T, sub interfaces.IChannelSubscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.False(t, ok, "unexpected event %+v", ev)
	case <-time.After(time.Second):
		require.FailNow(t, "events not closed")
	}
}

// -----------------------------------------------------------------------------

func TestStatusMapping(t *testing.T) {
	ch, _, statuses := newTestChannel(t)

	for _, raw := range []string{"CONNECTING", "CONNECTED:STREAM-SENSING", "CONNECTED:WS-STREAMING", "bogus", "STALLED", "DISCONNECTED:TRYING-RECOVERY", "DISCONNECTED"} {
		ch.OnStatusChange(raw)
	}

	assert.Equal(t, []models.MConnectionStatus{
		models.Connecting(),
		models.ConnectedSensing(),
		models.ConnectedWebSocket(false),
		models.Stalled(),
		models.Disconnected(true),
		models.Disconnected(false),
	}, *statuses)
}

func TestSubscribeRequiresLiveSession(t *testing.T) {
	ch, tr, _ := newTestChannel(t)

	_, err := ch.Subscribe(request("MARKET:X", "BID"))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, interfaces.ErrChannelUnavailable)

	ch.OnStatusChange("CONNECTED:WS-STREAMING")
	_, err = ch.Subscribe(request("MARKET:X"))
	assert.Error(t, err, "empty field list")
	assert.NotErrorIs(t, err, interfaces.ErrChannelUnavailable)

	tr.subscribeErr = errors.New("socket closed")
	_, err = ch.Subscribe(request("MARKET:X", "BID"))
	assert.ErrorContains(t, err, "socket closed")
	assert.ErrorIs(t, err, interfaces.ErrChannelUnavailable)
	assert.Equal(t, 0, ch.Bindings())
}

func TestSubscribeAndUpdates(t *testing.T) {
	ch, tr, _ := newTestChannel(t)
	tr.ackInline = true
	ch.OnStatusChange("CONNECTED:WS-STREAMING")

	sub, err := ch.Subscribe(request("MARKET:X", "BID", "OFFER", "HIGH"))
	require.NoError(t, err)
	require.Len(t, tr.subscribes, 1)
	call := tr.subscribes[0]
	assert.Equal(t, "MARKET:X", call.item)
	assert.Equal(t, models.ModeMerge, call.mode)
	assert.True(t, call.snapshot)

	assert.Equal(t, models.ChannelSubscribed, next(t, sub).Kind)

	ch.OnItemUpdate(call.id, 1, []models.MRawValue{models.Set("1.1"), models.Unchanged(), models.Null()})
	ev := next(t, sub)
	require.Equal(t, models.ChannelUpdate, ev.Kind)
	assert.Equal(t, "MARKET:X", ev.Update.Item)
	assert.Equal(t, []string{"BID", "OFFER", "HIGH"}, ev.Update.Order)
	assert.Equal(t, models.Set("1.1"), ev.Update.Fields["BID"])
	assert.Equal(t, models.Unchanged(), ev.Update.Fields["OFFER"])
	assert.Equal(t, models.Null(), ev.Update.Fields["HIGH"])

	// extra values are ignored
	ch.OnItemUpdate(call.id, 1, []models.MRawValue{models.Set("1"), models.Set("2"), models.Set("3"), models.Set("4")})
	assert.Len(t, next(t, sub).Update.Fields, 3)

	// unknown ids are ignored
	ch.OnItemUpdate(99, 1, []models.MRawValue{models.Set("1")})
	ch.OnSubscribe(99)
}

func TestUnsubscribe(t *testing.T) {
	ch, tr, _ := newTestChannel(t)
	ch.OnStatusChange("CONNECTED:WS-STREAMING")

	sub, err := ch.Subscribe(request("MARKET:X", "BID"))
	require.NoError(t, err)
	require.NoError(t, ch.Unsubscribe(sub))
	assert.Equal(t, []int{tr.subscribes[0].id}, tr.unsubscribes)
	assert.Equal(t, models.ChannelUnsubscribed, next(t, sub).Kind)
	closed(t, sub)

	// second release is a no-op
	require.NoError(t, ch.Unsubscribe(sub))
	assert.Len(t, tr.unsubscribes, 1)

	other := NewChannel("other", &fakeTransport{}, logger.NewNopLogger())
	assert.ErrorIs(t, other.Unsubscribe(sub), ErrForeignSubscription)
}

func TestSubscribeErrorFromServer(t *testing.T) {
	ch, tr, _ := newTestChannel(t)
	ch.OnStatusChange("CONNECTED:WS-STREAMING")

	sub, err := ch.Subscribe(request("MARKET:NOPE", "BID"))
	require.NoError(t, err)
	ch.OnSubscribeError(tr.subscribes[0].id, 19, "Item not found")

	ev := next(t, sub)
	require.Equal(t, models.ChannelFailed, ev.Kind)
	var serr *SubscriptionError
	require.ErrorAs(t, ev.Err, &serr)
	assert.Equal(t, 19, serr.Code)
	closed(t, sub)
	assert.Equal(t, 0, ch.Bindings())
}

func TestSessionLossForgetsBindings(t *testing.T) {
	ch, tr, _ := newTestChannel(t)
	ch.OnStatusChange("CONNECTED:WS-STREAMING")

	sub, err := ch.Subscribe(request("MARKET:X", "BID"))
	require.NoError(t, err)

	ch.OnStatusChange("DISCONNECTED:WILL-RETRY")
	closed(t, sub)
	assert.Equal(t, 0, ch.Bindings())

	// releasing a forgotten binding does not reach the transport
	require.NoError(t, ch.Unsubscribe(sub))
	assert.Empty(t, tr.unsubscribes)

	_, err = ch.Subscribe(request("MARKET:X", "BID"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestUnsubscribeAll(t *testing.T) {
	ch, tr, _ := newTestChannel(t)
	ch.OnStatusChange("CONNECTED:WS-STREAMING")

	a, err := ch.Subscribe(request("MARKET:A", "BID"))
	require.NoError(t, err)
	b, err := ch.Subscribe(request("MARKET:B", "BID"))
	require.NoError(t, err)

	reqs := ch.UnsubscribeAll()
	require.Len(t, reqs, 2)
	assert.Equal(t, "MARKET:A", reqs[0].Item)
	assert.Equal(t, "MARKET:B", reqs[1].Item)
	assert.Len(t, tr.unsubscribes, 2)

	for _, sub := range []interfaces.IChannelSubscription{a, b} {
		assert.Equal(t, models.ChannelUnsubscribed, next(t, sub).Kind)
		closed(t, sub)
	}

	// server confirmation of the deletions is ignored
	ch.OnUnsubscribe(tr.subscribes[0].id)
	assert.Empty(t, ch.UnsubscribeAll())
}

func TestConnectDelegates(t *testing.T) {
	ch, tr, statuses := newTestChannel(t)
	require.NoError(t, ch.Connect())
	assert.Equal(t, 1, tr.connects)

	require.NoError(t, ch.Disconnect())
	assert.Equal(t, []models.MConnectionStatus{models.Disconnected(false)}, *statuses)
}
