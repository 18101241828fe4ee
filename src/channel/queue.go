package channel

import (
	"sync"

	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// eventQueue is an unbounded FIFO between the transport read loop and the
// consumer of a binding. push never blocks.
type eventQueue struct {
	mu     sync.Mutex
	items  []models.MChannelEvent
	closed bool
	notify chan struct{}
	out    chan models.MChannelEvent
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		notify: make(chan struct{}, 1),
		out:    make(chan models.MChannelEvent),
	}
	go q.run()
	return q
}

func (q *eventQueue) push(ev models.MChannelEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.signal()
}

// close ends the stream after the queued events.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			q.out <- ev
			continue
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
		<-q.notify
	}
}
