package session

import (
	"sync"

	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// statusHub broadcasts connection status with last-value replay. Adjacent
// duplicates are collapsed on publish.
type statusHub struct {
	mu      sync.Mutex
	current models.MConnectionStatus
	subs    map[*StatusSubscription]struct{}
	closed  bool
}

func newStatusHub(initial models.MConnectionStatus) *statusHub {
	return &statusHub{
		current: initial,
		subs:    make(map[*StatusSubscription]struct{}),
	}
}

func (h *statusHub) get() models.MConnectionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// publish returns false when st equals the current value.
func (h *statusHub) publish(st models.MConnectionStatus) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || st == h.current {
		return false
	}
	h.current = st
	for sub := range h.subs {
		sub.push(st)
	}
	return true
}

func (h *statusHub) subscribe(size int) *StatusSubscription {
	if size < 1 {
		size = 1
	}
	sub := &StatusSubscription{
		hub:    h,
		size:   size,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		out:    make(chan models.MConnectionStatus),
	}

	h.mu.Lock()
	if h.closed {
		sub.finish()
	} else {
		h.subs[sub] = struct{}{}
		sub.push(h.current)
	}
	h.mu.Unlock()

	go sub.run()
	return sub
}

func (h *statusHub) remove(sub *StatusSubscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (h *statusHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subs {
		sub.finish()
	}
	h.subs = make(map[*StatusSubscription]struct{})
}

// -----------------------------------------------------------------------------

// StatusSubscription is one consumer of the status stream. It owns a bounded
// queue; when full the oldest status is dropped. The stream is closed by
// Close or when the session closes.
type StatusSubscription struct {
	hub  *statusHub
	size int

	mu       sync.Mutex
	queue    []models.MConnectionStatus
	finished bool
	dropped  int

	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	out      chan models.MConnectionStatus
}

// C returns the status channel.
func (s *StatusSubscription) C() <-chan models.MConnectionStatus {
	return s.out
}

// Close detaches the subscription and closes its channel.
func (s *StatusSubscription) Close() {
	s.hub.remove(s)
	s.stopOnce.Do(func() { close(s.stop) })
}

// Dropped returns how many statuses were discarded on overflow.
func (s *StatusSubscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// -----------------------------------------------------------------------------

func (s *StatusSubscription) push(st models.MConnectionStatus) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	if n := len(s.queue); n > 0 && s.queue[n-1] == st {
		s.mu.Unlock()
		return
	}
	if len(s.queue) == s.size {
		s.queue = s.queue[1:]
		s.dropped++
	}
	s.queue = append(s.queue, st)
	s.mu.Unlock()
	s.signal()
}

func (s *StatusSubscription) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.signal()
}

func (s *StatusSubscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// run pumps the queue into out. Dropping from the queue head can line up two
// equal values, so they are collapsed here as well.
func (s *StatusSubscription) run() {
	defer close(s.out)

	var last models.MConnectionStatus
	sent := false
	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			if s.finished {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			select {
			case <-s.notify:
			case <-s.stop:
				return
			}
			s.mu.Lock()
		}
		st := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if sent && st == last {
			continue
		}
		select {
		case s.out <- st:
			last, sent = st, true
		case <-s.stop:
			return
		}
	}
}
