package session

import (
	"sync"

	"ig-streamer/src/decoders"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------

// Listener receives the merged updates of one subscription. Deliver and
// Finish are called from the session goroutine and must not block.
type Listener interface {
	ID() string
	Deliver(update models.MItemUpdate)
	Finish(err error)
}

// DecodeFunc turns a merged update into a typed event. An event returned
// with a non-fatal error (see decoders.Fatal) is still delivered.
type DecodeFunc[T any] func(update models.MItemUpdate, required []string) (T, error)

// ListenerOptions sizes the per-listener queue.
type ListenerOptions struct {
	BufferSize int
	Overflow   models.MOverflowPolicy
}

// -----------------------------------------------------------------------------

// TypedListener decodes updates with its own required field set and hands the
// events to a consumer through a bounded queue drained by a pump goroutine.
type TypedListener[T any] struct {
	Name     string
	id       string
	required []string
	decode   DecodeFunc[T]
	opts     ListenerOptions
	logger   *logger.Logger

	mu       sync.Mutex
	queue    []T
	finished bool
	err      error
	dropped  uint64

	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	out      chan T
	done     chan struct{}
}

// -----------------------------------------------------------------------------

// NewListener starts a listener. required lists the fields that must have
// been received before an event is emitted.
func NewListener[T any](name string, decode DecodeFunc[T], required []string, opts ListenerOptions, log *logger.Logger) *TypedListener[T] {
	if opts.BufferSize < 1 {
		opts.BufferSize = 1
	}
	if opts.Overflow == "" {
		opts.Overflow = models.OverflowDropOldest
	}
	l := &TypedListener[T]{
		Name:     name,
		id:       uuid.NewString(),
		required: append([]string(nil), required...),
		decode:   decode,
		opts:     opts,
		logger:   log,
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		out:      make(chan T),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

// -----------------------------------------------------------------------------

func (l *TypedListener[T]) ID() string {
	return l.id
}

// Deliver decodes the update and enqueues the event. Decode failures are
// logged and dropped; the listener keeps running. Malformed optional fields
// are logged and the event is still delivered.
func (l *TypedListener[T]) Deliver(update models.MItemUpdate) {
	select {
	case <-l.stop:
		return
	default:
	}

	event, err := l.decode(update, l.required)
	if decoders.Fatal(err) {
		l.logger.Debug("%s : dropping update of %s: %v", l.Name, update.Key, err)
		return
	}
	if err != nil {
		l.logger.Debug("%s : update of %s delivered with %v", l.Name, update.Key, err)
	}
	l.enqueue(event)
}

// Finish completes the stream once the queued events are consumed.
func (l *TypedListener[T]) Finish(err error) {
	l.mu.Lock()
	if l.finished {
		l.mu.Unlock()
		return
	}
	l.finished = true
	l.err = err
	l.mu.Unlock()
	l.signal()
}

// -----------------------------------------------------------------------------

// Events returns the event channel; it is closed when the stream completes.
func (l *TypedListener[T]) Events() <-chan T {
	return l.out
}

// Done is closed after Events.
func (l *TypedListener[T]) Done() <-chan struct{} {
	return l.done
}

// Err returns the error the stream completed with, if any.
func (l *TypedListener[T]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Dropped returns how many events were discarded on overflow.
func (l *TypedListener[T]) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Stop ends delivery immediately, discarding queued events.
func (l *TypedListener[T]) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// -----------------------------------------------------------------------------

func (l *TypedListener[T]) enqueue(event T) {
	l.mu.Lock()
	if l.finished {
		l.mu.Unlock()
		return
	}
	if len(l.queue) >= l.opts.BufferSize {
		l.dropped++
		if l.opts.Overflow == models.OverflowDropNewest {
			l.mu.Unlock()
			return
		}
		l.queue = l.queue[1:]
	}
	l.queue = append(l.queue, event)
	l.mu.Unlock()
	l.signal()
}

func (l *TypedListener[T]) signal() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *TypedListener[T]) run() {
	defer close(l.done)
	defer close(l.out)

	for {
		l.mu.Lock()
		for len(l.queue) == 0 {
			if l.finished {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			select {
			case <-l.notify:
			case <-l.stop:
				return
			}
			l.mu.Lock()
		}
		event := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		select {
		case l.out <- event:
		case <-l.stop:
			return
		}
	}
}
