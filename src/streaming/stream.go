package streaming

import (
	"context"
	"errors"
	"sync"
	"time"

	"ig-streamer/src/models"
	"ig-streamer/src/session"
)

// closeTimeout bounds the unregistration done by Stream.Close.
const closeTimeout = 5 * time.Second

// -----------------------------------------------------------------------------

// Stream is the consumer side of one typed subscription.
type Stream[T any] struct {
	Key models.MSubscriptionKey

	session   *session.Session
	listener  *session.TypedListener[T]
	handle    *session.Handle
	closeOnce sync.Once
	closeErr  error
}

func newStream[T any](s *session.Session, l *session.TypedListener[T], h *session.Handle) *Stream[T] {
	return &Stream[T]{
		Key:      h.Key,
		session:  s,
		listener: l,
		handle:   h,
	}
}

// Events delivers the typed events. It is closed when the stream completes.
func (s *Stream[T]) Events() <-chan T {
	return s.listener.Events()
}

// Done is closed once the stream has completed.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.listener.Done()
}

// Err returns why the stream completed; nil for a normal completion.
func (s *Stream[T]) Err() error {
	return s.listener.Err()
}

// Dropped returns the number of events discarded because the consumer was
// too slow.
func (s *Stream[T]) Dropped() uint64 {
	return s.listener.Dropped()
}

// Close stops delivery immediately and releases the registration. The
// underlying item is unsubscribed when this was its last consumer.
func (s *Stream[T]) Close() error {
	s.closeOnce.Do(func() {
		s.listener.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := s.session.Unregister(ctx, s.handle); err != nil && !errors.Is(err, session.ErrClosed) {
			s.closeErr = err
		}
	})
	return s.closeErr
}
