package notify

import (
	"context"
	"sync"
)

// Stream is a Subscriber that buffers values on a channel for a consumer
// goroutine, such as a WebSocket writer.
type Stream[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

// NewStream creates a stream holding up to buffer undelivered values.
func NewStream[T any](buffer int) *Stream[T] {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream[T]{
		ch:   make(chan T, buffer),
		done: make(chan struct{}),
	}
}

// Deliver queues v, waiting for buffer space until ctx is done.
func (s *Stream[T]) Deliver(ctx context.Context, v T) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	select {
	case s.ch <- v:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C returns the channel values arrive on. It is never closed; select on
// Done as well.
func (s *Stream[T]) C() <-chan T {
	return s.ch
}

// Done is closed by Close.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Close stops the stream. Later deliveries fail, which drops the stream
// from any topic it is subscribed to.
func (s *Stream[T]) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
