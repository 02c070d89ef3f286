package notify

import "errors"

var (
	// ErrStreamClosed is returned by Stream.Deliver after Close.
	ErrStreamClosed = errors.New("notify: stream closed")

	// ErrSubscriberPanic wraps a panic raised inside a subscriber.
	ErrSubscriberPanic = errors.New("notify: subscriber panicked")
)
