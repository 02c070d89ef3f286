package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultDeliveryTimeout = 2 * time.Second

// Subscriber receives values published on a topic. Deliver should honour
// ctx; an error removes the subscriber from the topic.
type Subscriber[T any] interface {
	Deliver(ctx context.Context, v T) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc[T any] func(ctx context.Context, v T) error

// Deliver calls f(ctx, v).
func (f SubscriberFunc[T]) Deliver(ctx context.Context, v T) error {
	return f(ctx, v)
}

// Subscription identifies one registration on a topic.
type Subscription struct {
	ID    string
	Topic string
}

// Logger is the logging interface used by topics.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Option configures a Topic.
type Option func(*options)

type options struct {
	replay  bool
	timeout time.Duration
	logger  Logger
	onDrop  func(topic string, err error)
}

// WithReplay makes Subscribe deliver the last published value, if any, to
// the new subscriber.
func WithReplay() Option {
	return func(o *options) { o.replay = true }
}

// WithDeliveryTimeout bounds each Deliver call. A subscriber still busy
// when it expires is dropped and its call is abandoned. Non-positive
// values keep the default of two seconds.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger for dropped subscribers.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDropHook registers fn to be called whenever a subscriber is dropped
// after a failed delivery.
func WithDropHook(fn func(topic string, err error)) Option {
	return func(o *options) { o.onDrop = fn }
}

// Topic is a named broadcaster for values of type T.
//
// All methods are safe for concurrent use. Publish calls are serialised,
// so subscribers observe values in publish order.
type Topic[T any] struct {
	name string
	opts options

	// pubMu serialises Publish with replaying Subscribe calls so a new
	// subscriber cannot receive a stale replay after a newer value.
	pubMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]Subscriber[T]
	last    T
	hasLast bool
}

// NewTopic creates an empty topic.
func NewTopic[T any](name string, opts ...Option) *Topic[T] {
	o := options{timeout: defaultDeliveryTimeout, logger: noopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Topic[T]{
		name: name,
		opts: o,
		subs: make(map[string]Subscriber[T]),
	}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe registers s. On a replaying topic with a stored value, that
// value is delivered to s before Subscribe returns; if the replay fails s
// is dropped again and the returned Subscription is already inactive.
func (t *Topic[T]) Subscribe(ctx context.Context, s Subscriber[T]) Subscription {
	sub := Subscription{ID: uuid.NewString(), Topic: t.name}

	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	t.mu.Lock()
	t.subs[sub.ID] = s
	last, replay := t.last, t.opts.replay && t.hasLast
	t.mu.Unlock()

	if replay {
		if err := t.deliver(ctx, s, last); err != nil {
			t.drop(sub.ID, err)
		}
	}

	t.opts.logger.Debug("subscriber added", "topic", t.name, "subscription", sub.ID, "replayed", replay)
	return sub
}

// Unsubscribe removes a subscription. Removing an unknown or already
// removed subscription is a no-op.
func (t *Topic[T]) Unsubscribe(sub Subscription) {
	t.mu.Lock()
	delete(t.subs, sub.ID)
	t.mu.Unlock()
}

// Publish stores v as the last value and delivers it to every current
// subscriber concurrently, returning once all deliveries have finished or
// timed out. Failed subscribers are dropped.
func (t *Topic[T]) Publish(ctx context.Context, v T) {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	t.mu.Lock()
	t.last, t.hasLast = v, true
	targets := make(map[string]Subscriber[T], len(t.subs))
	for id, s := range t.subs {
		targets[id] = s
	}
	t.mu.Unlock()

	var wg sync.WaitGroup
	for id, s := range targets {
		wg.Add(1)
		go func(id string, s Subscriber[T]) {
			defer wg.Done()
			if err := t.deliver(ctx, s, v); err != nil {
				t.drop(id, err)
			}
		}(id, s)
	}
	wg.Wait()
}

// Last returns the most recently published value.
func (t *Topic[T]) Last() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// Len returns the number of active subscribers.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// deliver runs s.Deliver on its own goroutine and gives up when the
// delivery timeout expires, whether or not s honours ctx.
func (t *Topic[T]) deliver(ctx context.Context, s Subscriber[T], v T) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.opts.timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("%w: %v", ErrSubscriberPanic, r)
			}
		}()
		result <- s.Deliver(ctx, v)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Topic[T]) drop(id string, err error) {
	t.mu.Lock()
	_, present := t.subs[id]
	delete(t.subs, id)
	t.mu.Unlock()

	if !present {
		return
	}
	t.opts.logger.Warn("subscriber dropped", "topic", t.name, "subscription", id, "error", err)
	if t.opts.onDrop != nil {
		t.opts.onDrop(t.name, err)
	}
}
