package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects delivered values.
type recorder struct {
	mu  sync.Mutex
	got []int
	err error
}

func (r *recorder) Deliver(_ context.Context, v int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, v)
	return nil
}

func (r *recorder) values() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.got...)
}

func TestTopic_PublishDeliversToAll(t *testing.T) {
	topic := NewTopic[int]("completed")
	a, b := &recorder{}, &recorder{}
	topic.Subscribe(context.Background(), a)
	topic.Subscribe(context.Background(), b)

	topic.Publish(context.Background(), 1)
	topic.Publish(context.Background(), 2)

	assert.Equal(t, []int{1, 2}, a.values())
	assert.Equal(t, []int{1, 2}, b.values())
	assert.Equal(t, 2, topic.Len())
}

func TestTopic_NoReplayByDefault(t *testing.T) {
	topic := NewTopic[int]("completed")
	topic.Publish(context.Background(), 7)

	late := &recorder{}
	topic.Subscribe(context.Background(), late)

	assert.Empty(t, late.values())
	last, ok := topic.Last()
	assert.True(t, ok)
	assert.Equal(t, 7, last)
}

func TestTopic_ReplayOnSubscribe(t *testing.T) {
	topic := NewTopic[int]("classified", WithReplay())

	early := &recorder{}
	topic.Subscribe(context.Background(), early)
	assert.Empty(t, early.values(), "nothing to replay before the first publish")

	topic.Publish(context.Background(), 1)
	topic.Publish(context.Background(), 2)

	late := &recorder{}
	topic.Subscribe(context.Background(), late)

	assert.Equal(t, []int{1, 2}, early.values())
	assert.Equal(t, []int{2}, late.values())

	topic.Publish(context.Background(), 3)
	assert.Equal(t, []int{2, 3}, late.values())
}

func TestTopic_FailedSubscriberIsDropped(t *testing.T) {
	var dropped atomic.Int32
	topic := NewTopic[int]("completed", WithDropHook(func(string, error) { dropped.Add(1) }))

	healthy := &recorder{}
	broken := &recorder{err: errors.New("connection reset")}
	topic.Subscribe(context.Background(), healthy)
	topic.Subscribe(context.Background(), broken)

	topic.Publish(context.Background(), 1)
	topic.Publish(context.Background(), 2)

	assert.Equal(t, []int{1, 2}, healthy.values())
	assert.Equal(t, 1, topic.Len())
	assert.Equal(t, int32(1), dropped.Load())
}

func TestTopic_PanickingSubscriberIsDropped(t *testing.T) {
	topic := NewTopic[int]("completed")
	healthy := &recorder{}
	topic.Subscribe(context.Background(), healthy)
	topic.Subscribe(context.Background(), SubscriberFunc[int](func(context.Context, int) error {
		panic("boom")
	}))

	require.NotPanics(t, func() { topic.Publish(context.Background(), 1) })
	assert.Equal(t, []int{1}, healthy.values())
	assert.Equal(t, 1, topic.Len())
}

func TestTopic_SlowSubscriberTimesOut(t *testing.T) {
	topic := NewTopic[int]("completed", WithDeliveryTimeout(50*time.Millisecond))
	healthy := &recorder{}
	topic.Subscribe(context.Background(), healthy)
	topic.Subscribe(context.Background(), SubscriberFunc[int](func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	topic.Publish(context.Background(), 1)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []int{1}, healthy.values())
	assert.Equal(t, 1, topic.Len())
}

func TestTopic_SubscriberIgnoringContextIsAbandoned(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	var dropped atomic.Int32
	topic := NewTopic[int]("completed",
		WithDeliveryTimeout(50*time.Millisecond),
		WithDropHook(func(string, error) { dropped.Add(1) }),
	)
	healthy := &recorder{}
	topic.Subscribe(context.Background(), healthy)
	topic.Subscribe(context.Background(), SubscriberFunc[int](func(context.Context, int) error {
		<-block
		return nil
	}))

	start := time.Now()
	topic.Publish(context.Background(), 1)
	assert.Less(t, time.Since(start), time.Second)

	topic.Publish(context.Background(), 2)
	assert.Equal(t, []int{1, 2}, healthy.values())
	assert.Equal(t, 1, topic.Len())
	assert.Equal(t, int32(1), dropped.Load())
}

func TestTopic_DeliveriesRunConcurrently(t *testing.T) {
	topic := NewTopic[int]("completed")
	const subscribers = 5
	var inFlight, peak atomic.Int32

	for i := 0; i < subscribers; i++ {
		topic.Subscribe(context.Background(), SubscriberFunc[int](func(context.Context, int) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		}))
	}

	topic.Publish(context.Background(), 1)
	assert.Greater(t, peak.Load(), int32(1))
}

func TestTopic_FailedReplayDropsSubscriber(t *testing.T) {
	topic := NewTopic[int]("classified", WithReplay())
	topic.Publish(context.Background(), 1)

	sub := topic.Subscribe(context.Background(), &recorder{err: errors.New("closed")})

	assert.Equal(t, 0, topic.Len())
	topic.Unsubscribe(sub)
}

func TestTopic_UnsubscribeIdempotent(t *testing.T) {
	topic := NewTopic[int]("completed")
	r := &recorder{}
	sub := topic.Subscribe(context.Background(), r)
	assert.Equal(t, "completed", sub.Topic)

	topic.Unsubscribe(sub)
	topic.Unsubscribe(sub)
	topic.Unsubscribe(Subscription{ID: "unknown"})

	topic.Publish(context.Background(), 1)
	assert.Empty(t, r.values())
	assert.Equal(t, 0, topic.Len())
}

func TestTopic_PublishIgnoresCallerCancellation(t *testing.T) {
	topic := NewTopic[int]("completed")
	r := &recorder{}
	topic.Subscribe(context.Background(), r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	topic.Publish(ctx, 1)

	assert.Equal(t, []int{1}, r.values())
}
