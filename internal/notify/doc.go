// Package notify provides a typed publish/subscribe topic with
// per-subscriber failure isolation.
//
// Publish stores the value as the topic's last value and delivers it to
// every subscriber concurrently. A subscriber whose delivery fails, times
// out or panics is dropped from the topic; the publisher never sees the
// failure. A topic created WithReplay also hands its last value to each new
// subscriber at subscribe time.
//
//	completed := notify.NewTopic[mission.Completed]("completed")
//	classified := notify.NewTopic[mission.Classified]("classified", notify.WithReplay())
//
//	stream := notify.NewStream[mission.Classified](16)
//	sub := classified.Subscribe(ctx, stream)
//	defer classified.Unsubscribe(sub)
package notify
