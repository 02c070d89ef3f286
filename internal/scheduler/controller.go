package scheduler

import (
	"container/list"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/swncrew-core/internal/mission"
	"github.com/nerrad567/swncrew-core/internal/notify"
)

// Topic names.
const (
	TopicCompleted  = "completed"
	TopicClassified = "classified"
)

const (
	defaultSinkTimeout = 5 * time.Second
	sinkBacklog        = 64
)

// Executor runs one mission. *Runner is the production implementation.
type Executor interface {
	Run(ctx context.Context, m mission.Mission) Outcome
}

// Config tunes the controller.
type Config struct {
	// StartActive is the initial value of the active flag.
	StartActive bool

	// MissionGap is a pause between two consecutive missions. Clearing the
	// active flag interrupts it.
	MissionGap time.Duration

	// SinkTimeout bounds each telemetry sink write.
	SinkTimeout time.Duration

	// DeliveryTimeout bounds each subscriber delivery. Completion records
	// are published on the scheduling loop, so a subscriber that is slow to
	// accept one delays the next mission by up to this long.
	DeliveryTimeout time.Duration
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	Active                bool             `json:"active"`
	Running               bool             `json:"running"`
	QueueLength           int              `json:"queue_length"`
	Current               *mission.Mission `json:"current,omitempty"`
	CompletedSubscribers  int              `json:"completed_subscribers"`
	ClassifiedSubscribers int              `json:"classified_subscribers"`
}

// Controller owns the mission queue and the loop that executes it.
//
// All state (queue, current mission, active flag) is guarded by one mutex;
// at most one loop goroutine exists at a time, so at most one mission runs.
type Controller struct {
	runner     Executor
	sinks      []TelemetrySink
	completed  *notify.Topic[mission.Completed]
	classified *notify.Topic[mission.Classified]
	logger     Logger
	cfg        Config

	mu          sync.Mutex
	queue       *list.List // of mission.Mission
	current     *mission.Mission
	active      bool
	running     bool // loop goroutine alive
	started     bool
	baseCtx     context.Context
	cancelPhase context.CancelFunc

	loops    sync.WaitGroup
	sinkCh   chan mission.Completed
	sinkDone chan struct{}
}

// NewController creates a mission queue controller.
//
// It does not execute anything until Start is called.
//
// Parameters:
//   - runner: Executes one mission at a time
//   - logger: Receives lifecycle and sink failure logs; nil discards them
//   - cfg: Queue behaviour; zero values fall back to defaults
//   - sinks: Telemetry sinks fed every completion record, in order
//
// Returns:
//   - *Controller: Idle controller ready to Start
//
// Thread Safety:
//   - All Controller methods are safe for concurrent use.
//   - Missions run one at a time on the controller's own goroutine.
func NewController(runner Executor, logger Logger, cfg Config, sinks ...TelemetrySink) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}

	topicOpts := []notify.Option{
		notify.WithDeliveryTimeout(cfg.DeliveryTimeout),
		notify.WithLogger(logger),
		notify.WithDropHook(recordSubscriberDropped),
	}

	recordActive(cfg.StartActive)
	return &Controller{
		runner:     runner,
		sinks:      sinks,
		completed:  notify.NewTopic[mission.Completed](TopicCompleted, topicOpts...),
		classified: notify.NewTopic[mission.Classified](TopicClassified, append(topicOpts, notify.WithReplay())...),
		logger:     logger,
		cfg:        cfg,
		queue:      list.New(),
		active:     cfg.StartActive,
		baseCtx:    context.Background(),
	}
}

// Start enables execution. Missions run under ctx; cancelling it stops the
// loop after the current mission's cleanup.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}
	c.started = true
	c.baseCtx = ctx
	c.sinkCh = make(chan mission.Completed, sinkBacklog)
	c.sinkDone = make(chan struct{})
	go c.drainSinks(c.sinkCh, c.sinkDone)

	c.maybeStartLocked()
	c.logger.Info("mission scheduler started", "active", c.active, "queued", c.queue.Len())
}

// Stop cancels the running mission, waits for its cleanup and completion
// record, and flushes pending telemetry. Queued missions stay queued.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	if c.cancelPhase != nil {
		c.cancelPhase()
	}
	sinkCh, sinkDone := c.sinkCh, c.sinkDone
	c.mu.Unlock()

	c.loops.Wait()
	close(sinkCh)
	<-sinkDone
	c.logger.Info("mission scheduler stopped")
}

// Enqueue validates every mission and, only if all pass, appends them to
// the queue in order. Missions without an ID are given one. The admitted
// missions are returned.
func (c *Controller) Enqueue(missions []mission.Mission) ([]mission.Mission, error) {
	admitted := make([]mission.Mission, 0, len(missions))
	for i, m := range missions {
		if err := mission.Validate(m); err != nil {
			return nil, fmt.Errorf("mission %d: %w", i, err)
		}
		m = cloneMission(m)
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		admitted = append(admitted, m)
	}

	c.mu.Lock()
	for _, m := range admitted {
		c.queue.PushBack(m)
	}
	queued := c.queue.Len()
	c.maybeStartLocked()
	c.mu.Unlock()

	recordQueueLength(queued)
	if len(admitted) > 0 {
		c.logger.Info("missions enqueued", "count", len(admitted), "queued", queued)
	}
	return slices.Clone(admitted), nil
}

// Current returns the mission being executed, if any.
func (c *Controller) Current() (mission.Mission, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return mission.Mission{}, false
	}
	return cloneMission(*c.current), true
}

// PeekNext returns the head of the queue without removing it.
func (c *Controller) PeekNext() (mission.Mission, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	front := c.queue.Front()
	if front == nil {
		return mission.Mission{}, false
	}
	return cloneMission(front.Value.(mission.Mission)), true
}

// QueueLength returns the number of pending missions, excluding the
// current one.
func (c *Controller) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Pending returns the queued missions in execution order.
func (c *Controller) Pending() []mission.Mission {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make([]mission.Mission, 0, c.queue.Len())
	for e := c.queue.Front(); e != nil; e = e.Next() {
		pending = append(pending, cloneMission(e.Value.(mission.Mission)))
	}
	return pending
}

// Active reports the active flag.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetActive sets the active flag and returns the resulting state.
//
// Clearing it cancels the running mission, which finishes through its
// cleanup path and is not returned to the queue, and holds the remaining
// queue until the flag is set again. Setting it starts the loop if
// missions are waiting.
func (c *Controller) SetActive(active bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.active != active
	c.active = active
	recordActive(active)

	if active {
		c.maybeStartLocked()
	} else if c.cancelPhase != nil {
		c.cancelPhase()
	}

	if changed {
		c.logger.Info("scheduler active flag changed", "active", active, "queued", c.queue.Len())
	}
	return c.active
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := Status{
		Active:      c.active,
		Running:     c.current != nil,
		QueueLength: c.queue.Len(),
	}
	if c.current != nil {
		m := cloneMission(*c.current)
		s.Current = &m
	}
	c.mu.Unlock()

	s.CompletedSubscribers = c.completed.Len()
	s.ClassifiedSubscribers = c.classified.Len()
	return s
}

// PostClassification accepts a classifier result, stores it as the last
// classified mission and publishes it to classified subscribers.
func (c *Controller) PostClassification(ctx context.Context, result mission.Classified) error {
	if err := mission.ValidateClassified(result); err != nil {
		return err
	}
	result.Mission = cloneMission(result.Mission)
	c.classified.Publish(ctx, result)
	c.logger.Info("classification received",
		"mission_id", result.Mission.ID,
		"predicted_end_use", result.PredictedEndUse,
	)
	return nil
}

// LastClassified returns the most recent classification result.
func (c *Controller) LastClassified() (mission.Classified, bool) {
	return c.classified.Last()
}

// LastCompleted returns the most recent completion record.
func (c *Controller) LastCompleted() (mission.Completed, bool) {
	return c.completed.Last()
}

// SubscribeCompleted registers s for future completion records. Earlier
// records are not replayed.
func (c *Controller) SubscribeCompleted(ctx context.Context, s notify.Subscriber[mission.Completed]) notify.Subscription {
	return c.completed.Subscribe(ctx, s)
}

// UnsubscribeCompleted removes a completed-topic subscription.
func (c *Controller) UnsubscribeCompleted(sub notify.Subscription) {
	c.completed.Unsubscribe(sub)
}

// SubscribeClassified registers s for classification results. The most
// recent result, if any, is delivered before SubscribeClassified returns.
func (c *Controller) SubscribeClassified(ctx context.Context, s notify.Subscriber[mission.Classified]) notify.Subscription {
	return c.classified.Subscribe(ctx, s)
}

// UnsubscribeClassified removes a classified-topic subscription.
func (c *Controller) UnsubscribeClassified(sub notify.Subscription) {
	c.classified.Unsubscribe(sub)
}

// maybeStartLocked launches the loop when idle, active, started and there
// is work. c.mu must be held.
func (c *Controller) maybeStartLocked() {
	if c.running || !c.canContinueLocked() {
		return
	}
	c.running = true
	c.loops.Add(1)
	go c.loop()
}

func (c *Controller) canContinueLocked() bool {
	return c.started && c.active && c.baseCtx.Err() == nil && c.queue.Len() > 0
}

func (c *Controller) loop() {
	defer c.loops.Done()

	for ran := false; ; ran = true {
		if ran && c.cfg.MissionGap > 0 {
			ctx, ok := c.beginGap()
			if !ok {
				return
			}
			sleep(ctx, c.cfg.MissionGap)
			c.endPhase()
		}

		m, ctx, ok := c.dequeue()
		if !ok {
			return
		}
		out := c.runner.Run(ctx, m)
		c.finish(m, out)
	}
}

func (c *Controller) beginGap() (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.canContinueLocked() {
		c.running = false
		return nil, false
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancelPhase = cancel
	return ctx, true
}

func (c *Controller) endPhase() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelPhase != nil {
		c.cancelPhase()
		c.cancelPhase = nil
	}
}

// dequeue moves the queue head into the current slot, or marks the loop
// as stopped when it should not continue.
func (c *Controller) dequeue() (mission.Mission, context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.canContinueLocked() {
		c.running = false
		return mission.Mission{}, nil, false
	}

	m := c.queue.Remove(c.queue.Front()).(mission.Mission)
	c.current = &m
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancelPhase = cancel
	recordQueueLength(c.queue.Len())

	c.logger.Info("mission started",
		"mission_id", m.ID,
		"valve_id", m.ValveID,
		"points", len(m.FlowTrajectory),
		"planned_duration", m.Duration(),
	)
	return m, ctx, true
}

// finish clears the current slot and emits the completion record.
func (c *Controller) finish(m mission.Mission, out Outcome) {
	rec := mission.Completed{
		Mission: m,
		StartTS: out.StartTS,
		EndTS:   out.EndTS,
		Status:  mission.StatusCompleted,
	}
	switch {
	case out.Err != nil:
		rec.Status = mission.StatusFailed
		rec.Error = out.Err.Error()
		c.logger.Error("mission failed", "mission_id", m.ID, "valve_id", m.ValveID, "error", out.Err)
	case out.Cancelled:
		rec.Status = mission.StatusCancelled
		c.logger.Warn("mission cancelled", "mission_id", m.ID, "valve_id", m.ValveID, "elapsed", rec.Elapsed())
	default:
		c.logger.Info("mission completed", "mission_id", m.ID, "valve_id", m.ValveID, "elapsed", rec.Elapsed())
	}

	c.mu.Lock()
	c.current = nil
	if c.cancelPhase != nil {
		c.cancelPhase()
		c.cancelPhase = nil
	}
	sinkCh := c.sinkCh
	c.mu.Unlock()

	recordCompleted(rec)

	select {
	case sinkCh <- rec:
	default:
		recordSinkFailure()
		c.logger.Warn("telemetry backlog full, completion record not recorded", "mission_id", m.ID)
	}

	c.completed.Publish(context.Background(), rec)
}

// drainSinks writes completion records to every sink in order, off the
// scheduling loop.
func (c *Controller) drainSinks(records <-chan mission.Completed, done chan<- struct{}) {
	defer close(done)

	for rec := range records {
		for _, sink := range c.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SinkTimeout)
			err := guardSink(ctx, sink, rec)
			cancel()
			if err != nil {
				recordSinkFailure()
				c.logger.Warn("telemetry sink failed", "mission_id", rec.Mission.ID, "sink", fmt.Sprintf("%T", sink), "error", err)
			}
		}
	}
}

func guardSink(ctx context.Context, sink TelemetrySink, rec mission.Completed) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrSinkPanic, p)
		}
	}()
	return sink.RecordCompletedMission(ctx, rec)
}

func cloneMission(m mission.Mission) mission.Mission {
	m.FlowTrajectory = slices.Clone(m.FlowTrajectory)
	if m.ActualEndUse != nil {
		v := *m.ActualEndUse
		m.ActualEndUse = &v
	}
	if m.DurationScalingFactor != nil {
		v := *m.DurationScalingFactor
		m.DurationScalingFactor = &v
	}
	if m.ActualStartTime != nil {
		v := *m.ActualStartTime
		m.ActualStartTime = &v
	}
	return m
}
