package recognition

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/chelleboyer/reachy-recognizer/core/behaviors"
	"github.com/chelleboyer/reachy-recognizer/core/events"
	"github.com/chelleboyer/reachy-recognizer/core/greetings"
	"github.com/chelleboyer/reachy-recognizer/core/perception"
	"github.com/chelleboyer/reachy-recognizer/core/speech"
)

const latencyWindowSize = 100

type pendingGreeting struct {
	kind       greetings.Kind
	label      string
	confidence float64
	sequence   uint64
	emittedAt  time.Time
	queuedAt   time.Time
}

type coordinatorCounters struct {
	GreetingsStarted   uint64
	GreetingsCompleted uint64
	FarewellsSpoken    uint64
	SpeechFailures     uint64
	WatchdogTimeouts   uint64
}

// CoordinatorStats is a snapshot of coordinator state and latency
// figures. Latency is measured from event emission to response
// completion, speech included.
type CoordinatorStats struct {
	GreetingsStarted   uint64        `json:"greetings_started"`
	GreetingsCompleted uint64        `json:"greetings_completed"`
	FarewellsSpoken    uint64        `json:"farewells_spoken"`
	SpeechFailures     uint64        `json:"speech_failures"`
	WatchdogTimeouts   uint64        `json:"watchdog_timeouts"`
	GreetedCount       int           `json:"greeted_count"`
	PendingCount       int           `json:"pending_count"`
	Active             string        `json:"active,omitempty"`
	AverageLatency     time.Duration `json:"average_latency"`
	MinLatency         time.Duration `json:"min_latency"`
	MaxLatency         time.Duration `json:"max_latency"`
	WithinTarget       int           `json:"within_target"`
	LatencySamples     int           `json:"latency_samples"`
}

// Coordinator turns confirmed identity events into greeting responses:
// one gesture plus one spoken phrase per identity per session, highest
// confidence first when several identities confirm together.
type Coordinator struct {
	registry    *Registry
	synthesizer speech.Synthesizer
	executor    *behaviors.Executor
	selector    *greetings.Selector
	player      *greetingPlayer

	speechOffset    time.Duration
	targetLatency   time.Duration
	watchdogTimeout time.Duration
	batchWindow     time.Duration
	farewells       bool

	onActivity          func()
	onGreetingStarted   func(label, phrase string)
	onGreetingCompleted func(label string, latency time.Duration)

	// mu guards everything below.
	mu            sync.Mutex
	greeted       map[string]bool
	pending       []pendingGreeting
	active        string
	latencies     []time.Duration
	counters      coordinatorCounters
	subscriptions []SubscriptionID
}

// NewCoordinator creates a response coordinator wired to the registry.
// Call Start to subscribe and begin responding.
func NewCoordinator(registry *Registry, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry:    registry,
		synthesizer: speech.NewSimulated(),
		selector:    greetings.NewSelector(),

		speechOffset:    300 * time.Millisecond,
		targetLatency:   400 * time.Millisecond,
		watchdogTimeout: 5 * time.Second,
		batchWindow:     50 * time.Millisecond,

		onActivity:          func() {},
		onGreetingStarted:   func(string, string) {},
		onGreetingCompleted: func(string, time.Duration) {},

		greeted: map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.player = newGreetingPlayer(c.batchWindow)
	return c
}

// Start subscribes to identity events and launches the response loop.
func (c *Coordinator) Start(ctx context.Context) bool {
	if c == nil || !c.player.CanIngest() {
		return false
	}

	c.mu.Lock()
	if len(c.subscriptions) == 0 {
		for _, kind := range []events.Kind{
			events.KindIdentityRecognized,
			events.KindIdentityUnknown,
			events.KindIdentityDeparted,
			events.KindNoIdentitiesPresent,
		} {
			c.subscriptions = append(c.subscriptions, c.registry.Register(kind, c.handleEvent))
		}
	}
	c.mu.Unlock()

	return c.player.StartLoop(ctx, c.respondNext)
}

// Close unsubscribes, stops the response loop, and waits for an active
// greeting to finish.
func (c *Coordinator) Close() {
	if c == nil {
		return
	}

	c.mu.Lock()
	subscriptions := c.subscriptions
	c.subscriptions = nil
	c.mu.Unlock()

	for _, id := range subscriptions {
		c.registry.Unregister(id)
	}
	c.player.Stop()
	c.player.AwaitDone()
}

// ResetSession forgets every greeted identity and drops pending
// greetings. Event history and latency samples are not touched.
func (c *Coordinator) ResetSession() {
	c.mu.Lock()
	c.greeted = map[string]bool{}
	c.pending = nil
	c.mu.Unlock()

	c.selector.ResetSession()
	logger.Info("session reset, all identities forgotten")
}

// Stats returns a snapshot of the coordinator counters and latency
// figures.
func (c *Coordinator) Stats() CoordinatorStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CoordinatorStats{
		GreetedCount: len(c.greeted),
		PendingCount: len(c.pending),
		Active:       c.active,
	}
	_ = copier.Copy(&stats, &c.counters)

	var total time.Duration
	for i, latency := range c.latencies {
		total += latency
		if i == 0 || latency < stats.MinLatency {
			stats.MinLatency = latency
		}
		if latency > stats.MaxLatency {
			stats.MaxLatency = latency
		}
		if latency <= c.targetLatency {
			stats.WithinTarget++
		}
	}
	if stats.LatencySamples = len(c.latencies); stats.LatencySamples > 0 {
		stats.AverageLatency = total / time.Duration(stats.LatencySamples)
	}
	return stats
}

// HasGreeted reports whether the label was greeted this session.
func (c *Coordinator) HasGreeted(label string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.greeted[label]
}

func (c *Coordinator) handleEvent(event events.Event) {
	c.onActivity()

	switch event.Kind() {
	case events.KindIdentityRecognized, events.KindIdentityUnknown:
		c.enqueueGreeting(event)
	case events.KindIdentityDeparted:
		c.enqueueFarewell(event)
	case events.KindNoIdentitiesPresent:
		logger.Debug("scene empty")
	}
}

func (c *Coordinator) enqueueGreeting(event events.Event) {
	kind := greetings.KindRecognized
	if event.Kind() == events.KindIdentityUnknown {
		kind = greetings.KindUnknown
	}
	label := events.EventLabel(event)
	confidence := events.EventConfidence(event)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.greeted[label] || c.active == label {
		logger.Debug("already greeted, ignoring", "label", label)
		return
	}
	for i := range c.pending {
		if c.pending[i].label == label && c.pending[i].kind != greetings.KindDeparted {
			if confidence > c.pending[i].confidence {
				c.pending[i].confidence = confidence
			}
			return
		}
	}

	c.pending = append(c.pending, pendingGreeting{
		kind:       kind,
		label:      label,
		confidence: confidence,
		sequence:   event.Sequence(),
		emittedAt:  event.Timestamp(),
		queuedAt:   time.Now(),
	})
	c.player.Nudge()
}

func (c *Coordinator) enqueueFarewell(event events.Event) {
	if !c.farewells {
		return
	}
	label := events.EventLabel(event)
	if label == perception.UnknownLabel {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Only previously greeted identities get a farewell. The greeted set
	// itself stays intact so a returning identity is not greeted twice.
	if !c.greeted[label] {
		return
	}

	c.pending = append(c.pending, pendingGreeting{
		kind:      greetings.KindDeparted,
		label:     label,
		sequence:  event.Sequence(),
		emittedAt: event.Timestamp(),
		queuedAt:  time.Now(),
	})
	c.player.Nudge()
}

// respondNext pops the best pending greeting and responds to it. It
// returns false when the queue is empty.
func (c *Coordinator) respondNext(ctx context.Context) bool {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return false
	}

	sort.SliceStable(c.pending, func(i, j int) bool {
		if c.pending[i].confidence != c.pending[j].confidence {
			return c.pending[i].confidence > c.pending[j].confidence
		}
		return c.pending[i].sequence < c.pending[j].sequence
	})
	item := c.pending[0]
	c.pending = c.pending[1:]

	// Greeted is marked at response start. A duplicate confirmation
	// arriving while this greeting plays is dropped, not queued.
	if item.kind != greetings.KindDeparted {
		if c.greeted[item.label] {
			c.mu.Unlock()
			return true
		}
		c.greeted[item.label] = true
	}
	c.active = item.label
	c.counters.GreetingsStarted++
	c.mu.Unlock()

	c.respond(ctx, item)

	c.mu.Lock()
	c.active = ""
	c.mu.Unlock()
	return true
}

func (c *Coordinator) respond(ctx context.Context, item pendingGreeting) {
	ctx, span := tracer.Start(ctx, "coordinator.respond", oteltrace.WithAttributes(
		attribute.String("greeting.label", item.label),
		attribute.String("greeting.kind", string(item.kind)),
	))
	defer span.End()

	phrase := c.selector.Select(item.kind, item.label)
	c.onGreetingStarted(item.label, phrase)
	logger.InfoContext(ctx, "responding", "label", item.label, "phrase", phrase)

	if c.executor != nil {
		gesture := gestureFor(item.kind)
		if _, outcome := c.executor.Execute(ctx, gesture); outcome == behaviors.OutcomeRejected {
			// A higher-priority gesture holds the head. Speech still runs.
			logger.InfoContext(ctx, "gesture rejected, speaking without motion",
				"label", item.label, "gesture", gesture.Name)
		}
	}

	if c.speechOffset > 0 {
		timer := time.NewTimer(c.speechOffset)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	speechCtx, cancel := context.WithTimeout(ctx, c.watchdogTimeout)
	err := c.synthesizer.Speak(speechCtx, phrase)
	cancel()

	// The sample covers the whole response, emission to completion. A
	// watchdog timeout records the latency at the watchdog bound.
	latency := time.Since(item.emittedAt)
	c.recordLatency(ctx, latency)

	c.mu.Lock()
	switch {
	case err == nil:
	case speechCtx.Err() == context.DeadlineExceeded:
		c.counters.WatchdogTimeouts++
		c.counters.SpeechFailures++
	default:
		c.counters.SpeechFailures++
	}
	if item.kind == greetings.KindDeparted {
		c.counters.FarewellsSpoken++
	} else {
		c.counters.GreetingsCompleted++
	}
	c.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "speech failed", "label", item.label, "error", err)
	}
	c.onGreetingCompleted(item.label, latency)
}

func (c *Coordinator) recordLatency(ctx context.Context, latency time.Duration) {
	c.mu.Lock()
	c.latencies = append(c.latencies, latency)
	if len(c.latencies) > latencyWindowSize {
		c.latencies = c.latencies[len(c.latencies)-latencyWindowSize:]
	}
	target := c.targetLatency
	c.mu.Unlock()

	if latency > target {
		logger.WarnContext(ctx, "response latency above target",
			"latency", latency, "target", target)
	}
}

func gestureFor(kind greetings.Kind) behaviors.ActionSequence {
	switch kind {
	case greetings.KindRecognized:
		return behaviors.RecognizedGreeting()
	case greetings.KindDeparted:
		return behaviors.NeutralReturn()
	default:
		return behaviors.UnknownGreeting()
	}
}
