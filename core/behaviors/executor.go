package behaviors

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Actuator drives a single physical (or remote) head. Implementations
// must tolerate being called from the executor's runner goroutine.
type Actuator interface {
	SetTarget(ctx context.Context, pose Pose) error
}

// Outcome reports how an Execute call was resolved.
type Outcome int

const (
	// OutcomeAccepted means the sequence started on an idle executor.
	OutcomeAccepted Outcome = iota
	// OutcomeRejected means a higher-priority, non-interruptible sequence
	// was already running. Rejection is a normal arbitration result.
	OutcomeRejected
	// OutcomeInterrupted means the sequence started by displacing the
	// previously running one.
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Handle tracks a single accepted sequence execution.
type Handle struct {
	name     string
	done     chan struct{}
	displaced atomic.Bool
}

// Done is closed when the sequence finishes, whether it ran to completion
// or was stopped early.
func (h *Handle) Done() <-chan struct{} {
	if h == nil {
		return nil
	}
	return h.done
}

// Displaced reports whether the sequence was stopped before completing.
func (h *Handle) Displaced() bool {
	if h == nil {
		return false
	}
	return h.displaced.Load()
}

// Name returns the name of the sequence this handle tracks.
func (h *Handle) Name() string {
	if h == nil {
		return ""
	}
	return h.name
}

type running struct {
	sequence ActionSequence
	handle   *Handle
	stop     chan struct{}
	stopOnce sync.Once
	// displacedByNewer distinguishes an interrupt (the incoming sequence
	// takes over the actuator, including the neutral return) from a plain
	// StopCurrent (the runner itself settles back to neutral).
	displacedByNewer bool
}

func (r *running) signalStop(byNewer bool) {
	r.stopOnce.Do(func() {
		r.displacedByNewer = byNewer
		r.handle.displaced.Store(true)
		close(r.stop)
	})
}

// ExecutorOption configures a behavior executor.
type ExecutorOption func(*Executor)

// WithNeutralPose overrides the pose the head settles into after a
// sequence is stopped early.
func WithNeutralPose(pose Pose, duration time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.neutral = &Step{Pose: pose, Duration: duration, Blocking: true}
	}
}

// WithoutNeutralReturn disables the settle step after early stops.
func WithoutNeutralReturn() ExecutorOption {
	return func(e *Executor) { e.neutral = nil }
}

// ExecutorStats is a snapshot of executor counters.
type ExecutorStats struct {
	Executed    uint64 `json:"executed"`
	Interrupted uint64 `json:"interrupted"`
	Rejected    uint64 `json:"rejected"`
	Simulated   bool   `json:"simulated"`
	Running     string `json:"running,omitempty"`
}

// Executor owns a single actuator and runs at most one action sequence
// at a time. Conflicts are resolved by priority: an incoming sequence
// displaces the running one when it outranks it or the running one is
// interruptible, and is rejected otherwise.
type Executor struct {
	mu       sync.Mutex
	actuator Actuator
	neutral  *Step

	simulated bool
	current   *running

	executed    uint64
	interrupted uint64
	rejected    uint64
}

// NewExecutor creates an executor for the given actuator. A nil actuator
// puts the executor in simulated mode: sequences run with their full
// timing but no pose commands leave the process.
func NewExecutor(actuator Actuator, opts ...ExecutorOption) *Executor {
	neutral := Step{Duration: 500 * time.Millisecond, Blocking: true}
	e := &Executor{
		actuator: actuator,
		neutral:  &neutral,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.actuator == nil {
		e.simulated = true
		logger.Info("no actuator configured, running behaviors in simulated mode")
	}
	return e
}

// Execute attempts to start the sequence. It returns a handle tracking
// the run together with the arbitration outcome; on rejection the handle
// is nil.
func (e *Executor) Execute(ctx context.Context, sequence ActionSequence) (*Handle, Outcome) {
	ctx, span := tracer.Start(ctx, "behaviors.Execute", oteltrace.WithAttributes(
		attribute.String("behavior.name", sequence.Name),
		attribute.Int("behavior.priority", sequence.Priority),
	))
	defer span.End()

	e.mu.Lock()
	outcome := OutcomeAccepted
	prependNeutral := false
	if prev := e.current; prev != nil {
		if sequence.Priority > prev.sequence.Priority || prev.sequence.Interruptible {
			prev.signalStop(true)
			e.interrupted++
			outcome = OutcomeInterrupted
			prependNeutral = e.neutral != nil
			logger.InfoContext(ctx, "interrupting behavior",
				"running", prev.sequence.Name, "incoming", sequence.Name)
		} else {
			e.rejected++
			e.mu.Unlock()
			span.SetStatus(codes.Ok, "rejected")
			logger.InfoContext(ctx, "behavior rejected",
				"running", prev.sequence.Name, "incoming", sequence.Name)
			return nil, OutcomeRejected
		}
	}

	run := &running{
		sequence: sequence,
		handle:   &Handle{name: sequence.Name, done: make(chan struct{})},
		stop:     make(chan struct{}),
	}
	e.current = run
	e.mu.Unlock()

	go e.run(context.WithoutCancel(ctx), run, prependNeutral)
	return run.handle, outcome
}

// StopCurrent asks the running sequence, if any, to stop at its next step
// boundary. The stop is best effort: an in-flight blocking step finishes
// before the neutral return executes.
func (e *Executor) StopCurrent() {
	e.mu.Lock()
	prev := e.current
	e.mu.Unlock()
	if prev != nil {
		prev.signalStop(false)
	}
}

// Busy reports whether a sequence is currently running.
func (e *Executor) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Stats returns a snapshot of the executor counters.
func (e *Executor) Stats() ExecutorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := ExecutorStats{
		Executed:    e.executed,
		Interrupted: e.interrupted,
		Rejected:    e.rejected,
		Simulated:   e.simulated,
	}
	if e.current != nil {
		stats.Running = e.current.sequence.Name
	}
	return stats
}

func (e *Executor) run(ctx context.Context, run *running, prependNeutral bool) {
	defer close(run.handle.done)

	if prependNeutral {
		e.performStep(ctx, *e.neutral)
	}

	completed := true
	for _, step := range run.sequence.Steps {
		select {
		case <-run.stop:
			completed = false
		default:
		}
		if !completed {
			break
		}
		e.performStep(ctx, step)
	}

	e.mu.Lock()
	if e.current == run {
		e.current = nil
	}
	if completed {
		e.executed++
	}
	neutral := e.neutral
	e.mu.Unlock()

	// A sequence displaced by a newer one must not touch the actuator
	// again; the incoming sequence performs the neutral return itself.
	if !completed && !run.displacedByNewer && neutral != nil {
		e.performStep(ctx, *neutral)
	}
	if completed {
		logger.InfoContext(ctx, "behavior completed", "behavior", run.sequence.Name)
	}
}

func (e *Executor) performStep(ctx context.Context, step Step) {
	e.mu.Lock()
	actuator := e.actuator
	simulated := e.simulated
	e.mu.Unlock()

	if !simulated {
		if err := actuator.SetTarget(ctx, step.Pose); err != nil {
			e.mu.Lock()
			if !e.simulated {
				e.simulated = true
				logger.WarnContext(ctx, "actuator unavailable, falling back to simulated mode", "error", err)
			}
			e.mu.Unlock()
		}
	}
	if step.Blocking && step.Duration > 0 {
		timer := time.NewTimer(step.Duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
}
