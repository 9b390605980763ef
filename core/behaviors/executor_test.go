package behaviors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingActuator struct {
	mu    sync.Mutex
	poses []Pose
	err   error
}

func (a *recordingActuator) SetTarget(_ context.Context, pose Pose) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.poses = append(a.poses, pose)
	return nil
}

func (a *recordingActuator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.poses)
}

func quickSequence(name string, priority int, interruptible bool, steps int) ActionSequence {
	seq := ActionSequence{Name: name, Priority: priority, Interruptible: interruptible}
	for i := 0; i < steps; i++ {
		seq.Steps = append(seq.Steps, Step{
			Pose:     Pose{Pitch: -5},
			Duration: 10 * time.Millisecond,
			Blocking: true,
		})
	}
	return seq
}

func awaitHandle(t *testing.T, handle *Handle) {
	t.Helper()
	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sequence to finish")
	}
}

func TestExecutorRunsSequenceToCompletion(t *testing.T) {
	actuator := &recordingActuator{}
	executor := NewExecutor(actuator, WithoutNeutralReturn())

	handle, outcome := executor.Execute(context.Background(), quickSequence("wave", 8, false, 3))
	if outcome != OutcomeAccepted {
		t.Fatalf("expected accepted, got %v", outcome)
	}
	awaitHandle(t, handle)

	if handle.Displaced() {
		t.Fatal("completed sequence should not be marked displaced")
	}
	if got := actuator.count(); got != 3 {
		t.Fatalf("expected 3 pose commands, got %d", got)
	}
	if stats := executor.Stats(); stats.Executed != 1 || stats.Running != "" {
		t.Fatalf("unexpected stats after completion: %+v", stats)
	}
}

func TestExecutorPriorityArbitration(t *testing.T) {
	executor := NewExecutor(nil, WithoutNeutralReturn())
	ctx := context.Background()

	// A low-priority interruptible drift yields to a greeting.
	driftHandle, outcome := executor.Execute(ctx, quickSequence("drift", 1, true, 50))
	if outcome != OutcomeAccepted {
		t.Fatalf("expected drift accepted, got %v", outcome)
	}
	greetHandle, outcome := executor.Execute(ctx, quickSequence("greet", 8, false, 2))
	if outcome != OutcomeInterrupted {
		t.Fatalf("expected greeting to interrupt drift, got %v", outcome)
	}
	awaitHandle(t, driftHandle)
	if !driftHandle.Displaced() {
		t.Fatal("drift should be marked displaced")
	}

	// A lower-priority sequence cannot displace a non-interruptible one.
	if handle, outcome := executor.Execute(ctx, quickSequence("nod", 7, true, 1)); outcome != OutcomeRejected {
		t.Fatalf("expected rejection, got %v", outcome)
	} else if handle != nil {
		t.Fatal("rejected execution should not return a handle")
	}
	awaitHandle(t, greetHandle)

	stats := executor.Stats()
	if stats.Interrupted != 1 || stats.Rejected != 1 {
		t.Fatalf("unexpected arbitration counters: %+v", stats)
	}
}

func TestExecutorEqualPriorityInterruptible(t *testing.T) {
	executor := NewExecutor(nil, WithoutNeutralReturn())
	ctx := context.Background()

	first, outcome := executor.Execute(ctx, quickSequence("tilt", 6, true, 50))
	if outcome != OutcomeAccepted {
		t.Fatalf("expected accepted, got %v", outcome)
	}
	// Equal priority still wins because the running sequence allows it.
	second, outcome := executor.Execute(ctx, quickSequence("tilt", 6, true, 1))
	if outcome != OutcomeInterrupted {
		t.Fatalf("expected interrupt of interruptible peer, got %v", outcome)
	}
	awaitHandle(t, first)
	awaitHandle(t, second)
}

func TestExecutorStopCurrentReturnsToNeutral(t *testing.T) {
	actuator := &recordingActuator{}
	executor := NewExecutor(actuator, WithNeutralPose(Pose{}, time.Millisecond))

	handle, _ := executor.Execute(context.Background(), quickSequence("drift", 1, true, 100))
	time.Sleep(25 * time.Millisecond)
	executor.StopCurrent()
	awaitHandle(t, handle)

	if !handle.Displaced() {
		t.Fatal("stopped sequence should be marked displaced")
	}
	actuator.mu.Lock()
	last := actuator.poses[len(actuator.poses)-1]
	actuator.mu.Unlock()
	if last != (Pose{}) {
		t.Fatalf("expected final pose to be neutral, got %+v", last)
	}
	if executor.Busy() {
		t.Fatal("executor should be idle after stop")
	}
}

func TestExecutorFallsBackToSimulatedOnActuatorFailure(t *testing.T) {
	actuator := &recordingActuator{err: errors.New("connection refused")}
	executor := NewExecutor(actuator, WithoutNeutralReturn())

	handle, outcome := executor.Execute(context.Background(), quickSequence("wave", 8, false, 2))
	if outcome != OutcomeAccepted {
		t.Fatalf("expected accepted, got %v", outcome)
	}
	awaitHandle(t, handle)

	stats := executor.Stats()
	if !stats.Simulated {
		t.Fatal("executor should degrade to simulated mode on actuator failure")
	}
	if stats.Executed != 1 {
		t.Fatalf("simulated execution should still count as completed, got %+v", stats)
	}
}

func TestIdleManagerDriftsAfterQuietPeriod(t *testing.T) {
	executor := NewExecutor(nil, WithoutNeutralReturn())
	manager := NewIdleManager(executor,
		WithIdleThreshold(50*time.Millisecond),
		WithIdleInterval(50*time.Millisecond),
	)
	manager.lastActivity.Store(time.Now().Add(-time.Second).UnixNano())

	manager.Start(context.Background())
	defer manager.Close()

	deadline := time.After(3 * time.Second)
	for executor.Stats().Executed == 0 && executor.Stats().Running == "" {
		select {
		case <-deadline:
			t.Fatal("idle manager never started a drift")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestIdleManagerActivityResetsCountdown(t *testing.T) {
	executor := NewExecutor(nil, WithoutNeutralReturn())
	manager := NewIdleManager(executor,
		WithIdleThreshold(time.Hour),
		WithIdleInterval(time.Millisecond),
	)
	manager.Start(context.Background())
	defer manager.Close()

	manager.NotifyActivity()
	time.Sleep(100 * time.Millisecond)
	if stats := executor.Stats(); stats.Executed != 0 || stats.Running != "" {
		t.Fatalf("no drift expected while activity is recent: %+v", stats)
	}
}
