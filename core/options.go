package recognition

import (
	"time"

	"github.com/chelleboyer/reachy-recognizer/core/behaviors"
	"github.com/chelleboyer/reachy-recognizer/core/greetings"
	"github.com/chelleboyer/reachy-recognizer/core/speech"
)

// CoordinatorOption configures a response coordinator.
type CoordinatorOption func(*Coordinator)

// WithSynthesizer sets the speech synthesizer used for greetings. Without
// one the coordinator falls back to simulated speech that preserves
// utterance timing.
func WithSynthesizer(synthesizer speech.Synthesizer) CoordinatorOption {
	return func(c *Coordinator) {
		if synthesizer != nil {
			c.synthesizer = synthesizer
		}
	}
}

// WithExecutor sets the behavior executor driving greeting gestures.
func WithExecutor(executor *behaviors.Executor) CoordinatorOption {
	return func(c *Coordinator) { c.executor = executor }
}

// WithSelector overrides the greeting phrase selector.
func WithSelector(selector *greetings.Selector) CoordinatorOption {
	return func(c *Coordinator) {
		if selector != nil {
			c.selector = selector
		}
	}
}

// WithSpeechOffset sets the pause between gesture start and speech start.
func WithSpeechOffset(offset time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if offset >= 0 {
			c.speechOffset = offset
		}
	}
}

// WithTargetLatency sets the event-to-speech latency the coordinator aims
// for. Exceeding it is logged, not enforced.
func WithTargetLatency(target time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if target > 0 {
			c.targetLatency = target
		}
	}
}

// WithBatchWindow sets how long the coordinator waits after a
// confirmation before responding, so identities confirmed in the same
// frame are ordered by confidence rather than dispatch order.
func WithBatchWindow(window time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if window >= 0 {
			c.batchWindow = window
		}
	}
}

// WithWatchdogTimeout bounds how long a single greeting's speech may run
// before the coordinator abandons it and moves on.
func WithWatchdogTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.watchdogTimeout = timeout
		}
	}
}

// WithFarewells enables spoken farewells when greeted identities depart.
func WithFarewells() CoordinatorOption {
	return func(c *Coordinator) { c.farewells = true }
}

// WithActivityCallback registers a hook invoked on every recognition
// event the coordinator observes, before any response starts.
func WithActivityCallback(callback func()) CoordinatorOption {
	return func(c *Coordinator) {
		if callback != nil {
			c.onActivity = callback
		}
	}
}

// WithGreetingStartedCallback registers a hook invoked when a greeting
// response begins, with the identity label and the chosen phrase.
func WithGreetingStartedCallback(callback func(label, phrase string)) CoordinatorOption {
	return func(c *Coordinator) {
		if callback != nil {
			c.onGreetingStarted = callback
		}
	}
}

// WithGreetingCompletedCallback registers a hook invoked when a greeting
// response finishes, with the event-to-speech latency achieved.
func WithGreetingCompletedCallback(callback func(label string, latency time.Duration)) CoordinatorOption {
	return func(c *Coordinator) {
		if callback != nil {
			c.onGreetingCompleted = callback
		}
	}
}
