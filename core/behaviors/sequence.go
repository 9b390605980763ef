package behaviors

import (
	"math/rand"
	"time"
)

// Pose is a head pose target: rotation in degrees, translation in meters.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// Step is one element of an action sequence. A blocking step holds the
// actuator at its pose for Duration before the next step; a non-blocking
// step issues the pose command and advances immediately, letting the
// motion continue while the next step's timing starts.
type Step struct {
	Pose     Pose
	Duration time.Duration
	Blocking bool
}

// ActionSequence is an immutable descriptor consumed by the executor.
// Sequences are defined as static configuration, not generated per event.
type ActionSequence struct {
	Name          string
	Steps         []Step
	Priority      int
	Interruptible bool
}

// Named presets. Priorities follow the greeting hierarchy: greetings beat
// curiosity beats neutral beats idle.

func RecognizedGreeting() ActionSequence {
	return ActionSequence{
		Name: "recognized-greeting",
		Steps: []Step{
			{Pose: Pose{}, Duration: 300 * time.Millisecond, Blocking: true},
			{Pose: Pose{Roll: 15, Pitch: -5}, Duration: 300 * time.Millisecond, Blocking: true},
			{Pose: Pose{Roll: -15, Pitch: -5}, Duration: 300 * time.Millisecond, Blocking: true},
			{Pose: Pose{}, Duration: 300 * time.Millisecond, Blocking: true},
		},
		Priority:      8,
		Interruptible: false,
	}
}

func UnknownGreeting() ActionSequence {
	return ActionSequence{
		Name: "unknown-greeting",
		Steps: []Step{
			{Pose: Pose{}, Duration: 300 * time.Millisecond, Blocking: true},
			{Pose: Pose{Roll: 10, Pitch: -8}, Duration: 500 * time.Millisecond, Blocking: true},
			{Pose: Pose{Roll: 10, Pitch: -8}, Duration: 300 * time.Millisecond, Blocking: true},
			{Pose: Pose{Pitch: -5}, Duration: 400 * time.Millisecond, Blocking: true},
			{Pose: Pose{}, Duration: 300 * time.Millisecond, Blocking: true},
		},
		Priority:      7,
		Interruptible: false,
	}
}

func CuriousTilt() ActionSequence {
	return ActionSequence{
		Name: "curious-tilt",
		Steps: []Step{
			{Pose: Pose{Roll: -12, Pitch: 8}, Duration: 600 * time.Millisecond, Blocking: true},
			{Pose: Pose{Roll: -12, Pitch: 8}, Duration: 400 * time.Millisecond, Blocking: true},
			{Pose: Pose{}, Duration: 500 * time.Millisecond, Blocking: true},
		},
		Priority:      6,
		Interruptible: true,
	}
}

// IdleDrift returns a new randomized drift so repeated idling varies.
func IdleDrift() ActionSequence {
	drift := func(limit float64) float64 { return limit * (2*rand.Float64() - 1) }
	duration := time.Duration(2000+rand.Intn(2000)) * time.Millisecond

	return ActionSequence{
		Name: "idle-drift",
		Steps: []Step{
			{Pose: Pose{Roll: drift(5), Pitch: drift(5), Yaw: drift(10)}, Duration: duration, Blocking: false},
			{Pose: Pose{Roll: drift(2), Pitch: drift(2), Yaw: drift(5)}, Duration: duration, Blocking: false},
		},
		Priority:      1,
		Interruptible: true,
	}
}

func NeutralReturn() ActionSequence {
	return ActionSequence{
		Name: "neutral-return",
		Steps: []Step{
			{Pose: Pose{}, Duration: 500 * time.Millisecond, Blocking: true},
		},
		Priority:      3,
		Interruptible: true,
	}
}
