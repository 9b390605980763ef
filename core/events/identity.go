package events

import (
	"fmt"

	"github.com/chelleboyer/reachy-recognizer/core/perception"
)

const (
	KindIdentityRecognized  Kind = "identity.recognized"
	KindIdentityUnknown     Kind = "identity.unknown"
	KindIdentityDeparted    Kind = "identity.departed"
	KindNoIdentitiesPresent Kind = "identity.none_present"
)

// IdentityRecognized is emitted once a known identity has been present for
// the appearance debounce threshold of consecutive frames.
type IdentityRecognized struct {
	Base
	label      string
	confidence float64
	region     perception.Region
}

func (e IdentityRecognized) Label() string             { return e.label }
func (e IdentityRecognized) Confidence() float64       { return e.confidence }
func (e IdentityRecognized) Region() perception.Region { return e.region }

func (e IdentityRecognized) String() string {
	return fmt.Sprintf("[seq %d] recognized: %s (%.2f)", e.Sequence(), e.label, e.confidence)
}

func NewIdentityRecognized(label string, confidence float64, region perception.Region, opts ...RebaseOption) IdentityRecognized {
	return IdentityRecognized{
		Base:       NewBase(KindIdentityRecognized, opts...),
		label:      label,
		confidence: confidence,
		region:     region,
	}
}

// IdentityUnknown mirrors IdentityRecognized for detections carrying the
// unknown sentinel; it exposes no label accessor because the sentinel is
// not a stable identity.
type IdentityUnknown struct {
	Base
	confidence float64
	region     perception.Region
}

func (e IdentityUnknown) Confidence() float64       { return e.confidence }
func (e IdentityUnknown) Region() perception.Region { return e.region }

func (e IdentityUnknown) String() string {
	return fmt.Sprintf("[seq %d] unknown identity (%.2f)", e.Sequence(), e.confidence)
}

func NewIdentityUnknown(confidence float64, region perception.Region, opts ...RebaseOption) IdentityUnknown {
	return IdentityUnknown{
		Base:       NewBase(KindIdentityUnknown, opts...),
		confidence: confidence,
		region:     region,
	}
}

// IdentityDeparted is emitted exactly once per continuous absence run that
// reaches the departure debounce threshold, and only for identities that
// had previously confirmed.
type IdentityDeparted struct {
	Base
	label string
}

func (e IdentityDeparted) Label() string { return e.label }

func (e IdentityDeparted) String() string {
	return fmt.Sprintf("[seq %d] departed: %s", e.Sequence(), e.label)
}

func NewIdentityDeparted(label string, opts ...RebaseOption) IdentityDeparted {
	return IdentityDeparted{Base: NewBase(KindIdentityDeparted, opts...), label: label}
}

// NoIdentitiesPresent marks the transition into an empty scene. It is
// edge-triggered: one event per transition, not one per empty frame.
type NoIdentitiesPresent struct {
	Base
}

func (e NoIdentitiesPresent) String() string {
	return fmt.Sprintf("[seq %d] no identities present", e.Sequence())
}

func NewNoIdentitiesPresent(opts ...RebaseOption) NoIdentitiesPresent {
	return NoIdentitiesPresent{Base: NewBase(KindNoIdentitiesPresent, opts...)}
}

// EventLabel returns the identity label carried by the event, or the
// unknown sentinel / empty string for the label-less kinds.
func EventLabel(event Event) string {
	switch typed := event.(type) {
	case IdentityRecognized:
		return typed.Label()
	case IdentityUnknown:
		return perception.UnknownLabel
	case IdentityDeparted:
		return typed.Label()
	default:
		return ""
	}
}

// EventConfidence returns the confidence carried by the event, or zero for
// kinds that carry none.
func EventConfidence(event Event) float64 {
	switch typed := event.(type) {
	case IdentityRecognized:
		return typed.Confidence()
	case IdentityUnknown:
		return typed.Confidence()
	default:
		return 0
	}
}
