package events

import "time"

type Kind string

// Event is the contract shared by every recognition lifecycle event.
// Events are immutable values: once constructed they are appended to
// history and delivered to listeners, never mutated.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
	Sequence() uint64
	String() string
}

type Base struct {
	kind      Kind
	timestamp time.Time
	sequence  uint64
}

func NewBase(kind Kind, opts ...RebaseOption) Base {
	base := Base{kind: kind, timestamp: time.Now()}
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

func (b Base) Kind() Kind           { return b.kind }
func (b Base) Timestamp() time.Time { return b.timestamp }
func (b Base) Sequence() uint64     { return b.sequence }

// RebaseOption adjusts the base of an event at construction time. The
// tracker uses WithSequence to stamp the event's position in the global
// event order.
type RebaseOption func(*Base)

func WithSequence(sequence uint64) RebaseOption {
	return func(b *Base) { b.sequence = sequence }
}

func WithTimestamp(timestamp time.Time) RebaseOption {
	return func(b *Base) { b.timestamp = timestamp }
}
