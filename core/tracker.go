package recognition

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chelleboyer/reachy-recognizer/core/events"
	"github.com/chelleboyer/reachy-recognizer/core/perception"
)

// identityState is the lifecycle of one tracked identity.
type identityState int

const (
	statePending identityState = iota
	stateConfirmed
	stateDeparting
)

func (s identityState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateConfirmed:
		return "confirmed"
	case stateDeparting:
		return "departing"
	default:
		return "invalid"
	}
}

// trackedIdentity is owned exclusively by the tracker; no other component
// reaches into the tracking table. Invariant: presentCount and absentCount
// are never both nonzero.
type trackedIdentity struct {
	label          string
	presentCount   int
	absentCount    int
	lastConfidence float64
	lastRegion     perception.Region
	state          identityState
}

// Tracker converts noisy per-frame observations into debounced lifecycle
// events and publishes them through the registry.
//
// Contract: call Ingest once per frame with the complete observation set
// for that frame, never concurrently with itself. An empty slice is a
// valid "no one visible" frame.
type Tracker struct {
	mu sync.Mutex

	appearanceThreshold int
	departureThreshold  int

	identities map[string]*trackedIdentity
	registry   *Registry

	frameCount uint64
	sequence   uint64

	// emptySignaled makes the no-identities event edge-triggered.
	emptySignaled bool
}

type TrackerOption func(*Tracker)

func WithAppearanceThreshold(frames int) TrackerOption {
	return func(t *Tracker) {
		if frames > 0 {
			t.appearanceThreshold = frames
		}
	}
}

func WithDepartureThreshold(frames int) TrackerOption {
	return func(t *Tracker) {
		if frames > 0 {
			t.departureThreshold = frames
		}
	}
}

const (
	defaultAppearanceThreshold = 3
	defaultDepartureThreshold  = 3
)

func NewTracker(registry *Registry, opts ...TrackerOption) *Tracker {
	tracker := &Tracker{
		appearanceThreshold: defaultAppearanceThreshold,
		departureThreshold:  defaultDepartureThreshold,
		identities:          map[string]*trackedIdentity{},
		registry:            registry,
	}

	for _, opt := range opts {
		opt(tracker)
	}

	return tracker
}

// Ingest processes one frame of observations and returns the events that
// frame produced, in emission order. Events are also appended to the
// registry's history and dispatched to listeners before Ingest returns.
func (t *Tracker) Ingest(ctx context.Context, observations []perception.Observation) []events.Event {
	if t == nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "ingest frame")
	defer span.End()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.frameCount++
	span.SetAttributes(
		attribute.Int64("frame.number", int64(t.frameCount)),
		attribute.Int("frame.observations", len(observations)),
	)

	seen := map[string]perception.Observation{}
	for _, observation := range observations {
		if err := observation.Validate(); err != nil {
			logger.WarnContext(ctx, "skipping malformed observation", "error", err)
			continue
		}
		// Multiple observations of one label in a frame advance its
		// counter once; the highest-confidence one wins.
		if previous, ok := seen[observation.Label]; !ok || observation.Confidence > previous.Confidence {
			seen[observation.Label] = observation
		}
	}

	var emitted []events.Event

	for label, observation := range seen {
		identity, tracked := t.identities[label]
		if !tracked {
			identity = &trackedIdentity{label: label, state: statePending}
			t.identities[label] = identity
		}

		identity.absentCount = 0
		identity.presentCount++
		identity.lastConfidence = observation.Confidence
		identity.lastRegion = observation.Region

		if identity.state == statePending && identity.presentCount >= t.appearanceThreshold {
			identity.state = stateConfirmed
			emitted = append(emitted, t.confirm(ctx, identity))
		}
	}

	for label, identity := range t.identities {
		if _, present := seen[label]; present {
			continue
		}

		identity.presentCount = 0
		identity.absentCount++

		switch identity.state {
		case statePending:
			// Never confirmed, gone again: drop silently.
			delete(t.identities, label)
		case stateConfirmed:
			if identity.absentCount >= t.departureThreshold {
				identity.state = stateDeparting
				event := events.NewIdentityDeparted(identity.label, events.WithSequence(t.nextSequence()))
				t.publish(ctx, event)
				emitted = append(emitted, event)
				delete(t.identities, label)
			}
		}
	}

	if event, ok := t.checkEmptyScene(ctx, len(observations)); ok {
		emitted = append(emitted, event)
	}

	return emitted
}

func (t *Tracker) confirm(ctx context.Context, identity *trackedIdentity) events.Event {
	var event events.Event
	if identity.label == perception.UnknownLabel {
		event = events.NewIdentityUnknown(identity.lastConfidence, identity.lastRegion, events.WithSequence(t.nextSequence()))
	} else {
		event = events.NewIdentityRecognized(identity.label, identity.lastConfidence, identity.lastRegion, events.WithSequence(t.nextSequence()))
	}

	t.publish(ctx, event)
	return event
}

// checkEmptyScene emits NoIdentitiesPresent once per transition into the
// "empty frame, nothing confirmed" condition.
func (t *Tracker) checkEmptyScene(ctx context.Context, observed int) (events.Event, bool) {
	anyConfirmed := false
	for _, identity := range t.identities {
		if identity.state == stateConfirmed {
			anyConfirmed = true
			break
		}
	}

	if observed > 0 || anyConfirmed {
		t.emptySignaled = false
		return nil, false
	}

	if t.emptySignaled {
		return nil, false
	}

	t.emptySignaled = true
	event := events.NewNoIdentitiesPresent(events.WithSequence(t.nextSequence()))
	t.publish(ctx, event)
	return event, true
}

func (t *Tracker) publish(ctx context.Context, event events.Event) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("event emitted", trace.WithAttributes(attribute.String("event.kind", string(event.Kind()))))

	if t.registry != nil {
		t.registry.publish(event)
	}
}

func (t *Tracker) nextSequence() uint64 {
	t.sequence++
	return t.sequence
}

// TrackedCount returns the number of identities currently in the tracking
// table, confirmed or not.
func (t *Tracker) TrackedCount() int {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.identities)
}

// FrameCount returns the number of frames ingested so far.
func (t *Tracker) FrameCount() uint64 {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frameCount
}
