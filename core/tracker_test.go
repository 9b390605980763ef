package recognition

import (
	"context"
	"testing"

	"github.com/chelleboyer/reachy-recognizer/core/events"
	"github.com/chelleboyer/reachy-recognizer/core/perception"
)

func observe(label string, confidence float64) perception.Observation {
	return perception.Observation{
		Label:      label,
		Confidence: confidence,
		Region:     perception.Region{Top: 10, Right: 110, Bottom: 110, Left: 10},
	}
}

func ingestFrames(t *testing.T, tracker *Tracker, frames [][]perception.Observation) []events.Event {
	t.Helper()
	var emitted []events.Event
	for _, frame := range frames {
		emitted = append(emitted, tracker.Ingest(context.Background(), frame)...)
	}
	return emitted
}

func kindsOf(emitted []events.Event) []events.Kind {
	kinds := make([]events.Kind, 0, len(emitted))
	for _, event := range emitted {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func TestTrackerConfirmsAfterThreshold(t *testing.T) {
	tracker := NewTracker(NewRegistry())

	emitted := ingestFrames(t, tracker, [][]perception.Observation{
		{observe("alice", 0.90)},
		{observe("alice", 0.91)},
		{observe("alice", 0.92)},
	})

	if len(emitted) != 1 {
		t.Fatalf("expected exactly one event, got %v", kindsOf(emitted))
	}
	recognized, ok := emitted[0].(events.IdentityRecognized)
	if !ok {
		t.Fatalf("expected IdentityRecognized, got %T", emitted[0])
	}
	if recognized.Label() != "alice" || recognized.Confidence() != 0.92 {
		t.Fatalf("unexpected event payload: %s", recognized)
	}

	// Staying visible emits nothing further.
	if more := tracker.Ingest(context.Background(), []perception.Observation{observe("alice", 0.93)}); len(more) != 0 {
		t.Fatalf("expected no event while continuously visible, got %v", kindsOf(more))
	}
}

func TestTrackerAbsenceResetsAppearanceProgress(t *testing.T) {
	tracker := NewTracker(NewRegistry())

	emitted := ingestFrames(t, tracker, [][]perception.Observation{
		{observe("alice", 0.90)},
		{observe("alice", 0.90)},
		{},
		{observe("alice", 0.90)},
		{observe("alice", 0.90)},
	})

	// The gap dropped the pending record, so only two consecutive frames
	// count afterwards: nothing but the empty-scene signal is emitted.
	for _, event := range emitted {
		if event.Kind() != events.KindNoIdentitiesPresent {
			t.Fatalf("unexpected event %s", event)
		}
	}

	if more := tracker.Ingest(context.Background(), []perception.Observation{observe("alice", 0.94)}); len(more) != 1 {
		t.Fatalf("expected confirmation on third consecutive frame, got %v", kindsOf(more))
	}
}

func TestTrackerDepartureAfterThreshold(t *testing.T) {
	tracker := NewTracker(NewRegistry())

	emitted := ingestFrames(t, tracker, [][]perception.Observation{
		{observe("alice", 0.90)},
		{observe("alice", 0.90)},
		{observe("alice", 0.90)},
		{},
		{},
		{},
	})

	var kinds []events.Kind
	for _, event := range emitted {
		kinds = append(kinds, event.Kind())
	}
	want := []events.Kind{
		events.KindIdentityRecognized,
		events.KindIdentityDeparted,
		events.KindNoIdentitiesPresent,
	}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
	if tracker.TrackedCount() != 0 {
		t.Fatalf("departed identity should leave the table, %d left", tracker.TrackedCount())
	}
}

func TestTrackerBriefAbsenceDoesNotDepart(t *testing.T) {
	tracker := NewTracker(NewRegistry())

	emitted := ingestFrames(t, tracker, [][]perception.Observation{
		{observe("alice", 0.90)},
		{observe("alice", 0.90)},
		{observe("alice", 0.90)},
		{},
		{},
		{observe("alice", 0.90)},
	})

	for _, event := range emitted {
		if event.Kind() == events.KindIdentityDeparted {
			t.Fatalf("brief absence must not emit a departure: %v", kindsOf(emitted))
		}
	}
}

func TestTrackerUnknownSentinel(t *testing.T) {
	tracker := NewTracker(NewRegistry())

	emitted := ingestFrames(t, tracker, [][]perception.Observation{
		{observe(perception.UnknownLabel, 0.70)},
		{observe(perception.UnknownLabel, 0.72)},
		{observe(perception.UnknownLabel, 0.71)},
	})

	if len(emitted) != 1 {
		t.Fatalf("expected one event, got %v", kindsOf(emitted))
	}
	if _, ok := emitted[0].(events.IdentityUnknown); !ok {
		t.Fatalf("expected IdentityUnknown, got %T", emitted[0])
	}
}

func TestTrackerSkipsMalformedObservations(t *testing.T) {
	tracker := NewTracker(NewRegistry())

	frames := [][]perception.Observation{
		{observe("alice", 0.90), {Label: "", Confidence: 0.9}, {Label: "bob", Confidence: 1.5}},
		{observe("alice", 0.90)},
		{observe("alice", 0.90)},
	}
	emitted := ingestFrames(t, tracker, frames)

	if len(emitted) != 1 || emitted[0].Kind() != events.KindIdentityRecognized {
		t.Fatalf("malformed observations should not affect valid ones: %v", kindsOf(emitted))
	}
	if events.EventLabel(emitted[0]) != "alice" {
		t.Fatalf("expected alice confirmed, got %s", emitted[0])
	}
}

func TestTrackerDuplicateLabelAdvancesOnce(t *testing.T) {
	tracker := NewTracker(NewRegistry())

	// Two detections of the same label per frame count as one sighting;
	// the higher confidence is retained.
	frames := [][]perception.Observation{
		{observe("alice", 0.80), observe("alice", 0.95)},
		{observe("alice", 0.80), observe("alice", 0.93)},
	}
	if emitted := ingestFrames(t, tracker, frames); len(emitted) != 0 {
		t.Fatalf("confirmation too early, duplicate labels double-counted: %v", kindsOf(emitted))
	}

	emitted := tracker.Ingest(context.Background(), []perception.Observation{observe("alice", 0.70), observe("alice", 0.91)})
	if len(emitted) != 1 {
		t.Fatalf("expected confirmation on third frame, got %v", kindsOf(emitted))
	}
	if got := events.EventConfidence(emitted[0]); got != 0.91 {
		t.Fatalf("expected highest confidence of final frame, got %.2f", got)
	}
}

func TestTrackerEmptySceneIsEdgeTriggered(t *testing.T) {
	tracker := NewTracker(NewRegistry())

	emitted := ingestFrames(t, tracker, [][]perception.Observation{{}, {}, {}})

	if len(emitted) != 1 || emitted[0].Kind() != events.KindNoIdentitiesPresent {
		t.Fatalf("expected a single empty-scene event, got %v", kindsOf(emitted))
	}

	// A sighting re-arms the signal even if it never confirms.
	emitted = ingestFrames(t, tracker, [][]perception.Observation{
		{observe("alice", 0.90)},
		{},
	})
	count := 0
	for _, event := range emitted {
		if event.Kind() == events.KindNoIdentitiesPresent {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected the empty-scene signal to re-arm once, got %d", count)
	}
}

func TestTrackerCustomThresholds(t *testing.T) {
	tracker := NewTracker(NewRegistry(),
		WithAppearanceThreshold(1),
		WithDepartureThreshold(2),
	)

	emitted := tracker.Ingest(context.Background(), []perception.Observation{observe("alice", 0.90)})
	if len(emitted) != 1 || emitted[0].Kind() != events.KindIdentityRecognized {
		t.Fatalf("expected immediate confirmation at threshold 1, got %v", kindsOf(emitted))
	}

	emitted = ingestFrames(t, tracker, [][]perception.Observation{{}, {}})
	found := false
	for _, event := range emitted {
		if event.Kind() == events.KindIdentityDeparted {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected departure after two absent frames, got %v", kindsOf(emitted))
	}
}

func TestTrackerSequencesAreMonotonic(t *testing.T) {
	tracker := NewTracker(NewRegistry(), WithAppearanceThreshold(1), WithDepartureThreshold(1))

	emitted := ingestFrames(t, tracker, [][]perception.Observation{
		{observe("alice", 0.90), observe("bob", 0.80)},
		{},
	})

	var last uint64
	for i, event := range emitted {
		if i > 0 && event.Sequence() <= last {
			t.Fatalf("sequence not monotonic: %v after %d", event, last)
		}
		last = event.Sequence()
	}
}
