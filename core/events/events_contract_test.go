package events

import (
	"testing"

	"github.com/chelleboyer/reachy-recognizer/core/perception"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	region := perception.Region{Top: 10, Right: 120, Bottom: 110, Left: 20}

	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "identity recognized", event: NewIdentityRecognized("alice", 0.9, region), expected: KindIdentityRecognized},
		{name: "identity unknown", event: NewIdentityUnknown(0.4, region), expected: KindIdentityUnknown},
		{name: "identity departed", event: NewIdentityDeparted("alice"), expected: KindIdentityDeparted},
		{name: "no identities present", event: NewNoIdentitiesPresent(), expected: KindNoIdentitiesPresent},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
		})
	}
}

func TestWithSequenceStampsEventOrder(t *testing.T) {
	event := NewIdentityDeparted("alice", WithSequence(42))

	if got := event.Sequence(); got != 42 {
		t.Fatalf("expected sequence 42, got %d", got)
	}
}

func TestEventLabelCoversAllKinds(t *testing.T) {
	region := perception.Region{}

	if got := EventLabel(NewIdentityRecognized("bob", 0.8, region)); got != "bob" {
		t.Fatalf("expected label %q, got %q", "bob", got)
	}
	if got := EventLabel(NewIdentityUnknown(0.5, region)); got != perception.UnknownLabel {
		t.Fatalf("expected unknown sentinel, got %q", got)
	}
	if got := EventLabel(NewNoIdentitiesPresent()); got != "" {
		t.Fatalf("expected empty label, got %q", got)
	}
}

func TestEventConfidenceIsZeroForLabellessKinds(t *testing.T) {
	if got := EventConfidence(NewIdentityDeparted("alice")); got != 0 {
		t.Fatalf("expected zero confidence for departed, got %v", got)
	}
	if got := EventConfidence(NewNoIdentitiesPresent()); got != 0 {
		t.Fatalf("expected zero confidence for empty scene, got %v", got)
	}
}
