// Package perception defines the value types delivered by the upstream
// recognition oracle: one Observation per detected region per frame.
package perception

import "fmt"

// UnknownLabel is the sentinel label carried by detections that matched no
// enrolled identity. Observations with this label never represent a stable
// identity across frames.
const UnknownLabel = "unknown"

// Region is an axis-aligned bounding box in pixel coordinates, using the
// (top, right, bottom, left) convention of the recognition oracle.
type Region struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

func (r Region) Width() int  { return r.Right - r.Left }
func (r Region) Height() int { return r.Bottom - r.Top }

// Observation is a single per-frame recognition result. Observations are
// ephemeral: they are consumed during ingestion and never retained.
type Observation struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Region     Region  `json:"region"`
}

// Validate reports whether the observation is well-formed. A malformed
// observation is skipped by the tracker; the rest of its frame is still
// processed.
func (o Observation) Validate() error {
	if o.Label == "" {
		return fmt.Errorf("observation has empty label")
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("observation %q has confidence %v outside [0, 1]", o.Label, o.Confidence)
	}
	return nil
}

// IsUnknown reports whether the observation carries the unknown sentinel.
func (o Observation) IsUnknown() bool { return o.Label == UnknownLabel }
