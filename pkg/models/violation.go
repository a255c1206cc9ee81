package models

// PersonAssignment is one person and the equipment detections assigned to
// them by the association engine. PersonID is the dense ordinal of the
// person within one frame's detection set; it is only stable within a
// single association pass, never across frames.
type PersonAssignment struct {
	PersonID  int         `json:"person_idx"`
	Person    Detection   `json:"person"`
	Equipment []Detection `json:"ppe"`
}

// Signal carries the raw evidence behind a per-category decision. Both
// flags may be true at once; conflicting detections are preserved for
// audit, not resolved here.
type Signal struct {
	Has         bool `json:"has"`
	HasNegative bool `json:"has_negative"`
}

// Violation is the classifier's verdict for one non-compliant person.
// Missing lists category names in configured category order. TrackID is
// the durable identity when tracking is enabled, otherwise -1.
type Violation struct {
	PersonID  int               `json:"person_idx"`
	TrackID   int64             `json:"track_id,omitempty"`
	PersonBox Box               `json:"person_box"`
	Missing   []string          `json:"missing"`
	Signals   map[string]Signal `json:"signals,omitempty"`
}

// MissingCategory reports whether the named category is missing.
func (v *Violation) MissingCategory(name string) bool {
	for _, m := range v.Missing {
		if m == name {
			return true
		}
	}
	return false
}
