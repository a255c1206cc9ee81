package classify

import (
	"safetyeye/pkg/models"
)

// DefaultConfThreshold is the minimum confidence for a detection to count
// toward a category when the config does not say otherwise.
const DefaultConfThreshold = 0.35

// Category is one tracked equipment class: a positive label that proves
// presence and a negative label that proves absence.
type Category struct {
	Name     string `yaml:"name"`
	Positive string `yaml:"positive"`
	Negative string `yaml:"negative"`
}

// DefaultCategories matches the classic helmet/vest deployment.
func DefaultCategories() []Category {
	return []Category{
		{Name: "helmet", Positive: "helmet", Negative: "no_helmet"},
		{Name: "vest", Positive: "vest", Negative: "no_vest"},
	}
}

// Evaluate decides, per person and per category, whether that person is
// compliant. A category is missing iff no positive signal was seen OR a
// negative signal was seen: negative evidence always dominates, and the
// absence of any signal counts as missing. A person violates when at least
// one category is missing. The second return value is the flat list of
// violating persons' boxes, for rendering.
//
// Pure function; conflicting signals are preserved in Violation.Signals.
func Evaluate(assignments []models.PersonAssignment, confThreshold float64, categories []Category) ([]models.Violation, []models.Box) {
	if confThreshold <= 0 {
		confThreshold = DefaultConfThreshold
	}
	if len(categories) == 0 {
		categories = DefaultCategories()
	}

	var violations []models.Violation
	var violationBoxes []models.Box

	for _, pa := range assignments {
		signals := make(map[string]models.Signal, len(categories))
		for _, cat := range categories {
			signals[cat.Name] = models.Signal{}
		}

		for _, eq := range pa.Equipment {
			if eq.Conf < confThreshold {
				continue
			}
			for _, cat := range categories {
				sig := signals[cat.Name]
				switch eq.Label {
				case cat.Positive:
					sig.Has = true
				case cat.Negative:
					sig.HasNegative = true
				default:
					continue
				}
				signals[cat.Name] = sig
			}
		}

		var missing []string
		for _, cat := range categories {
			sig := signals[cat.Name]
			if !sig.Has || sig.HasNegative {
				missing = append(missing, cat.Name)
			}
		}
		if len(missing) == 0 {
			continue
		}

		violations = append(violations, models.Violation{
			PersonID:  pa.PersonID,
			TrackID:   -1,
			PersonBox: pa.Person.Box,
			Missing:   missing,
			Signals:   signals,
		})
		violationBoxes = append(violationBoxes, pa.Person.Box)
	}

	return violations, violationBoxes
}
