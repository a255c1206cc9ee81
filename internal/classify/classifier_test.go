package classify

import (
	"testing"

	"safetyeye/internal/association"
	"safetyeye/pkg/models"
)

func det(label string, conf float64, x1, y1, x2, y2 int) models.Detection {
	return models.Detection{
		Box:   models.Box{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Conf:  conf,
		Label: label,
	}
}

func assignment(person models.Detection, equipment ...models.Detection) models.PersonAssignment {
	return models.PersonAssignment{PersonID: 0, Person: person, Equipment: equipment}
}

func TestNegativeSignalDominates(t *testing.T) {
	pa := assignment(
		det("person", 0.9, 0, 0, 100, 200),
		det("helmet", 0.9, 0, 0, 40, 40),
		det("no_helmet", 0.9, 0, 0, 40, 40),
		det("vest", 0.9, 10, 60, 90, 150),
	)

	violations, _ := Evaluate([]models.PersonAssignment{pa}, 0.35, nil)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	v := violations[0]
	if !v.MissingCategory("helmet") {
		t.Fatalf("negative helmet signal must force missing_helmet")
	}
	if v.MissingCategory("vest") {
		t.Fatalf("vest is present, must not be missing")
	}
	sig := v.Signals["helmet"]
	if !sig.Has || !sig.HasNegative {
		t.Fatalf("conflicting signals must both be preserved, got %+v", sig)
	}
}

func TestAbsenceOfSignalCountsAsMissing(t *testing.T) {
	pa := assignment(det("person", 0.9, 0, 0, 100, 200))

	violations, boxes := Evaluate([]models.PersonAssignment{pa}, 0.35, nil)
	if len(violations) != 1 {
		t.Fatalf("expected violation for person with no equipment")
	}
	if !violations[0].MissingCategory("helmet") || !violations[0].MissingCategory("vest") {
		t.Fatalf("both categories must be missing, got %v", violations[0].Missing)
	}
	if len(boxes) != 1 || boxes[0] != pa.Person.Box {
		t.Fatalf("violation boxes must carry the person box")
	}
}

func TestLowConfidenceDetectionsIgnored(t *testing.T) {
	pa := assignment(
		det("person", 0.9, 0, 0, 100, 200),
		det("helmet", 0.2, 0, 0, 40, 40),
		det("vest", 0.9, 10, 60, 90, 150),
	)

	violations, _ := Evaluate([]models.PersonAssignment{pa}, 0.35, nil)
	if len(violations) != 1 || !violations[0].MissingCategory("helmet") {
		t.Fatalf("sub-threshold helmet must not count as present")
	}
}

func TestCompliantPersonProducesNoViolation(t *testing.T) {
	pa := assignment(
		det("person", 0.9, 0, 0, 100, 200),
		det("helmet", 0.9, 0, 0, 40, 40),
		det("vest", 0.9, 10, 60, 90, 150),
	)

	violations, boxes := Evaluate([]models.PersonAssignment{pa}, 0.35, nil)
	if len(violations) != 0 || len(boxes) != 0 {
		t.Fatalf("expected no violations, got %d", len(violations))
	}
}

func TestCustomCategories(t *testing.T) {
	pa := assignment(
		det("person", 0.9, 0, 0, 100, 200),
		det("goggles", 0.9, 5, 5, 30, 20),
	)
	cats := []Category{{Name: "goggles", Positive: "goggles", Negative: "no_goggles"}}

	violations, _ := Evaluate([]models.PersonAssignment{pa}, 0.35, cats)
	if len(violations) != 0 {
		t.Fatalf("custom category present, expected compliance")
	}
}

// Full association + classification pass over a single-person frame.
func TestEndToEndScenario(t *testing.T) {
	dets := []models.Detection{
		det("person", 0.95, 10, 10, 110, 210),
		det("no_vest", 0.8, 20, 20, 100, 150),
		det("helmet", 0.9, 10, 10, 60, 60),
	}

	assignments := association.Associate(dets, 0.12)
	if len(assignments) != 1 {
		t.Fatalf("expected mapping with one person, got %d", len(assignments))
	}
	if len(assignments[0].Equipment) != 2 {
		t.Fatalf("expected both ppe detections assigned, got %d", len(assignments[0].Equipment))
	}

	violations, boxes := Evaluate(assignments, 0.35, nil)
	if len(violations) != 1 {
		t.Fatalf("expected one violation, got %d", len(violations))
	}
	v := violations[0]
	if v.PersonID != 0 {
		t.Fatalf("expected violation for person 0, got %d", v.PersonID)
	}
	if v.MissingCategory("helmet") {
		t.Fatalf("helmet present, must not be missing")
	}
	if !v.MissingCategory("vest") {
		t.Fatalf("no_vest signal must force missing vest")
	}
	want := models.Box{X1: 10, Y1: 10, X2: 110, Y2: 210}
	if len(boxes) != 1 || boxes[0] != want {
		t.Fatalf("expected violation_boxes [(10,10,110,210)], got %v", boxes)
	}
}

// Equipment with no overlap and centroid outside every person box must not
// influence any outcome.
func TestUnassignedEquipmentHasNoEffect(t *testing.T) {
	dets := []models.Detection{
		det("person", 0.95, 10, 10, 110, 210),
		det("helmet", 0.9, 10, 10, 60, 60),
		det("vest", 0.9, 15, 80, 100, 180),
		det("no_helmet", 0.99, 800, 800, 900, 900),
	}

	assignments := association.Associate(dets, 0.12)
	if len(assignments[0].Equipment) != 2 {
		t.Fatalf("stray equipment must not be assigned, got %d", len(assignments[0].Equipment))
	}
	violations, _ := Evaluate(assignments, 0.35, nil)
	if len(violations) != 0 {
		t.Fatalf("stray no_helmet must not create a violation, got %+v", violations)
	}
}
