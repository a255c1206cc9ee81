package association

import (
	"safetyeye/pkg/models"
)

// DefaultIoUThreshold is the minimum overlap for the primary assignment
// rule when the config does not say otherwise.
const DefaultIoUThreshold = 0.15

// personLabels are the labels treated as a person. "0" covers detectors
// that leak the numeric class index of an unmapped person class.
var personLabels = map[string]bool{
	"person": true,
	"people": true,
	"0":      true,
}

// IsPerson reports whether a normalized label denotes a person.
func IsPerson(label string) bool {
	return personLabels[label]
}

// IoU returns the intersection-over-union of two boxes. Each box area is
// floored at 1 so degenerate zero-width or zero-height boxes cannot
// produce division artifacts.
func IoU(a, b models.Box) float64 {
	xA := max(a.X1, b.X1)
	yA := max(a.Y1, b.Y1)
	xB := min(a.X2, b.X2)
	yB := min(a.Y2, b.Y2)

	interW := max(0, xB-xA)
	interH := max(0, yB-yA)
	inter := interW * interH

	areaA := max(1, a.X2-a.X1) * max(1, a.Y2-a.Y1)
	areaB := max(1, b.X2-b.X1) * max(1, b.Y2-b.Y1)
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Center returns the centroid of a box.
func Center(b models.Box) (float64, float64) {
	return float64(b.X1+b.X2) / 2.0, float64(b.Y1+b.Y2) / 2.0
}

// Associate partitions one frame's detections into persons and equipment
// and assigns each equipment detection to at most one person.
//
// Assignment order per equipment detection:
//  1. the person with the strictly greatest IoU, if that IoU >= iouThreshold
//     (first person reaching the maximum wins on ties);
//  2. otherwise the first person whose box contains the equipment centroid;
//  3. otherwise the detection is dropped.
//
// Person ordinals are dense 0..N-1 in encounter order. Pure function:
// identical inputs always produce the identical result.
func Associate(detections []models.Detection, iouThreshold float64) []models.PersonAssignment {
	if iouThreshold <= 0 {
		iouThreshold = DefaultIoUThreshold
	}

	var persons []models.PersonAssignment
	var equipment []models.Detection

	for _, det := range detections {
		if det.Box.IsZero() {
			continue
		}
		if IsPerson(det.Label) {
			persons = append(persons, models.PersonAssignment{
				PersonID: len(persons),
				Person:   det,
			})
		} else {
			equipment = append(equipment, det)
		}
	}

	for _, eq := range equipment {
		bestIdx := -1
		bestIoU := 0.0
		for i := range persons {
			ov := IoU(persons[i].Person.Box, eq.Box)
			if ov > bestIoU && ov >= iouThreshold {
				bestIoU = ov
				bestIdx = i
			}
		}
		if bestIdx >= 0 {
			persons[bestIdx].Equipment = append(persons[bestIdx].Equipment, eq)
			continue
		}

		cx, cy := Center(eq.Box)
		for i := range persons {
			if persons[i].Person.Box.Contains(cx, cy) {
				persons[i].Equipment = append(persons[i].Equipment, eq)
				break
			}
		}
		// still unassigned: the equipment contributes to nobody
	}

	return persons
}
