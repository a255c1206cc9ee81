// Package track assigns durable identities to person detections across
// consecutive frames. The association engine's ordinals are frame-scoped;
// keying cooldowns off them over- or under-suppresses whenever detection
// order shifts. The tracker closes that gap with a greedy IoU match
// against the previous frame's boxes.
package track

import (
	"safetyeye/internal/association"
	"safetyeye/pkg/models"
)

const (
	// DefaultIoUThreshold is the minimum overlap to continue a track.
	DefaultIoUThreshold = 0.3
	// DefaultMaxMisses is how many frames a track survives without a match.
	DefaultMaxMisses = 15
)

type trackEntry struct {
	id     int64
	box    models.Box
	misses int
}

// Tracker matches person boxes frame-to-frame and hands out durable track
// IDs. Not safe for concurrent use; it is owned by the single pipeline
// loop, like the gates.
type Tracker struct {
	iouThreshold float64
	maxMisses    int
	nextID       int64
	tracks       []*trackEntry
}

// New creates a tracker. Non-positive parameters fall back to defaults.
func New(iouThreshold float64, maxMisses int) *Tracker {
	if iouThreshold <= 0 {
		iouThreshold = DefaultIoUThreshold
	}
	if maxMisses <= 0 {
		maxMisses = DefaultMaxMisses
	}
	return &Tracker{iouThreshold: iouThreshold, maxMisses: maxMisses}
}

// Assign matches this frame's person detections against live tracks and
// returns one durable ID per input person, aligned by index. Greedy: each
// person takes the unclaimed track with the greatest IoU at or above the
// threshold, in input order; unmatched persons start new tracks; tracks
// unmatched for maxMisses consecutive frames are dropped.
func (t *Tracker) Assign(persons []models.Detection) []int64 {
	ids := make([]int64, len(persons))
	claimed := make(map[int]bool, len(t.tracks))

	for i, p := range persons {
		bestIdx := -1
		bestIoU := 0.0
		for j, tr := range t.tracks {
			if claimed[j] {
				continue
			}
			ov := association.IoU(tr.box, p.Box)
			if ov > bestIoU && ov >= t.iouThreshold {
				bestIoU = ov
				bestIdx = j
			}
		}
		if bestIdx >= 0 {
			claimed[bestIdx] = true
			tr := t.tracks[bestIdx]
			tr.box = p.Box
			tr.misses = 0
			ids[i] = tr.id
			continue
		}

		tr := &trackEntry{id: t.nextID, box: p.Box}
		t.nextID++
		t.tracks = append(t.tracks, tr)
		claimed[len(t.tracks)-1] = true
		ids[i] = tr.id
	}

	kept := t.tracks[:0]
	for j, tr := range t.tracks {
		if !claimed[j] {
			tr.misses++
			if tr.misses > t.maxMisses {
				continue
			}
		}
		kept = append(kept, tr)
	}
	t.tracks = kept

	return ids
}

// ActiveTracks returns the number of live tracks, matched or coasting.
func (t *Tracker) ActiveTracks() int {
	return len(t.tracks)
}
