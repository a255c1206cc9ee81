package replay

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCapture(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	return path
}

func TestReaderFramePackets(t *testing.T) {
	path := writeCapture(t,
		`{"detections":[{"box":[0,0,100,200],"conf":0.9,"label":"person"}]}`,
		``,
		`{"detections":[{"box":[10,10,50,50],"conf":0.8,"label":"helmet"}]}`,
	)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	var frames []*Frame
	for {
		f, err := r.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if f == nil {
			break
		}
		frames = append(frames, f)
	}

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Packet == nil || len(frames[0].Packet.Detections) != 1 {
		t.Fatal("first frame packet not decoded")
	}
	if frames[0].Packet.Detections[0].Label != "person" {
		t.Errorf("label = %q, want person", frames[0].Packet.Detections[0].Label)
	}
}

func TestReaderSkipsCorruptLines(t *testing.T) {
	path := writeCapture(t,
		`{"detections":[{"box":[0,0,100,200],"label":"person"}]}`,
		`{not json`,
		`{"detections":[{"box":[5,5,60,60],"label":"vest"}]}`,
	)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		f, err := r.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if f == nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 decodable frames, got %d", count)
	}
	if r.Skipped() != 1 {
		t.Errorf("skipped = %d, want 1", r.Skipped())
	}
}

func TestReaderLegacyFlatList(t *testing.T) {
	path := writeCapture(t,
		`[{"person_idx":3,"person_box":[0,0,100,200],"ppe":[{"box":[10,10,50,50],"conf":0.9,"label":"no_helmet"}]}]`,
	)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	f, err := r.Next()
	if err != nil || f == nil {
		t.Fatalf("next: frame=%v err=%v", f, err)
	}
	if f.Packet != nil {
		t.Error("legacy line should not produce a raw packet")
	}
	if len(f.Assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(f.Assignments))
	}
	a := f.Assignments[0]
	if a.PersonID != 3 {
		t.Errorf("person id = %d, want 3", a.PersonID)
	}
	if a.Person.Box.X2 != 100 || a.Person.Box.Y2 != 200 {
		t.Errorf("person box not reconstructed: %+v", a.Person.Box)
	}
	if len(a.Equipment) != 1 || a.Equipment[0].Label != "no_helmet" {
		t.Errorf("equipment not decoded: %+v", a.Equipment)
	}
}

func TestDecodeAssignmentsOrdinalFallback(t *testing.T) {
	raw := []byte(`[
		{"person_box":[0,0,10,10]},
		{"person":{"box":[20,0,30,10],"conf":0.7,"label":"person"}}
	]`)
	assignments, ok := DecodeAssignments(raw)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	if assignments[0].PersonID != 0 || assignments[1].PersonID != 1 {
		t.Errorf("ordinal fallback ids = %d,%d want 0,1",
			assignments[0].PersonID, assignments[1].PersonID)
	}
}

func TestDecodeAssignmentsRejectsGarbage(t *testing.T) {
	if _, ok := DecodeAssignments([]byte(`[{"foo":1}]`)); ok {
		t.Error("expected decode failure for records without person boxes")
	}
}
