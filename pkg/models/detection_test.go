package models

import (
	"encoding/json"
	"testing"
)

func TestBoxJSONArrayForm(t *testing.T) {
	b := Box{X1: 1, Y1: 2, X2: 30, Y2: 40}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[1,2,30,40]" {
		t.Errorf("box json = %s, want [1,2,30,40]", data)
	}

	var back Box
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != b {
		t.Errorf("round trip changed box: %+v", back)
	}

	if err := json.Unmarshal([]byte("[1,2,3]"), &back); err == nil {
		t.Error("expected error for 3-element box")
	}
}

func TestResolveLabelFallbackChain(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]interface{}
		want string
	}{
		{"explicit label wins", map[string]interface{}{"label": "Helmet", "cls": 3.0}, "helmet"},
		{"blank label falls through", map[string]interface{}{"label": "  ", "cls": 3.0}, "3"},
		{"class index as string", map[string]interface{}{"class_id": 7.0}, "7"},
		{"string class value", map[string]interface{}{"class": "No_Vest"}, "no_vest"},
		{"name field", map[string]interface{}{"name": "Vest"}, "vest"},
		{"class_name field", map[string]interface{}{"class_name": "person"}, "person"},
		{"nothing usable", map[string]interface{}{"conf": 0.5}, ""},
	}
	for _, tc := range cases {
		if got := ResolveLabel(tc.raw); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestDecodeFramePacketDropsMalformedBoxes(t *testing.T) {
	raw := []byte(`{
		"frame_id": "f42",
		"detections": [
			{"box": [0, 0, 100, 200], "conf": 0.9, "label": "person"},
			{"box": [1, 2, 3], "conf": 0.9, "label": "helmet"},
			{"conf": 0.9, "label": "vest"},
			{"box": "bogus", "conf": 0.9, "label": "vest"}
		]
	}`)

	pkt, err := DecodeFramePacket(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pkt.FrameID != "f42" {
		t.Errorf("frame id = %q", pkt.FrameID)
	}
	if len(pkt.Detections) != 1 {
		t.Fatalf("expected malformed detections dropped, kept %d", len(pkt.Detections))
	}
	if pkt.Detections[0].Label != "person" {
		t.Errorf("surviving detection = %+v", pkt.Detections[0])
	}
}

func TestDecodeFramePacketRejectsBadJSON(t *testing.T) {
	if _, err := DecodeFramePacket([]byte(`{broken`)); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestDecodeDetectionConfidenceAliases(t *testing.T) {
	det, ok := DecodeDetection(map[string]interface{}{
		"box":   []interface{}{0.0, 0.0, 10.0, 10.0},
		"score": 0.73,
		"name":  "helmet",
	})
	if !ok {
		t.Fatal("decode failed")
	}
	if det.Conf != 0.73 {
		t.Errorf("conf = %v, want 0.73 via score alias", det.Conf)
	}
	if det.Label != "helmet" {
		t.Errorf("label = %q", det.Label)
	}
}
