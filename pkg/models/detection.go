package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Box is a pixel-space bounding box with x1<x2, y1<y2.
// Its JSON form is the 4-element array [x1,y1,x2,y2].
type Box struct {
	X1, Y1, X2, Y2 int
}

// MarshalJSON encodes the box as [x1,y1,x2,y2].
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X1, b.Y1, b.X2, b.Y2})
}

// UnmarshalJSON decodes [x1,y1,x2,y2]; anything else is an error.
func (b *Box) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) != 4 {
		return fmt.Errorf("box needs 4 coordinates, got %d", len(coords))
	}
	b.X1, b.Y1 = int(coords[0]), int(coords[1])
	b.X2, b.Y2 = int(coords[2]), int(coords[3])
	return nil
}

// IsZero reports whether the box is the empty value.
func (b Box) IsZero() bool {
	return b.X1 == 0 && b.Y1 == 0 && b.X2 == 0 && b.Y2 == 0
}

// Contains reports whether the point lies inside the box, edges included.
func (b Box) Contains(x, y float64) bool {
	return float64(b.X1) <= x && x <= float64(b.X2) &&
		float64(b.Y1) <= y && y <= float64(b.Y2)
}

// Detection is one object observed in one frame. Detections are produced
// fresh every frame and never mutated after decoding; Label is always a
// lowercase string ("" when the detector gave nothing usable).
type Detection struct {
	Box   Box     `json:"box"`
	Conf  float64 `json:"conf"`
	Class int     `json:"cls"`
	Label string  `json:"label"`
}

// FramePacket is one detector message: everything observed in one frame.
// Image optionally carries the raw JPEG for annotation and snapshots.
type FramePacket struct {
	FrameID    string      `json:"frame_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Detections []Detection `json:"detections"`
	Image      []byte      `json:"image,omitempty"`
}

// DecodeFramePacket parses a detector message. Detections without a
// well-formed 4-coordinate box are dropped here, not surfaced as errors:
// detector noise is expected. Label normalization also happens here, once,
// so downstream consumers never repeat the fallback chain.
func DecodeFramePacket(data []byte) (*FramePacket, error) {
	var raw struct {
		FrameID    string                   `json:"frame_id"`
		Timestamp  time.Time                `json:"timestamp"`
		Detections []map[string]interface{} `json:"detections"`
		Image      []byte                   `json:"image"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	pkt := &FramePacket{
		FrameID:   raw.FrameID,
		Timestamp: raw.Timestamp,
		Image:     raw.Image,
	}
	for _, d := range raw.Detections {
		det, ok := DecodeDetection(d)
		if !ok {
			continue
		}
		pkt.Detections = append(pkt.Detections, det)
	}
	return pkt, nil
}

// DecodeDetection converts one loosely-shaped detection object into a
// Detection. Returns ok=false when the box is missing or malformed.
func DecodeDetection(raw map[string]interface{}) (Detection, bool) {
	box, ok := decodeBox(raw["box"])
	if !ok {
		return Detection{}, false
	}
	det := Detection{
		Box:   box,
		Conf:  getFloat(raw, "conf", "confidence", "score"),
		Class: getInt(raw, "cls", "class", "class_id", "category"),
		Label: ResolveLabel(raw),
	}
	return det, true
}

// ResolveLabel extracts a lowercase label from a detection object. The
// fallback order mirrors what detectors actually emit: an explicit label,
// then a numeric class index rendered as its decimal string, then any
// text-like naming field, then "".
func ResolveLabel(raw map[string]interface{}) string {
	if v, ok := raw["label"]; ok && v != nil {
		if s := stringify(v); strings.TrimSpace(s) != "" {
			return strings.ToLower(s)
		}
	}
	for _, key := range []string{"cls", "class", "class_id", "category"} {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if n, ok := asInt(v); ok {
			return strconv.Itoa(n)
		}
		if s := stringify(v); s != "" {
			return strings.ToLower(s)
		}
	}
	for _, key := range []string{"name", "class_name", "label_text"} {
		if v, ok := raw[key]; ok && v != nil {
			if s := stringify(v); s != "" {
				return strings.ToLower(s)
			}
		}
	}
	return ""
}

func decodeBox(v interface{}) (Box, bool) {
	coords, ok := v.([]interface{})
	if !ok || len(coords) != 4 {
		return Box{}, false
	}
	vals := make([]int, 4)
	for i, c := range coords {
		n, ok := asInt(c)
		if !ok {
			return Box{}, false
		}
		vals[i] = n
	}
	return Box{X1: vals[0], Y1: vals[1], X2: vals[2], Y2: vals[3]}, true
}

func getFloat(raw map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func getInt(raw map[string]interface{}, keys ...string) int {
	for _, key := range keys {
		if n, ok := asInt(raw[key]); ok {
			return n
		}
	}
	return -1
}

func asInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case int64:
		return int(val), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return ""
	}
}
