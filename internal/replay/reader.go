// Package replay reads recorded detector output from JSONL files so the
// pipeline can run offline over a capture. Two line shapes are accepted:
// the normal frame-packet object, and the legacy flat array of
// already-associated person records that older captures contain.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"safetyeye/internal/logger"
	"safetyeye/pkg/models"
)

// maxLineBytes bounds one JSONL line; frames with embedded JPEG payloads
// run well past bufio's default 64KB.
const maxLineBytes = 16 * 1024 * 1024

// Frame is one decoded line of a capture. Exactly one of Packet or
// Assignments is set: Packet for raw detections that still need
// association, Assignments when the capture stored pre-associated people.
type Frame struct {
	Packet      *models.FramePacket
	Assignments []models.PersonAssignment
}

// Reader iterates a JSONL capture file line by line.
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
	skipped int
}

// Open opens a capture file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{file: f, scanner: sc}, nil
}

// Next returns the next decodable frame, or (nil, nil) at end of input.
// Undecodable lines are logged and skipped; a capture with a few corrupt
// lines is still worth analyzing.
func (r *Reader) Next() (*Frame, error) {
	for r.scanner.Scan() {
		r.line++
		raw := strings.TrimSpace(r.scanner.Text())
		if raw == "" {
			continue
		}

		frame, err := decodeLine([]byte(raw))
		if err != nil {
			r.skipped++
			logger.Warnf("Skipping undecodable line %d: %v", r.line, err)
			continue
		}
		return frame, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read capture file: %w", err)
	}
	return nil, nil
}

// Skipped returns how many lines were dropped as undecodable.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

func decodeLine(raw []byte) (*Frame, error) {
	if raw[0] == '[' {
		assignments, ok := DecodeAssignments(raw)
		if !ok {
			return nil, fmt.Errorf("flat list with no usable person records")
		}
		return &Frame{Assignments: assignments}, nil
	}

	pkt, err := models.DecodeFramePacket(raw)
	if err != nil {
		return nil, err
	}
	return &Frame{Packet: pkt}, nil
}

// DecodeAssignments reconstructs person assignments from the legacy flat
// list shape: an array of records each carrying person_idx, person_box (or
// a nested person object) and an equipment list. Records missing a usable
// person box are dropped; ok is false when nothing survives.
func DecodeAssignments(raw []byte) ([]models.PersonAssignment, bool) {
	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}

	var out []models.PersonAssignment
	for i, row := range rows {
		person, ok := decodePersonField(row)
		if !ok {
			continue
		}

		idx := i
		if n, found := intField(row, "person_idx", "person_id"); found {
			idx = n
		}

		assignment := models.PersonAssignment{
			PersonID: idx,
			Person:   person,
		}
		for _, key := range []string{"ppe", "equipment", "items"} {
			items, ok := row[key].([]interface{})
			if !ok {
				continue
			}
			for _, item := range items {
				obj, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				if det, ok := models.DecodeDetection(obj); ok {
					assignment.Equipment = append(assignment.Equipment, det)
				}
			}
			break
		}
		out = append(out, assignment)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// decodePersonField accepts either a nested person detection object or a
// bare person_box array on the record itself.
func decodePersonField(row map[string]interface{}) (models.Detection, bool) {
	if obj, ok := row["person"].(map[string]interface{}); ok {
		if det, ok := models.DecodeDetection(obj); ok {
			return det, true
		}
	}
	if boxVal, ok := row["person_box"]; ok {
		if det, ok := models.DecodeDetection(map[string]interface{}{
			"box":   boxVal,
			"label": "person",
		}); ok {
			return det, true
		}
	}
	return models.Detection{}, false
}

func intField(row map[string]interface{}, keys ...string) (int, bool) {
	for _, key := range keys {
		if v, ok := row[key].(float64); ok {
			return int(v), true
		}
	}
	return 0, false
}
