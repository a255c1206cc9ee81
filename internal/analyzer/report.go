// Package analyzer builds offline rollups over the persisted event log:
// who violated, how often, and which equipment goes missing the most.
package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"safetyeye/pkg/models"
)

// Report is the aggregate view over a slice of event rows.
type Report struct {
	Frames         int            `json:"frames"`
	ViolationRows  int            `json:"violation_rows"`
	PeakPeople     int            `json:"peak_people"`
	ByPerson       map[string]int `json:"by_person"`
	ByCategory     map[string]int `json:"by_category"`
	FirstTimestamp string         `json:"first_timestamp,omitempty"`
	LastTimestamp  string         `json:"last_timestamp,omitempty"`
}

// Summarize aggregates event rows. Summary rows (empty person_id) count as
// frames; violation rows feed the per-person and per-category tallies.
func Summarize(records []*models.EventRecord) *Report {
	r := &Report{
		ByPerson:   make(map[string]int),
		ByCategory: make(map[string]int),
	}

	for _, rec := range records {
		if rec.Timestamp != "" {
			if r.FirstTimestamp == "" {
				r.FirstTimestamp = rec.Timestamp
			}
			r.LastTimestamp = rec.Timestamp
		}
		if rec.PeopleCount > r.PeakPeople {
			r.PeakPeople = rec.PeopleCount
		}

		if rec.PersonID == "" {
			r.Frames++
			continue
		}

		r.ViolationRows++
		r.ByPerson[rec.PersonID]++
		for _, cat := range strings.Split(rec.Missing, ",") {
			cat = strings.TrimSpace(cat)
			if cat == "" {
				continue
			}
			r.ByCategory[cat]++
		}
	}
	return r
}

// Format renders the report as a readable text block, counts descending.
func (r *Report) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frames:          %d\n", r.Frames)
	fmt.Fprintf(&b, "Violation rows:  %d\n", r.ViolationRows)
	fmt.Fprintf(&b, "Peak people:     %d\n", r.PeakPeople)
	if r.FirstTimestamp != "" {
		fmt.Fprintf(&b, "Window:          %s .. %s\n", r.FirstTimestamp, r.LastTimestamp)
	}

	if len(r.ByCategory) > 0 {
		b.WriteString("\nMissing equipment:\n")
		for _, kv := range sortedCounts(r.ByCategory) {
			fmt.Fprintf(&b, "  %-12s %d\n", kv.key, kv.count)
		}
	}
	if len(r.ByPerson) > 0 {
		b.WriteString("\nRepeat offenders:\n")
		for _, kv := range sortedCounts(r.ByPerson) {
			fmt.Fprintf(&b, "  %-12s %d\n", kv.key, kv.count)
		}
	}
	return b.String()
}

type keyCount struct {
	key   string
	count int
}

func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, v := range m {
		out = append(out, keyCount{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}
