package models

import (
	"fmt"
	"strings"
	"time"
)

// EventTimeLayout is the human-readable local-time format used in every
// event row, matching the on-disk log schema.
const EventTimeLayout = "2006-01-02 15:04:05"

// EventRecord is one log row. The same shape serves both per-frame
// summaries (PersonID and Missing empty, counts filled) and per-person
// violation detail rows.
type EventRecord struct {
	Timestamp       string `json:"timestamp"`
	PersonID        string `json:"person_id"`
	Missing         string `json:"missing"`
	PeopleCount     int    `json:"people_count"`
	ViolationsCount int    `json:"violations_count"`
}

// NewFrameSummary builds the unconditional per-frame summary row.
func NewFrameSummary(now time.Time, peopleCount, violationCount int) *EventRecord {
	return &EventRecord{
		Timestamp:       now.Format(EventTimeLayout),
		PeopleCount:     peopleCount,
		ViolationsCount: violationCount,
	}
}

// NewViolationEvent builds the detail row for one violating person.
func NewViolationEvent(now time.Time, personKey int64, missing []string, peopleCount int) *EventRecord {
	return &EventRecord{
		Timestamp:       now.Format(EventTimeLayout),
		PersonID:        fmt.Sprintf("person_%d", personKey),
		Missing:         strings.Join(missing, ","),
		PeopleCount:     peopleCount,
		ViolationsCount: 1,
	}
}
