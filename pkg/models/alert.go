package models

import "time"

// Alert is the notification payload sent when the alert gate opens.
type Alert struct {
	Timestamp      time.Time `json:"timestamp"`
	PeopleCount    int       `json:"people_count"`
	ViolationCount int       `json:"violation_count"`
	Missing        []string  `json:"missing,omitempty"`
}
