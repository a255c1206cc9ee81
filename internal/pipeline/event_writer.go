package pipeline

import "safetyeye/pkg/models"

// EventWriter persists event log rows. Implementations append a whole
// batch or fail it; partial writes are the implementation's problem to
// avoid.
type EventWriter interface {
	WriteEvents(records []*models.EventRecord) error
	Close() error
}

// EventReader tails the event log. Sinks that can read back implement it
// alongside EventWriter; the report command depends only on this side.
type EventReader interface {
	ReadRecent(limit int) ([]*models.EventRecord, error)
}
