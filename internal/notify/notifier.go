// Package notify delivers violation alerts to an external channel. Senders
// are synchronous and return an error on failure; the pipeline treats
// failures as non-fatal and leaves the alert cooldown unconsumed so the
// next qualifying frame can retry.
package notify

import "safetyeye/pkg/models"

// Notifier sends one alert.
type Notifier interface {
	Notify(alert *models.Alert) error
	Close() error
}
