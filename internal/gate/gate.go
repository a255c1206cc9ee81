// Package gate holds the temporal admission logic of the pipeline: the
// per-person log cooldown, the global alert throttle and the frame-rate
// gate. All three are mutex-guarded and use an injectable clock so tests
// can drive time explicitly. They are the only mutable session state
// besides the tracker, and they are owned by a single pipeline loop.
package gate

import (
	"sync"
	"time"
)

const (
	// DefaultLogCooldown suppresses repeated log rows for the same
	// ongoing violation of one person.
	DefaultLogCooldown = 5 * time.Second
	// DefaultAlertCooldown throttles outbound notifications globally.
	DefaultAlertCooldown = 60 * time.Second
	// DefaultMaxFPS bounds how often the pipeline runs against the
	// incoming stream.
	DefaultMaxFPS = 8.0

	// idleEvictFactor bounds the log gate's memory: entries untouched for
	// this many cooldown windows are swept during upserts.
	idleEvictFactor = 10
)

// LogGate deduplicates per-person violation log rows within a cooldown
// window.
type LogGate struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastLog  map[int64]time.Time
	now      func() time.Time
}

// NewLogGate creates a log gate. Non-positive cooldowns fall back to the
// default.
func NewLogGate(cooldown time.Duration) *LogGate {
	if cooldown <= 0 {
		cooldown = DefaultLogCooldown
	}
	return &LogGate{
		cooldown: cooldown,
		lastLog:  make(map[int64]time.Time),
		now:      time.Now,
	}
}

// SetCooldown changes the window without resetting accumulated state.
func (g *LogGate) SetCooldown(cooldown time.Duration) {
	if cooldown <= 0 {
		return
	}
	g.mu.Lock()
	g.cooldown = cooldown
	g.mu.Unlock()
}

// Allow reports whether a violation row for this person should be emitted
// now, and records the emission when it is. Accept iff the person has no
// prior timestamp or the cooldown has fully elapsed.
func (g *LogGate) Allow(personKey int64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, seen := g.lastLog[personKey]
	if seen && now.Sub(last) < g.cooldown {
		return false
	}
	g.lastLog[personKey] = now
	g.evictIdle(now)
	return true
}

// evictIdle drops entries idle for idleEvictFactor windows so transient
// identities cannot grow the map without bound. Eviction never changes an
// accept/reject outcome: anything old enough to evict would be accepted
// anyway. Caller holds the lock.
func (g *LogGate) evictIdle(now time.Time) {
	horizon := time.Duration(idleEvictFactor) * g.cooldown
	for key, last := range g.lastLog {
		if now.Sub(last) > horizon {
			delete(g.lastLog, key)
		}
	}
}

// AlertGate is the global notification throttle. Unlike the log gate it is
// consumed explicitly: callers check Allow, attempt the send, and call
// MarkSent only when the send succeeded, so a failed send does not burn
// the cooldown window.
type AlertGate struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSent time.Time
}

// NewAlertGate creates an alert gate. Non-positive cooldowns fall back to
// the default.
func NewAlertGate(cooldown time.Duration) *AlertGate {
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}
	return &AlertGate{cooldown: cooldown}
}

// SetCooldown changes the window without resetting the last-sent mark.
func (g *AlertGate) SetCooldown(cooldown time.Duration) {
	if cooldown <= 0 {
		return
	}
	g.mu.Lock()
	g.cooldown = cooldown
	g.mu.Unlock()
}

// Allow reports whether an alert may be attempted now.
func (g *AlertGate) Allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSent.IsZero() || now.Sub(g.lastSent) >= g.cooldown
}

// MarkSent records a successful send.
func (g *AlertGate) MarkSent(now time.Time) {
	g.mu.Lock()
	g.lastSent = now
	g.mu.Unlock()
}

// FrameGate limits how often frames are processed: at most one frame per
// 1/maxFPS interval, everything earlier is skipped.
type FrameGate struct {
	mu            sync.Mutex
	interval      time.Duration
	lastProcessed time.Time
}

// NewFrameGate creates a frame gate for the given maximum rate.
func NewFrameGate(maxFPS float64) *FrameGate {
	if maxFPS <= 0 {
		maxFPS = DefaultMaxFPS
	}
	return &FrameGate{interval: time.Duration(float64(time.Second) / maxFPS)}
}

// SetMaxFPS changes the rate without resetting the last-processed mark.
func (g *FrameGate) SetMaxFPS(maxFPS float64) {
	if maxFPS <= 0 {
		return
	}
	g.mu.Lock()
	g.interval = time.Duration(float64(time.Second) / maxFPS)
	g.mu.Unlock()
}

// Allow reports whether this frame should be processed, recording the new
// last-processed timestamp when it is.
func (g *FrameGate) Allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.lastProcessed.IsZero() && now.Sub(g.lastProcessed) < g.interval {
		return false
	}
	g.lastProcessed = now
	return true
}
