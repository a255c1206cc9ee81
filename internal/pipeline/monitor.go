// Package pipeline runs the live monitoring session: pop frame packets,
// associate equipment to people, classify violations, persist event rows,
// and push throttled notifications. One Monitor owns all mutable session
// state (gates, tracker); frames are processed strictly in arrival order.
package pipeline

import (
	"context"
	"sync"
	"time"

	"safetyeye/internal/association"
	"safetyeye/internal/classify"
	"safetyeye/internal/gate"
	"safetyeye/internal/logger"
	"safetyeye/internal/metrics"
	"safetyeye/internal/notify"
	"safetyeye/internal/render"
	"safetyeye/internal/track"
	"safetyeye/pkg/models"
)

// FrameSource yields raw frame-packet payloads. Pop returns (nil, nil)
// when no payload is ready so the loop can poll its context.
type FrameSource interface {
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}

// Options carries the tunable parameters of one monitoring session.
// Zero values fall back to package defaults.
type Options struct {
	ConfThreshold float64
	IoUThreshold  float64
	Categories    []classify.Category

	TrackingEnabled  bool
	TrackIoU         float64
	TrackMaxMisses   int
	MaxFPS           float64
	LogCooldown      time.Duration
	AlertCooldown    time.Duration
	SnapshotsEnabled bool
	SnapshotDir      string
}

// Monitor is the live session loop.
type Monitor struct {
	source   FrameSource
	writer   EventWriter
	notifier notify.Notifier
	opts     Options

	frameGate *gate.FrameGate
	logGate   *gate.LogGate
	alertGate *gate.AlertGate
	tracker   *track.Tracker

	now func() time.Time
}

// NewMonitor wires a session together. writer is required; notifier may be
// nil when alerting is disabled.
func NewMonitor(source FrameSource, writer EventWriter, notifier notify.Notifier, opts Options) *Monitor {
	m := &Monitor{
		source:    source,
		writer:    writer,
		notifier:  notifier,
		opts:      opts,
		frameGate: gate.NewFrameGate(opts.MaxFPS),
		logGate:   gate.NewLogGate(opts.LogCooldown),
		alertGate: gate.NewAlertGate(opts.AlertCooldown),
		now:       time.Now,
	}
	if opts.TrackingEnabled {
		m.tracker = track.New(opts.TrackIoU, opts.TrackMaxMisses)
	}
	return m
}

// Run consumes frames until the context ends. The read loop blocks on the
// source; processing stays on a single goroutine because the gates and the
// tracker depend on frame order.
func (m *Monitor) Run(ctx context.Context) error {
	logger.Infof("Monitor started (tracking=%v, max_fps=%.1f)",
		m.opts.TrackingEnabled, m.opts.MaxFPS)

	msgCh := make(chan []byte, 16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	for payload := range msgCh {
		m.processPayload(ctx, payload)
	}
	wg.Wait()
	return ctx.Err()
}

// Close releases the sink, the notifier and the source.
func (m *Monitor) Close() error {
	if m.notifier != nil {
		if err := m.notifier.Close(); err != nil {
			logger.Errorf("Failed to close notifier: %v", err)
		}
	}
	if m.writer != nil {
		if err := m.writer.Close(); err != nil {
			logger.Errorf("Failed to close event writer: %v", err)
		}
	}
	if m.source != nil {
		return m.source.Close()
	}
	return nil
}

func (m *Monitor) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		payload, err := m.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop frame packet: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if payload == nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) processPayload(ctx context.Context, payload []byte) {
	metrics.IncFramesReceived()

	now := m.now()
	if !m.frameGate.Allow(now) {
		metrics.IncFramesSkipped()
		return
	}

	pkt, err := models.DecodeFramePacket(payload)
	if err != nil {
		metrics.IncParseErrors()
		logger.Warnf("Failed to decode frame packet: %v", err)
		return
	}

	start := time.Now()
	m.ProcessFrame(ctx, pkt, now)
	metrics.ObserveProcessTime(time.Since(start))
	metrics.IncFramesProcessed()
}

// ProcessFrame runs one decoded frame through the full decision chain.
// Exposed so the offline replay path can drive the same loop.
func (m *Monitor) ProcessFrame(ctx context.Context, pkt *models.FramePacket, now time.Time) {
	assignments := association.Associate(pkt.Detections, m.opts.IoUThreshold)
	violations, violationBoxes := classify.Evaluate(assignments, m.opts.ConfThreshold, m.opts.Categories)

	if m.tracker != nil {
		persons := make([]models.Detection, len(assignments))
		for i, a := range assignments {
			persons[i] = a.Person
		}
		ids := m.tracker.Assign(persons)
		for i := range violations {
			if violations[i].PersonID < len(ids) {
				violations[i].TrackID = ids[violations[i].PersonID]
			}
		}
	}

	metrics.AddViolations(len(violations))

	rows := []*models.EventRecord{
		models.NewFrameSummary(now, len(assignments), len(violations)),
	}
	for _, v := range violations {
		key := m.personKey(v)
		if !m.logGate.Allow(key, now) {
			continue
		}
		rows = append(rows, models.NewViolationEvent(now, key, v.Missing, len(assignments)))
	}
	m.writeWithRetry(ctx, rows)

	if len(violations) > 0 {
		m.maybeAlert(violations, len(assignments), now)
	}

	if len(pkt.Image) > 0 && m.opts.SnapshotsEnabled && len(violations) > 0 {
		annotated := render.Annotate(pkt.Image, pkt.Detections, violationBoxes)
		for _, v := range violations {
			render.SaveSnapshot(m.opts.SnapshotDir, m.personKey(v), now, annotated)
		}
	}
}

// personKey selects the cooldown identity for one violation: the durable
// track ID when tracking runs, otherwise the frame-scoped person ordinal.
func (m *Monitor) personKey(v models.Violation) int64 {
	if m.tracker != nil && v.TrackID >= 0 {
		return v.TrackID
	}
	return int64(v.PersonID)
}

func (m *Monitor) maybeAlert(violations []models.Violation, peopleCount int, now time.Time) {
	if m.notifier == nil || !m.alertGate.Allow(now) {
		return
	}

	alert := &models.Alert{
		Timestamp:      now,
		PeopleCount:    peopleCount,
		ViolationCount: len(violations),
		Missing:        missingUnion(violations),
	}

	if err := m.notifier.Notify(alert); err != nil {
		// Cooldown stays unconsumed so the next qualifying frame retries.
		metrics.IncAlertsFailed()
		logger.Errorf("Failed to send alert: %v", err)
		return
	}
	m.alertGate.MarkSent(now)
	metrics.IncAlertsSent()
	logger.Infof("Alert sent: %d violation(s), %d people in frame",
		alert.ViolationCount, alert.PeopleCount)
}

// missingUnion collects the distinct missing categories across all
// violating persons, first-seen order.
func missingUnion(violations []models.Violation) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range violations {
		for _, name := range v.Missing {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func (m *Monitor) writeWithRetry(ctx context.Context, rows []*models.EventRecord) {
	if len(rows) == 0 {
		return
	}
	for {
		err := m.writer.WriteEvents(rows)
		if err == nil {
			metrics.AddEventsWritten(len(rows))
			return
		}
		logger.Errorf("Failed to write event rows: %v", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
	}
}
