package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"safetyeye/pkg/models"
)

type fakeWriter struct {
	mu      sync.Mutex
	rows    []*models.EventRecord
	failMsg string
}

func (w *fakeWriter) WriteEvents(records []*models.EventRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failMsg != "" {
		msg := w.failMsg
		w.failMsg = ""
		return errors.New(msg)
	}
	w.rows = append(w.rows, records...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) violationRows() []*models.EventRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*models.EventRecord
	for _, r := range w.rows {
		if r.PersonID != "" {
			out = append(out, r)
		}
	}
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []*models.Alert
	fails int
}

func (n *fakeNotifier) Notify(alert *models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails > 0 {
		n.fails--
		return errors.New("connection refused")
	}
	n.sent = append(n.sent, alert)
	return nil
}

func (n *fakeNotifier) Close() error { return nil }

func (n *fakeNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeSource struct {
	payloads [][]byte
	cancel   context.CancelFunc
}

func (s *fakeSource) Pop(ctx context.Context) ([]byte, error) {
	if len(s.payloads) == 0 {
		s.cancel()
		return nil, nil
	}
	p := s.payloads[0]
	s.payloads = s.payloads[1:]
	return p, nil
}

func (s *fakeSource) Close() error { return nil }

func violatingPacket() *models.FramePacket {
	return &models.FramePacket{
		Detections: []models.Detection{
			{Box: models.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, Conf: 0.95, Label: "person"},
			{Box: models.Box{X1: 10, Y1: 10, X2: 60, Y2: 60}, Conf: 0.9, Label: "no_helmet"},
		},
	}
}

func compliantPacket() *models.FramePacket {
	return &models.FramePacket{
		Detections: []models.Detection{
			{Box: models.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, Conf: 0.95, Label: "person"},
			{Box: models.Box{X1: 10, Y1: 10, X2: 60, Y2: 60}, Conf: 0.9, Label: "helmet"},
			{Box: models.Box{X1: 10, Y1: 80, X2: 90, Y2: 160}, Conf: 0.9, Label: "vest"},
		},
	}
}

func TestMonitorLogDedupWindow(t *testing.T) {
	w := &fakeWriter{}
	m := NewMonitor(nil, w, nil, Options{LogCooldown: 5 * time.Second})
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	m.ProcessFrame(ctx, violatingPacket(), base)
	m.ProcessFrame(ctx, violatingPacket(), base.Add(2*time.Second))
	m.ProcessFrame(ctx, violatingPacket(), base.Add(6*time.Second))

	viols := w.violationRows()
	if len(viols) != 2 {
		t.Fatalf("expected 2 violation rows (t+0 and t+6), got %d", len(viols))
	}
	if viols[0].PersonID != "person_0" {
		t.Errorf("person key = %q, want person_0", viols[0].PersonID)
	}

	// Each frame still writes its summary row regardless of dedup.
	if total := len(w.rows); total != 5 {
		t.Errorf("expected 3 summaries + 2 violation rows, got %d rows", total)
	}
}

func TestMonitorCompliantFrameSummaryOnly(t *testing.T) {
	w := &fakeWriter{}
	n := &fakeNotifier{}
	m := NewMonitor(nil, w, n, Options{})

	m.ProcessFrame(context.Background(), compliantPacket(), time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))

	if len(w.rows) != 1 {
		t.Fatalf("expected 1 summary row, got %d", len(w.rows))
	}
	if w.rows[0].PersonID != "" || w.rows[0].ViolationsCount != 0 {
		t.Errorf("unexpected summary row: %+v", w.rows[0])
	}
	if n.sentCount() != 0 {
		t.Error("compliant frame must not alert")
	}
}

func TestMonitorAlertThrottle(t *testing.T) {
	w := &fakeWriter{}
	n := &fakeNotifier{}
	m := NewMonitor(nil, w, n, Options{AlertCooldown: 60 * time.Second})
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	m.ProcessFrame(ctx, violatingPacket(), base)
	m.ProcessFrame(ctx, violatingPacket(), base.Add(30*time.Second))
	m.ProcessFrame(ctx, violatingPacket(), base.Add(61*time.Second))

	if got := n.sentCount(); got != 2 {
		t.Fatalf("expected 2 alerts (t+0 and t+61), got %d", got)
	}
	alert := n.sent[0]
	if alert.ViolationCount != 1 || alert.PeopleCount != 1 {
		t.Errorf("alert counts = %d/%d, want 1/1", alert.ViolationCount, alert.PeopleCount)
	}
	wantMissing := []string{"helmet", "vest"}
	if len(alert.Missing) != len(wantMissing) {
		t.Fatalf("alert missing = %v, want %v", alert.Missing, wantMissing)
	}
	for i, name := range wantMissing {
		if alert.Missing[i] != name {
			t.Errorf("alert missing[%d] = %q, want %q", i, alert.Missing[i], name)
		}
	}
}

func TestMonitorFailedAlertKeepsCooldownOpen(t *testing.T) {
	w := &fakeWriter{}
	n := &fakeNotifier{fails: 1}
	m := NewMonitor(nil, w, n, Options{AlertCooldown: 60 * time.Second})
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	m.ProcessFrame(ctx, violatingPacket(), base)
	if n.sentCount() != 0 {
		t.Fatal("first send should have failed")
	}

	// One second later, well inside the window; the failed attempt must
	// not have consumed it.
	m.ProcessFrame(ctx, violatingPacket(), base.Add(time.Second))
	if n.sentCount() != 1 {
		t.Fatalf("expected retry to succeed, sent=%d", n.sentCount())
	}
}

func TestMonitorTrackingKeysCooldownByTrack(t *testing.T) {
	w := &fakeWriter{}
	m := NewMonitor(nil, w, nil, Options{
		TrackingEnabled: true,
		LogCooldown:     5 * time.Second,
	})
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	first := violatingPacket()
	m.ProcessFrame(ctx, first, base)

	// Same person drifts a few pixels; same track, still inside cooldown.
	second := violatingPacket()
	for i := range second.Detections {
		second.Detections[i].Box.X1 += 3
		second.Detections[i].Box.X2 += 3
	}
	m.ProcessFrame(ctx, second, base.Add(2*time.Second))

	viols := w.violationRows()
	if len(viols) != 1 {
		t.Fatalf("expected drifting person deduped to 1 row, got %d", len(viols))
	}

	// A new person elsewhere opens a fresh track and logs immediately.
	third := violatingPacket()
	third.Detections = append(third.Detections,
		models.Detection{Box: models.Box{X1: 300, Y1: 0, X2: 400, Y2: 200}, Conf: 0.9, Label: "person"},
		models.Detection{Box: models.Box{X1: 310, Y1: 10, X2: 360, Y2: 60}, Conf: 0.9, Label: "no_helmet"},
	)
	m.ProcessFrame(ctx, third, base.Add(3*time.Second))

	viols = w.violationRows()
	if len(viols) != 2 {
		t.Fatalf("expected new person to log despite first person's cooldown, got %d rows", len(viols))
	}
	if viols[0].PersonID == viols[1].PersonID {
		t.Errorf("distinct tracks should yield distinct keys, both %q", viols[0].PersonID)
	}
}

func TestMonitorWriteRetries(t *testing.T) {
	w := &fakeWriter{failMsg: "disk full"}
	m := NewMonitor(nil, w, nil, Options{})

	m.ProcessFrame(context.Background(), compliantPacket(), time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))

	if len(w.rows) != 1 {
		t.Fatalf("expected retried write to land 1 row, got %d", len(w.rows))
	}
}

func TestMonitorRunDrainsSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{
		cancel: cancel,
		payloads: [][]byte{
			[]byte(`{"detections":[{"box":[0,0,100,200],"conf":0.95,"label":"person"},{"box":[10,10,60,60],"conf":0.9,"label":"no_helmet"}]}`),
			[]byte(`not json`),
		},
	}
	w := &fakeWriter{}
	m := NewMonitor(src, w, nil, Options{MaxFPS: 1000})

	err := m.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}

	// One decodable frame: summary plus the violation row. The corrupt
	// payload is counted and dropped.
	if len(w.rows) != 2 {
		t.Fatalf("expected 2 rows from the single good frame, got %d", len(w.rows))
	}
	if err := m.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}
