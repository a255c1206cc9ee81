package eventcsv

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"safetyeye/internal/logger"
	"safetyeye/pkg/models"
)

// header is the fixed on-disk schema; frame summaries and per-person
// violation rows share it.
var header = []string{"timestamp", "person_id", "missing", "people_count", "violations_count"}

// Writer appends event rows to a CSV file. The file is opened in append
// mode so a restarted session continues the same log.
type Writer struct {
	path string
	file *os.File
	csv  *csv.Writer
	mu   sync.Mutex
}

// NewWriter opens (or creates) the CSV event log, writing the header only
// when the file is new.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
	}

	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	w := &Writer{path: path, file: f, csv: csv.NewWriter(f)}
	if fresh {
		if err := w.csv.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write event log header: %w", err)
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}

	logger.Infof("CSV event log initialized: %s", path)
	return w, nil
}

// WriteEvents appends a batch of rows. Each row is flushed as a whole so a
// cancelled session never leaves a partial record.
func (w *Writer) WriteEvents(records []*models.EventRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, rec := range records {
		row := []string{
			rec.Timestamp,
			rec.PersonID,
			rec.Missing,
			strconv.Itoa(rec.PeopleCount),
			strconv.Itoa(rec.ViolationsCount),
		}
		if err := w.csv.Write(row); err != nil {
			return fmt.Errorf("failed to write event row: %w", err)
		}
	}
	w.csv.Flush()
	return w.csv.Error()
}

// ReadRecent returns the most recent rows, newest last.
func (w *Writer) ReadRecent(limit int) ([]*models.EventRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []*models.EventRecord
	first := true
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == header[0] {
				continue
			}
		}
		rec, ok := parseRow(row)
		if !ok {
			continue
		}
		out = append(out, rec)
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func parseRow(row []string) (*models.EventRecord, bool) {
	if len(row) < 5 {
		return nil, false
	}
	people, err := strconv.Atoi(row[3])
	if err != nil {
		return nil, false
	}
	violations, err := strconv.Atoi(row[4])
	if err != nil {
		return nil, false
	}
	return &models.EventRecord{
		Timestamp:       row[0],
		PersonID:        row[1],
		Missing:         row[2],
		PeopleCount:     people,
		ViolationsCount: violations,
	}, true
}

// Close closes the log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.csv.Flush()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
