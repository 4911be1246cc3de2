package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/tickerchat/internal/types"
)

// Record is one completed turn as stored in the journal.
type Record struct {
	Seq int64     `json:"seq"`
	At  time.Time `json:"at"`
	types.QueryComplete
}

// Journal is a JSONL-backed append-only log of completed turns. It only
// listens for completions; the other signals are no-ops.
type Journal struct {
	types.NopTelemetry

	path string
	mu   sync.Mutex
	seq  int64
	now  func() time.Time
}

// NewJournal creates a Journal writing to path.
func NewJournal(path string) *Journal {
	return &Journal{path: path, seq: -1, now: time.Now}
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// QueryCompleted appends the completion. Failures are logged, never returned.
func (j *Journal) QueryCompleted(_ context.Context, ev types.QueryComplete) {
	if err := j.Append(ev); err != nil {
		slog.Warn("journal append failed", "path", j.path, "error", err)
	}
}

// count reads the journal and counts lines. Caller must hold the lock.
func (j *Journal) count() (int64, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var n int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan journal: %w", err)
	}
	return n, nil
}

// Append adds a record with the next sequence number.
func (j *Journal) Append(ev types.QueryComplete) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	if j.seq < 0 {
		n, err := j.count()
		if err != nil {
			return err
		}
		j.seq = n
	}

	rec := Record{Seq: j.seq + 1, At: j.now().UTC(), QueryComplete: ev}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	j.seq = rec.Seq
	return nil
}

// Tail returns the last limit records, oldest first.
func (j *Journal) Tail(limit int) ([]*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var records []*Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Stats summarises journal records.
type Stats struct {
	Turns         int                `json:"turns"`
	Succeeded     int                `json:"succeeded"`
	AvgResponseMS int64              `json:"avg_response_ms"`
	ByModel       map[string]int     `json:"by_model"`
	ByTier        map[types.Tier]int `json:"by_tier"`
}

// Summarize computes aggregate numbers over records.
func Summarize(records []*Record) Stats {
	s := Stats{ByModel: map[string]int{}, ByTier: map[types.Tier]int{}}
	var total int64
	for _, rec := range records {
		s.Turns++
		if rec.Success {
			s.Succeeded++
		}
		total += rec.ResponseTimeMS
		s.ByModel[rec.Model]++
		s.ByTier[rec.ModelTier]++
	}
	if s.Turns > 0 {
		s.AvgResponseMS = total / int64(s.Turns)
	}
	return s
}
