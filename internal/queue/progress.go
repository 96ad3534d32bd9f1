package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"listimport/internal/state"
)

// LogStatus is the severity of one operator-visible log line.
type LogStatus string

const (
	LogInfo    LogStatus = "info"
	LogSuccess LogStatus = "success"
	LogWarning LogStatus = "warning"
	LogError   LogStatus = "error"
)

// LogEntry is one append-only line of import narration.
type LogEntry struct {
	Message   string    `json:"message"`
	Status    LogStatus `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats are the per-job row counters. They only grow while a job runs and
// reset when a job is (re)started.
type Stats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Processed is the number of rows with a recorded outcome.
func (s Stats) Processed() int {
	return s.Succeeded + s.Skipped + s.Failed
}

// Percent computes job progress. A job with no known rows reports 0 while
// running and 100 once stopped; that convention is deliberate, not a
// division guard.
func Percent(s Stats, inProgress bool) int {
	if s.Total == 0 {
		if inProgress {
			return 0
		}
		return 100
	}
	pct := int(math.Round(float64(s.Processed()) / float64(s.Total) * 100))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Progress accumulates stats and log lines for one importer's job slot.
type Progress struct {
	store      state.Store
	importerID string
	clock      func() time.Time
}

func NewProgress(store state.Store, importerID string) *Progress {
	return &Progress{store: store, importerID: importerID, clock: time.Now}
}

func (p *Progress) key(name string) string {
	return "job:" + p.importerID + ":" + name
}

// Reset zeroes the counters, truncates the log and records a fresh start
// timestamp. Called when a job is submitted.
func (p *Progress) Reset(ctx context.Context) error {
	zero, _ := json.Marshal(Stats{})
	if err := p.store.Set(ctx, p.key("stats"), zero); err != nil {
		return err
	}
	if err := p.store.Delete(ctx, p.key("log")); err != nil {
		return err
	}
	started, _ := p.clock().UTC().MarshalText()
	return p.store.Set(ctx, p.key("started"), started)
}

// Stats returns the current counters.
func (p *Progress) Stats(ctx context.Context) (Stats, error) {
	raw, ok, err := p.store.Get(ctx, p.key("stats"))
	if err != nil || !ok {
		return Stats{}, err
	}
	var s Stats
	if err := json.Unmarshal(raw, &s); err != nil {
		return Stats{}, err
	}
	return s, nil
}

// Add atomically folds delta into the counters.
func (p *Progress) Add(ctx context.Context, delta Stats) error {
	return p.store.Update(ctx, p.key("stats"), func(old []byte, ok bool) ([]byte, error) {
		var s Stats
		if ok {
			if err := json.Unmarshal(old, &s); err != nil {
				return nil, err
			}
		}
		s.Total += delta.Total
		s.Succeeded += delta.Succeeded
		s.Skipped += delta.Skipped
		s.Failed += delta.Failed
		return json.Marshal(s)
	})
}

// AppendLog appends one line, prefixed with the elapsed time since the job
// started.
func (p *Progress) AppendLog(ctx context.Context, status LogStatus, format string, args ...any) error {
	now := p.clock().UTC()
	message := fmt.Sprintf(format, args...)
	if started, ok := p.startedAt(ctx); ok {
		message = fmt.Sprintf("[%s] %s", formatElapsed(now.Sub(started)), message)
	}
	entry := LogEntry{Message: message, Status: status, Timestamp: now}
	return p.store.Update(ctx, p.key("log"), func(old []byte, ok bool) ([]byte, error) {
		var entries []LogEntry
		if ok {
			if err := json.Unmarshal(old, &entries); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
		return json.Marshal(entries)
	})
}

// Logs returns entries after index skip, for incremental polling.
func (p *Progress) Logs(ctx context.Context, skip int) ([]LogEntry, error) {
	raw, ok, err := p.store.Get(ctx, p.key("log"))
	if err != nil || !ok {
		return nil, err
	}
	var entries []LogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	if skip < 0 {
		skip = 0
	}
	if skip >= len(entries) {
		return nil, nil
	}
	return entries[skip:], nil
}

func (p *Progress) startedAt(ctx context.Context) (time.Time, bool) {
	raw, ok, err := p.store.Get(ctx, p.key("started"))
	if err != nil || !ok {
		return time.Time{}, false
	}
	var t time.Time
	if err := t.UnmarshalText(raw); err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}

// Bind adapts Progress to the logging interfaces mapped stages use, fixing
// the context once per tick.
func (p *Progress) Bind(ctx context.Context) *BoundLog {
	return &BoundLog{ctx: ctx, p: p}
}

// BoundLog narrates into the job log with a captured context. Append
// failures are dropped; the log is best-effort narration, not state.
type BoundLog struct {
	ctx context.Context
	p   *Progress
}

func (b *BoundLog) Infof(format string, args ...any) {
	_ = b.p.AppendLog(b.ctx, LogInfo, format, args...)
}

func (b *BoundLog) Successf(format string, args ...any) {
	_ = b.p.AppendLog(b.ctx, LogSuccess, format, args...)
}

func (b *BoundLog) Warnf(format string, args ...any) {
	_ = b.p.AppendLog(b.ctx, LogWarning, format, args...)
}

func (b *BoundLog) Errorf(format string, args ...any) {
	_ = b.p.AppendLog(b.ctx, LogError, format, args...)
}
