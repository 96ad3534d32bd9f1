// Package queue schedules chunked import jobs. Each importer owns one
// persisted job slot; a job walks a fixed sequence of stages, and every
// Tick performs one bounded unit of work so no single request carries the
// whole import.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"listimport/internal/state"
)

var (
	// ErrUnknownImporter is returned when no importer is registered under
	// the requested id.
	ErrUnknownImporter = errors.New("unknown importer")
	// ErrJobInProgress rejects a submission while the importer's slot is
	// occupied. The prior job must finish or be aborted first.
	ErrJobInProgress = errors.New("import already in progress")
)

// Task is one persisted unit of queue state. Handlers advance Offset and
// stage-specific payload fields; only the scheduler changes Action.
type Task struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
	Offset  int            `json:"offset"`
}

// Settings is the job configuration snapshot captured at submit time.
type Settings interface {
	Validate() error
}

// HandlerFunc executes one bounded unit of a stage. Returning a task keeps
// the stage alive for another tick; returning nil advances the job to the
// next stage. An error halts the job.
type HandlerFunc func(ctx context.Context, job *JobContext, task Task) (*Task, error)

// CleanupFunc releases job-scoped resources when a job terminates early.
// The scheduler invokes it on the abort and stage-failure paths; normal
// completion is the pipeline's own responsibility.
type CleanupFunc func(ctx context.Context, job *JobContext, task Task) error

// Importer declares a pipeline: its fixed stage order, one handler per
// stage and an optional cleanup hook.
type Importer struct {
	ID       string
	Stages   []string
	Handlers map[string]HandlerFunc
	Cleanup  CleanupFunc
}

// JobContext is what a stage handler sees of the running job: the frozen
// settings snapshot, the progress store and job-scoped scratch data.
type JobContext struct {
	ImporterID string
	Settings   []byte
	Progress   *Progress

	store state.Store
}

func (j *JobContext) dataKey(name string) string {
	return "job:" + j.ImporterID + ":data:" + name
}

// GetData reads a job-scoped scratch value (parsed row chunks and the like).
func (j *JobContext) GetData(ctx context.Context, name string) ([]byte, bool, error) {
	return j.store.Get(ctx, j.dataKey(name))
}

// SetData writes a job-scoped scratch value.
func (j *JobContext) SetData(ctx context.Context, name string, value []byte) error {
	return j.store.Set(ctx, j.dataKey(name), value)
}

// DeleteData removes a job-scoped scratch value.
func (j *JobContext) DeleteData(ctx context.Context, name string) error {
	return j.store.Delete(ctx, j.dataKey(name))
}

// Scheduler owns task lifecycle for every registered importer. Ticks are
// serialized per importer so a background ticker and a manual tick endpoint
// can never dispatch the same task twice.
type Scheduler struct {
	mu        sync.Mutex
	store     state.Store
	importers map[string]Importer
	ticks     map[string]*sync.Mutex
}

func NewScheduler(store state.Store) *Scheduler {
	return &Scheduler{
		store:     store,
		importers: make(map[string]Importer),
		ticks:     make(map[string]*sync.Mutex),
	}
}

// Register declares an importer. Every stage must carry a handler.
func (s *Scheduler) Register(imp Importer) error {
	if imp.ID == "" || len(imp.Stages) == 0 {
		return fmt.Errorf("importer %q: id and stages are required", imp.ID)
	}
	for _, stage := range imp.Stages {
		if imp.Handlers[stage] == nil {
			return fmt.Errorf("importer %q: stage %q has no handler", imp.ID, stage)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importers[imp.ID] = imp
	if s.ticks[imp.ID] == nil {
		s.ticks[imp.ID] = &sync.Mutex{}
	}
	return nil
}

func jobKey(importerID, name string) string {
	return "job:" + importerID + ":" + name
}

// Submit validates settings, resets the job slot and enqueues the
// importer's first stage. A submission against an occupied slot is
// rejected with ErrJobInProgress.
func (s *Scheduler) Submit(ctx context.Context, importerID string, settings Settings, payload map[string]any) error {
	s.mu.Lock()
	imp, ok := s.importers[importerID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownImporter, importerID)
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	inProgress, err := s.InProgress(ctx, importerID)
	if err != nil {
		return err
	}
	if inProgress {
		return ErrJobInProgress
	}

	blob, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := s.store.Set(ctx, jobKey(importerID, "settings"), blob); err != nil {
		return err
	}
	progress := NewProgress(s.store, importerID)
	if err := progress.Reset(ctx); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, jobKey(importerID, "aborted")); err != nil {
		return err
	}
	task := Task{Action: imp.Stages[0], Payload: payload}
	return s.putTask(ctx, importerID, task)
}

// Tick advances the importer's job by one unit of work. It is a no-op when
// no task is pending. A stage error is logged, the task dropped and the
// error returned; the job does not retry.
func (s *Scheduler) Tick(ctx context.Context, importerID string) error {
	s.mu.Lock()
	imp, ok := s.importers[importerID]
	lock := s.ticks[importerID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownImporter, importerID)
	}

	// One unit of work per importer at a time. A concurrent caller waits
	// here and then observes the task the finished tick left behind.
	lock.Lock()
	defer lock.Unlock()

	task, ok, err := s.currentTask(ctx, importerID)
	if err != nil || !ok {
		return err
	}
	progress := NewProgress(s.store, importerID)
	settings, _, err := s.store.Get(ctx, jobKey(importerID, "settings"))
	if err != nil {
		return err
	}
	job := &JobContext{
		ImporterID: importerID,
		Settings:   settings,
		Progress:   progress,
		store:      s.store,
	}

	aborted, err := s.abortRequested(ctx, importerID)
	if err != nil {
		return err
	}
	if aborted {
		s.cleanup(ctx, imp, job, task, progress)
		if err := s.store.Delete(ctx, jobKey(importerID, "task")); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, jobKey(importerID, "aborted")); err != nil {
			return err
		}
		return progress.AppendLog(ctx, LogWarning, "import aborted")
	}

	handler := imp.Handlers[task.Action]
	if handler == nil {
		_ = s.store.Delete(ctx, jobKey(importerID, "task"))
		_ = progress.AppendLog(ctx, LogError, "no handler for stage %q", task.Action)
		return fmt.Errorf("importer %s: no handler for stage %q", importerID, task.Action)
	}

	next, err := handler(ctx, job, task)
	if err != nil {
		s.cleanup(ctx, imp, job, task, progress)
		_ = s.store.Delete(ctx, jobKey(importerID, "task"))
		_ = progress.AppendLog(ctx, LogError, "stage %s failed: %v", task.Action, err)
		return fmt.Errorf("stage %s: %w", task.Action, err)
	}
	if next != nil {
		// Handlers may not move the job between stages.
		next.Action = task.Action
		return s.putTask(ctx, importerID, *next)
	}
	return s.advance(ctx, imp, task, progress)
}

// cleanup invokes the importer's hook when a job dies before its normal
// completion path would have run.
func (s *Scheduler) cleanup(ctx context.Context, imp Importer, job *JobContext, task Task, progress *Progress) {
	if imp.Cleanup == nil {
		return
	}
	if err := imp.Cleanup(ctx, job, task); err != nil {
		_ = progress.AppendLog(ctx, LogWarning, "cleanup: %v", err)
	}
}

// advance moves the job to the stage after task.Action, or completes it
// when the sequence is exhausted.
func (s *Scheduler) advance(ctx context.Context, imp Importer, task Task, progress *Progress) error {
	idx := -1
	for i, stage := range imp.Stages {
		if stage == task.Action {
			idx = i
			break
		}
	}
	if idx == -1 || idx+1 >= len(imp.Stages) {
		if err := s.store.Delete(ctx, jobKey(imp.ID, "task")); err != nil {
			return err
		}
		return progress.AppendLog(ctx, LogSuccess, "import complete")
	}
	if err := progress.AppendLog(ctx, LogInfo, "stage %s complete", task.Action); err != nil {
		return err
	}
	return s.putTask(ctx, imp.ID, Task{Action: imp.Stages[idx+1], Payload: task.Payload})
}

// Abort requests cooperative cancellation: the flag is honored before the
// next unit of work, never inside one.
func (s *Scheduler) Abort(ctx context.Context, importerID string) error {
	_, ok, err := s.currentTask(ctx, importerID)
	if err != nil || !ok {
		return err
	}
	return s.store.Set(ctx, jobKey(importerID, "aborted"), []byte("1"))
}

// InProgress reports whether a pending task exists and no abort has been
// recorded.
func (s *Scheduler) InProgress(ctx context.Context, importerID string) (bool, error) {
	_, ok, err := s.currentTask(ctx, importerID)
	if err != nil || !ok {
		return false, err
	}
	aborted, err := s.abortRequested(ctx, importerID)
	if err != nil {
		return false, err
	}
	return !aborted, nil
}

// Progress exposes the stats/log accessor for an importer's job slot.
func (s *Scheduler) Progress(importerID string) *Progress {
	return NewProgress(s.store, importerID)
}

func (s *Scheduler) currentTask(ctx context.Context, importerID string) (Task, bool, error) {
	raw, ok, err := s.store.Get(ctx, jobKey(importerID, "task"))
	if err != nil || !ok {
		return Task{}, false, err
	}
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return Task{}, false, err
	}
	return task, true, nil
}

func (s *Scheduler) putTask(ctx context.Context, importerID string, task Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, jobKey(importerID, "task"), raw)
}

func (s *Scheduler) abortRequested(ctx context.Context, importerID string) (bool, error) {
	_, ok, err := s.store.Get(ctx, jobKey(importerID, "aborted"))
	return ok, err
}
