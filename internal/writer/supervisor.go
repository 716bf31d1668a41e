// Package writer implements the Writer Supervisor: a stall/timeout watchdog
// for long-running generation tasks (multi-chapter drafts, long-form
// rewrites) plus chunk-sizing advice for splitting such a task across
// provider calls.
package writer

import (
	"context"
	"sync"
	"time"

	"github.com/codecoder/core/internal/bus"
)

const (
	// CheckInterval is how often the Supervisor scans in-flight tasks for
	// stalls.
	CheckInterval = 5 * time.Second

	// WarningThreshold is the elapsed time since last progress at which a
	// task is flagged as possibly stalled.
	WarningThreshold = 45 * time.Second

	// CriticalThreshold is the elapsed time since last progress at which a
	// stalled task is stopped and reported as failed.
	CriticalThreshold = 90 * time.Second
)

// Status is the watchdog's current verdict on a task.
type Status string

const (
	StatusRunning  Status = "running"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusStopped  Status = "stopped"
)

// Task tracks one in-flight generation task.
type Task struct {
	SessionID        string
	ExpectedChapters int
	ChaptersDone     int
	StartedAt        time.Time
	LastProgressAt   time.Time
	Status           Status
}

// ProgressEvent is published on the bus (bus.KindWriterProgress) whenever a
// task's status changes, and on every updateProgress call.
type ProgressEvent struct {
	SessionID        string    `json:"session_id"`
	Status           Status    `json:"status"`
	ChaptersDone     int       `json:"chapters_done"`
	ExpectedChapters int       `json:"expected_chapters,omitempty"`
	SinceProgress    time.Duration `json:"since_progress_ms"`
	Reason           string    `json:"reason,omitempty"`
}

// Supervisor watches every registered task on a single timer and flags
// stalls: a warning when a task has made no progress for WarningThreshold,
// and a critical stop when none has arrived by CriticalThreshold. The
// pattern (mutex-protected task map, one *time.Timer rescheduled to the
// earliest deadline across all tasks) mirrors the heartbeat Runner.
type Supervisor struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	timer  *time.Timer
	stopped bool

	bus *bus.Bus
	now func() time.Time
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithBus wires the Supervisor to publish writer.progress events.
func WithBus(b *bus.Bus) Option {
	return func(s *Supervisor) { s.bus = b }
}

// withClock overrides the time source; tests only.
func withClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// New creates a Supervisor with no tasks registered. Call StartTask to
// begin watching one.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartTask registers a new generation task for sessionID. expectedChapters
// may be zero when the total isn't known up front. A second StartTask for
// the same sessionID replaces the prior task.
func (s *Supervisor) StartTask(sessionID string, expectedChapters int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	now := s.now()
	s.tasks[sessionID] = &Task{
		SessionID:        sessionID,
		ExpectedChapters: expectedChapters,
		StartedAt:        now,
		LastProgressAt:   now,
		Status:           StatusRunning,
	}
	s.scheduleNextLocked()
}

// UpdateProgress records a completed chapter for sessionID and resets its
// stall clock. A call for an unregistered sessionID is a no-op.
func (s *Supervisor) UpdateProgress(sessionID string) {
	s.mu.Lock()
	task, ok := s.tasks[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}

	task.ChaptersDone++
	task.LastProgressAt = s.now()
	task.Status = StatusRunning
	s.scheduleNextLocked()
	s.mu.Unlock()

	s.publish(ProgressEvent{
		SessionID:        task.SessionID,
		Status:           StatusRunning,
		ChaptersDone:     task.ChaptersDone,
		ExpectedChapters: task.ExpectedChapters,
	})
}

// StopTask unregisters sessionID's task, whatever its current status.
func (s *Supervisor) StopTask(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, sessionID)
	s.scheduleNextLocked()
}

// Task returns a copy of the current state for sessionID, if registered.
func (s *Supervisor) Task(sessionID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[sessionID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Stop halts the Supervisor's timer. Registered tasks are left as-is.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// scheduleNextLocked arms the timer for the earliest moment any registered
// task will next cross a threshold, capped at CheckInterval out. Must be
// called with s.mu held.
func (s *Supervisor) scheduleNextLocked() {
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.tasks) == 0 {
		return
	}
	s.timer = time.AfterFunc(CheckInterval, s.CheckNow)
}

// CheckNow scans every registered task for a threshold crossing, publishing
// a warning or critical event and stopping tasks that cross critical. The
// timer calls this every CheckInterval; it's exported so a caller (or a
// test) can force an out-of-cycle check.
func (s *Supervisor) CheckNow() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}

	now := s.now()
	var events []ProgressEvent
	var toStop []string

	for id, task := range s.tasks {
		since := now.Sub(task.LastProgressAt)
		switch {
		case since >= CriticalThreshold:
			task.Status = StatusCritical
			events = append(events, ProgressEvent{
				SessionID:        task.SessionID,
				Status:           StatusCritical,
				ChaptersDone:     task.ChaptersDone,
				ExpectedChapters: task.ExpectedChapters,
				SinceProgress:    since,
				Reason:           "no progress since last chapter; stopping task",
			})
			toStop = append(toStop, id)
		case since >= WarningThreshold:
			if task.Status != StatusWarning {
				task.Status = StatusWarning
				events = append(events, ProgressEvent{
					SessionID:        task.SessionID,
					Status:           StatusWarning,
					ChaptersDone:     task.ChaptersDone,
					ExpectedChapters: task.ExpectedChapters,
					SinceProgress:    since,
					Reason:           "no progress in over 45s",
				})
			}
		}
	}

	for _, id := range toStop {
		delete(s.tasks, id)
	}
	s.scheduleNextLocked()
	s.mu.Unlock()

	for _, event := range events {
		s.publish(event)
	}
}

func (s *Supervisor) publish(event ProgressEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(context.Background(), bus.NewEvent(bus.KindWriterProgress, event.SessionID, event))
}
