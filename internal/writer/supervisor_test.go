package writer

import (
	"testing"
	"time"

	"github.com/codecoder/core/internal/bus"
)

func newTestSupervisor(clock *time.Time) *Supervisor {
	return New(withClock(func() time.Time { return *clock }))
}

func TestSupervisor_StartTask_InitialStatusRunning(t *testing.T) {
	now := time.Now()
	s := newTestSupervisor(&now)

	s.StartTask("sess-1", 10)
	task, ok := s.Task("sess-1")
	if !ok {
		t.Fatal("expected task to be registered")
	}
	if task.Status != StatusRunning {
		t.Errorf("Status = %q, want running", task.Status)
	}
	if task.ExpectedChapters != 10 {
		t.Errorf("ExpectedChapters = %d, want 10", task.ExpectedChapters)
	}
}

func TestSupervisor_UpdateProgress_ResetsClockAndIncrementsChapters(t *testing.T) {
	now := time.Now()
	s := newTestSupervisor(&now)
	s.StartTask("sess-1", 0)

	now = now.Add(20 * time.Second)
	s.UpdateProgress("sess-1")

	task, _ := s.Task("sess-1")
	if task.ChaptersDone != 1 {
		t.Errorf("ChaptersDone = %d, want 1", task.ChaptersDone)
	}
	if !task.LastProgressAt.Equal(now) {
		t.Errorf("LastProgressAt = %v, want %v", task.LastProgressAt, now)
	}
}

func TestSupervisor_CheckNow_WarnsAfterThreshold(t *testing.T) {
	now := time.Now()
	s := newTestSupervisor(&now)
	s.StartTask("sess-1", 0)

	now = now.Add(WarningThreshold + time.Second)
	s.CheckNow()

	task, ok := s.Task("sess-1")
	if !ok {
		t.Fatal("task should still be registered after a warning")
	}
	if task.Status != StatusWarning {
		t.Errorf("Status = %q, want warning", task.Status)
	}
}

func TestSupervisor_CheckNow_StopsAfterCriticalThreshold(t *testing.T) {
	now := time.Now()
	s := newTestSupervisor(&now)
	s.StartTask("sess-1", 0)

	now = now.Add(CriticalThreshold + time.Second)
	s.CheckNow()

	if _, ok := s.Task("sess-1"); ok {
		t.Error("expected task to be removed once it crosses the critical threshold")
	}
}

func TestSupervisor_CheckNow_ProgressBeforeThresholdStaysRunning(t *testing.T) {
	now := time.Now()
	s := newTestSupervisor(&now)
	s.StartTask("sess-1", 0)

	now = now.Add(10 * time.Second)
	s.UpdateProgress("sess-1")

	now = now.Add(20 * time.Second)
	s.CheckNow()

	task, ok := s.Task("sess-1")
	if !ok {
		t.Fatal("task should remain registered")
	}
	if task.Status != StatusRunning {
		t.Errorf("Status = %q, want running", task.Status)
	}
}

func TestSupervisor_StopTask_RemovesTask(t *testing.T) {
	now := time.Now()
	s := newTestSupervisor(&now)
	s.StartTask("sess-1", 0)
	s.StopTask("sess-1")

	if _, ok := s.Task("sess-1"); ok {
		t.Error("expected task to be removed by StopTask")
	}
}

func TestSupervisor_UpdateProgress_UnknownSessionIsNoop(t *testing.T) {
	now := time.Now()
	s := newTestSupervisor(&now)
	s.UpdateProgress("does-not-exist")

	if _, ok := s.Task("does-not-exist"); ok {
		t.Error("UpdateProgress should not register a task")
	}
}

func TestSupervisor_PublishesProgressEvents(t *testing.T) {
	now := time.Now()
	b := bus.New(nil)
	sub := b.Subscribe(&bus.Filter{Kinds: []bus.Kind{bus.KindWriterProgress}})
	defer sub.Close()
	s := New(WithBus(b), withClock(func() time.Time { return now }))

	s.StartTask("sess-1", 3)
	s.UpdateProgress("sess-1")

	select {
	case event := <-sub.C:
		if event.Kind != bus.KindWriterProgress {
			t.Errorf("Kind = %q, want writer.progress", event.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a writer.progress event to be published")
	}
}
