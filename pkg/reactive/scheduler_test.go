package reactive

import (
	"testing"

	reactorerrors "github.com/vango-dev/reactor/internal/errors"
)

type jobLog struct {
	order []string
}

func (l *jobLog) job(id int, name string) *Job {
	return &Job{ID: id, Run: func() { l.order = append(l.order, name) }}
}

func (l *jobLog) expect(t *testing.T, want ...string) {
	t.Helper()
	if len(l.order) != len(want) {
		t.Fatalf("expected %v, got %v", want, l.order)
	}
	for i := range want {
		if l.order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, l.order)
		}
	}
}

func TestSchedulerRunsJobsByID(t *testing.T) {
	rt, _ := newTestRuntime(t)
	var log jobLog

	rt.QueueJob(log.job(3, "c"))
	rt.QueueJob(log.job(1, "a"))
	rt.QueueJob(NewJob(func() { log.order = append(log.order, "last") }))
	rt.QueueJob(log.job(2, "b"))
	if len(log.order) != 0 {
		t.Fatalf("expected jobs to wait for the flush, got %v", log.order)
	}
	rt.Flush()

	log.expect(t, "a", "b", "c", "last")
}

func TestSchedulerKeepsQueueOrderForEqualIDs(t *testing.T) {
	rt, _ := newTestRuntime(t)
	var log jobLog

	rt.QueueJob(log.job(1, "first"))
	rt.QueueJob(log.job(1, "second"))
	rt.QueueJob(log.job(0, "zero"))
	rt.Flush()

	log.expect(t, "zero", "first", "second")
}

func TestSchedulerDedupesQueuedJob(t *testing.T) {
	rt, _ := newTestRuntime(t)
	var log jobLog
	job := log.job(1, "a")

	rt.QueueJob(job)
	rt.QueueJob(job)
	rt.QueueJob(job)
	rt.Flush()

	log.expect(t, "a")
}

func TestSchedulerPreJobsRunFirst(t *testing.T) {
	rt, _ := newTestRuntime(t)
	var log jobLog

	rt.QueueJob(log.job(1, "main"))
	pre := log.job(NoID, "pre")
	pre.Pre = true
	rt.QueueJob(pre)
	rt.Flush()

	log.expect(t, "pre", "main")
}

func TestSchedulerPostCallbacksRunAfterMainSorted(t *testing.T) {
	rt, _ := newTestRuntime(t)
	var log jobLog

	rt.QueuePostFlushCb(log.job(2, "post2"))
	rt.QueuePostFlushCb(log.job(1, "post1"))
	rt.QueueJob(log.job(5, "main"))
	rt.Flush()

	log.expect(t, "main", "post1", "post2")
}

func TestSchedulerJobQueuedDuringFlushRunsInSamePass(t *testing.T) {
	obs := newCountingObserver()
	rt, _ := newTestRuntime(t, WithObserver(obs))
	var log jobLog

	late := log.job(2, "late")
	rt.QueueJob(&Job{ID: 1, Run: func() {
		log.order = append(log.order, "early")
		rt.QueueJob(late)
	}})
	rt.QueueJob(log.job(3, "after"))
	rt.Flush()

	log.expect(t, "early", "late", "after")
	if len(obs.flushes) != 1 || obs.flushes[0].Passes != 1 {
		t.Errorf("expected a single pass, got %+v", obs.flushes)
	}
}

func TestSchedulerPostCallbackQueuesMoreWork(t *testing.T) {
	obs := newCountingObserver()
	rt, _ := newTestRuntime(t, WithObserver(obs))
	var log jobLog

	rt.QueuePostFlushCb(&Job{ID: 1, Run: func() {
		log.order = append(log.order, "postA")
		rt.QueueJob(log.job(1, "job"))
		rt.QueuePostFlushCb(log.job(0, "postC"))
	}})
	rt.QueuePostFlushCb(log.job(2, "postB"))
	rt.Flush()

	log.expect(t, "postA", "postB", "job", "postC")
	if len(obs.flushes) != 1 {
		t.Fatalf("expected one flush, got %d", len(obs.flushes))
	}
	stats := obs.flushes[0]
	if stats.Passes != 2 || stats.Jobs != 1 || stats.PostCallbacks != 3 {
		t.Errorf("unexpected flush stats: %+v", stats)
	}
	if len(obs.started) != 2 || obs.started[1] != 1 {
		t.Errorf("expected FlushStarted for passes 0 and 1, got %v", obs.started)
	}
}

func TestSchedulerInvalidateJob(t *testing.T) {
	rt, _ := newTestRuntime(t)
	var log jobLog

	skipped := log.job(2, "skipped")
	rt.QueueJob(&Job{ID: 1, Run: func() {
		log.order = append(log.order, "first")
		rt.InvalidateJob(skipped)
	}})
	rt.QueueJob(skipped)
	rt.Flush()

	log.expect(t, "first")
}

func TestSchedulerSelfRequeue(t *testing.T) {
	tests := []struct {
		name         string
		allowRecurse bool
		want         int
	}{
		{"ignored while running", false, 1},
		{"allowed to recurse", true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, _ := newTestRuntime(t)
			runs := 0
			job := &Job{ID: 1, AllowRecurse: tt.allowRecurse}
			job.Run = func() {
				runs++
				if runs < 3 {
					rt.QueueJob(job)
				}
			}
			rt.QueueJob(job)
			rt.Flush()

			if runs != tt.want {
				t.Errorf("expected %d runs, got %d", tt.want, runs)
			}
		})
	}
}

func TestSchedulerPanicDoesNotStopFlush(t *testing.T) {
	rt, rec := newTestRuntime(t)
	var log jobLog

	rt.QueueJob(&Job{ID: 1, Run: func() { panic("job failed") }})
	rt.QueueJob(log.job(2, "next"))
	rt.Flush()

	log.expect(t, "next")
	if len(rec.labels) != 1 || rec.labels[0] != LabelScheduler {
		t.Errorf("expected one scheduler error, got %v", rec.labels)
	}
}

func TestNextTick(t *testing.T) {
	rt, _ := newTestRuntime(t)

	t.Run("idle", func(t *testing.T) {
		ran := false
		done := rt.NextTick(func() { ran = true })
		select {
		case <-done:
			t.Fatal("expected NextTick to wait for Flush")
		default:
		}
		rt.Flush()
		<-done
		if !ran {
			t.Error("expected callback to run")
		}
	})

	t.Run("after pending flush", func(t *testing.T) {
		var log jobLog
		rt.QueueJob(log.job(1, "job"))
		done := rt.NextTick(func() { log.order = append(log.order, "tick") })
		rt.Flush()
		<-done
		log.expect(t, "job", "tick")
	})

	t.Run("panic still closes", func(t *testing.T) {
		done := rt.NextTick(func() { panic("tick failed") })
		rt.Flush()
		<-done
	})
}

func TestFlushWithoutBudgetRunsUntilStable(t *testing.T) {
	obs := newCountingObserver()
	rt, _ := newTestRuntime(t, WithObserver(obs))

	runs := 0
	var job *Job
	job = &Job{ID: 1, Run: func() {
		runs++
		if runs < 50 {
			rt.QueuePostFlushCb(NewJob(func() { rt.QueueJob(job) }))
		}
	}}
	rt.QueueJob(job)
	rt.Flush()

	if runs != 50 {
		t.Errorf("expected 50 runs, got %d", runs)
	}
	if obs.flushes[0].Passes != 50 {
		t.Errorf("expected 50 passes, got %d", obs.flushes[0].Passes)
	}
}

func TestFlushBudgetRecursionLimit(t *testing.T) {
	budget := NewFlushBudget(&FlushBudgetConfig{RecursionLimit: 10})
	rt, rec := newTestRuntime(t, WithBudget(budget))

	runs := 0
	job := &Job{ID: 1, AllowRecurse: true}
	job.Run = func() {
		runs++
		rt.QueueJob(job)
	}
	rt.QueueJob(job)
	rt.Flush()

	if runs != 10 {
		t.Errorf("expected the budget to stop the job after 10 runs, got %d", runs)
	}
	if rec.warned(reactorerrors.CodeRecursiveUpdates) != 1 {
		t.Errorf("expected one recursion warning, got %v", rec.warnings)
	}
	stats := budget.Stats()
	if stats.MaxJobRuns != 10 || stats.Dropped != 1 || stats.Flushes != 1 {
		t.Errorf("unexpected budget stats: %+v", stats)
	}
}

func TestFlushBudgetMaxPasses(t *testing.T) {
	budget := NewFlushBudget(&FlushBudgetConfig{MaxPasses: 5})
	obs := newCountingObserver()
	rt, rec := newTestRuntime(t, WithBudget(budget), WithObserver(obs))

	runs := 0
	post := NewJob(nil)
	post.AllowRecurse = true
	post.Run = func() {
		runs++
		rt.QueuePostFlushCb(post)
	}
	rt.QueuePostFlushCb(post)
	rt.Flush()

	if runs != 5 {
		t.Errorf("expected 5 runs, got %d", runs)
	}
	if rec.warned(reactorerrors.CodeRecursiveUpdates) != 1 {
		t.Errorf("expected one recursion warning, got %v", rec.warnings)
	}
	if obs.flushes[0].Passes != 5 || obs.flushes[0].Dropped != 1 {
		t.Errorf("unexpected flush stats: %+v", obs.flushes[0])
	}
	if rt.Pending() {
		t.Error("expected nothing pending after an abandoned flush")
	}
}

func TestFlushBudgetBreakMode(t *testing.T) {
	budget := NewFlushBudget(&FlushBudgetConfig{RecursionLimit: 2, OnExceeded: BudgetModeBreak})
	rt, _ := newTestRuntime(t, WithBudget(budget))
	var log jobLog

	job := &Job{ID: 1, AllowRecurse: true}
	job.Run = func() {
		log.order = append(log.order, "loop")
		rt.QueueJob(job)
	}
	rt.QueueJob(job)
	rt.QueueJob(log.job(2, "other"))
	rt.Flush()

	log.expect(t, "loop", "loop")

	// The next flush starts with a fresh budget
	rt.QueueJob(log.job(3, "fresh"))
	rt.Flush()
	log.expect(t, "loop", "loop", "fresh")
}
