package reactive

import (
	"math"
	"slices"
	"sort"
	"time"

	reactorerrors "github.com/vango-dev/reactor/internal/errors"
)

// NoID is the ID of a job with no ordering preference. It sorts last.
const NoID = math.MaxInt

// Job is a unit of work run by the scheduler.
//
// Jobs are compared by pointer: queueing the same *Job twice before it runs
// runs it once.
type Job struct {
	Run func()

	// ID orders jobs within a flush, lowest first. Use NoID for jobs that
	// should run after every ordered job.
	ID int

	// Pre jobs run at the start of a flush, before ordered jobs.
	Pre bool

	// AllowRecurse lets the job queue itself again while it is running.
	AllowRecurse bool
}

// NewJob creates a job with NoID.
func NewJob(run func()) *Job {
	return &Job{Run: run, ID: NoID}
}

// scheduler holds the job queues of a Runtime.
type scheduler struct {
	queue      []*Job
	flushIndex int
	mainPhase  bool

	post       []*Job
	activePost []*Job
	postIndex  int

	flushing     bool
	flushPending bool

	// afterFlush callbacks run once the current or pending flush completes.
	afterFlush []func()

	stats *FlushStats
}

// QueueJob adds job to the main queue and schedules a flush. A job already
// waiting in the queue is not added again.
func (rt *Runtime) QueueJob(job *Job) {
	s := &rt.sched
	start := 0
	if s.mainPhase {
		start = s.flushIndex
		if job.AllowRecurse {
			start++
		}
	}
	if start < len(s.queue) && slices.Contains(s.queue[start:], job) {
		return
	}
	if job.ID == NoID {
		s.queue = append(s.queue, job)
	} else {
		i := s.insertionIndex(job.ID)
		s.queue = slices.Insert(s.queue, i, job)
	}
	rt.queueFlush()
}

// insertionIndex finds the slot after every queued job with an ID <= id,
// searching only the part of the queue that has not run yet.
func (s *scheduler) insertionIndex(id int) int {
	lo := 0
	if s.mainPhase {
		lo = s.flushIndex + 1
	}
	hi := len(s.queue)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s.queue[mid].ID <= id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// InvalidateJob removes a job that has not run yet from the main queue.
func (rt *Runtime) InvalidateJob(job *Job) {
	s := &rt.sched
	i := slices.Index(s.queue, job)
	if i < 0 || (s.mainPhase && i <= s.flushIndex) {
		return
	}
	s.queue = slices.Delete(s.queue, i, i+1)
}

// QueuePostFlushCb adds job to the post-flush queue, which runs after
// every main-queue job of the same pass.
func (rt *Runtime) QueuePostFlushCb(job *Job) {
	s := &rt.sched
	if s.activePost != nil {
		start := s.postIndex
		if job.AllowRecurse {
			start++
		}
		if start < len(s.activePost) && slices.Contains(s.activePost[start:], job) {
			return
		}
	}
	if slices.Contains(s.post, job) {
		return
	}
	s.post = append(s.post, job)
	rt.queueFlush()
}

// queueFlush schedules one flush on the microtask queue unless a flush is
// already pending or running.
func (rt *Runtime) queueFlush() {
	s := &rt.sched
	if s.flushing || s.flushPending {
		return
	}
	s.flushPending = true
	rt.queueMicrotask(rt.flushJobs)
}

// NextTick returns a channel closed once every pending update has been
// applied. fn, if non-nil, runs first. When nothing is pending the channel
// closes on the next Flush.
//
// Example:
//
//	count.Set(1)
//	done := rt.NextTick(nil)
//	rt.Flush()
//	<-done
func (rt *Runtime) NextTick(fn func()) <-chan struct{} {
	done := make(chan struct{})
	run := func() {
		if fn != nil {
			rt.callWithErrorHandling(LabelNextTick, fn)
		}
		close(done)
	}
	s := &rt.sched
	if s.flushing || s.flushPending {
		s.afterFlush = append(s.afterFlush, run)
	} else {
		rt.queueMicrotask(run)
	}
	return done
}

// flushJobs runs the queues until both stay empty.
func (rt *Runtime) flushJobs() {
	s := &rt.sched
	s.flushPending = false
	s.flushing = true
	start := time.Now()
	stats := FlushStats{}
	s.stats = &stats
	rt.budget.startFlush()

	for pass := 0; ; pass++ {
		if err := rt.budget.CheckPass(); err != nil {
			rt.warn(reactorerrors.CodeRecursiveUpdates, "passes", pass)
			rt.abandonQueues()
			break
		}
		stats.Passes++
		rt.observer.FlushStarted(pass)

		if !rt.runPreJobs() {
			break
		}

		sort.SliceStable(s.queue, func(i, j int) bool {
			return s.queue[i].ID < s.queue[j].ID
		})
		s.mainPhase = true
		broke := false
		for s.flushIndex = 0; s.flushIndex < len(s.queue); s.flushIndex++ {
			if !rt.runJob(s.queue[s.flushIndex], false) {
				broke = true
				break
			}
		}
		s.mainPhase = false
		s.flushIndex = 0
		if broke {
			break
		}
		s.queue = s.queue[:0]

		if !rt.flushPostFlushCbs() {
			break
		}
		if len(s.queue) == 0 && len(s.post) == 0 {
			break
		}
	}

	s.flushing = false
	s.stats = nil
	stats.Duration = time.Since(start)
	rt.observer.FlushCompleted(stats)

	after := s.afterFlush
	s.afterFlush = nil
	for _, fn := range after {
		fn()
	}
}

// runPreJobs runs and removes every Pre job in the main queue, including
// Pre jobs queued by other Pre jobs.
func (rt *Runtime) runPreJobs() bool {
	s := &rt.sched
	for {
		i := slices.IndexFunc(s.queue, func(j *Job) bool { return j.Pre })
		if i < 0 {
			return true
		}
		job := s.queue[i]
		s.queue = slices.Delete(s.queue, i, i+1)
		if !rt.runJob(job, false) {
			return false
		}
	}
}

// flushPostFlushCbs runs the pending post-flush jobs sorted by ID. Called
// while a post pass is running, it appends to that pass instead.
func (rt *Runtime) flushPostFlushCbs() bool {
	s := &rt.sched
	if len(s.post) == 0 {
		return true
	}
	pending := s.post
	s.post = nil
	if s.activePost != nil {
		s.activePost = append(s.activePost, pending...)
		return true
	}

	s.activePost = pending
	sort.SliceStable(s.activePost, func(i, j int) bool {
		return s.activePost[i].ID < s.activePost[j].ID
	})
	ok := true
	for s.postIndex = 0; s.postIndex < len(s.activePost); s.postIndex++ {
		if !rt.runJob(s.activePost[s.postIndex], true) {
			ok = false
			break
		}
	}
	s.activePost = nil
	s.postIndex = 0
	return ok
}

// runJob runs one job under the budget. It reports false when the budget
// asks to abandon the flush.
func (rt *Runtime) runJob(job *Job, post bool) bool {
	if err := rt.budget.CheckJob(job); err != nil {
		rt.warn(reactorerrors.CodeRecursiveUpdates, "job", job.ID)
		if rt.budget.Mode() == BudgetModeBreak {
			rt.abandonQueues()
			return false
		}
		rt.budget.dropped(1)
		rt.sched.stats.Dropped++
		return true
	}
	if post {
		rt.sched.stats.PostCallbacks++
	} else {
		rt.sched.stats.Jobs++
	}
	rt.callWithErrorHandling(LabelScheduler, job.Run)
	return true
}

// abandonQueues drops every queued job.
func (rt *Runtime) abandonQueues() {
	s := &rt.sched
	n := len(s.queue) + len(s.post) + len(s.activePost)
	if s.mainPhase {
		n -= s.flushIndex
	}
	if s.activePost != nil {
		n -= s.postIndex
	}
	rt.budget.dropped(n)
	if s.stats != nil {
		s.stats.Dropped += n
	}
	s.queue = s.queue[:0]
	s.post = nil
	if s.activePost != nil {
		s.activePost = s.activePost[:0]
	}
}
