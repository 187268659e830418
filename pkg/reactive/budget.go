package reactive

import "errors"

// ErrBudgetExceeded is returned by FlushBudget checks when a limit is hit.
var ErrBudgetExceeded = errors.New("reactive: flush budget exceeded")

// BudgetExceededMode determines what a flush does when a limit is hit.
type BudgetExceededMode int

const (
	// BudgetModeDrop skips the offending job and keeps flushing (default).
	BudgetModeDrop BudgetExceededMode = iota

	// BudgetModeBreak abandons the rest of the flush and empties the queues.
	BudgetModeBreak
)

// FlushBudgetConfig holds the limits of a FlushBudget. A zero limit is
// unbounded.
type FlushBudgetConfig struct {
	// RecursionLimit is the number of times one job may run within a single
	// flush, including every re-flush pass it causes.
	RecursionLimit int

	// MaxPasses is the number of passes (the first pass plus re-flushes)
	// one flush may take.
	MaxPasses int

	OnExceeded BudgetExceededMode
}

// FlushBudget guards the scheduler against jobs that keep re-queueing
// themselves. Without a budget a flush repeats until the queues stay empty,
// which never happens for a job that always re-triggers itself.
//
// A FlushBudget belongs to one Runtime and is not safe for concurrent use.
type FlushBudget struct {
	recursionLimit int
	maxPasses      int
	onExceeded     BudgetExceededMode

	// runs counts executions per job during the current flush.
	runs map[*Job]int

	// Counters for the last completed flush and the lifetime of the budget.
	lastPasses   int
	totalDropped int
	totalFlushes int
}

// BudgetStats reports budget usage.
type BudgetStats struct {
	PassesLastFlush int
	MaxJobRuns      int
	Dropped         int
	Flushes         int
}

// NewFlushBudget creates a budget. A nil cfg returns nil, which every
// method treats as unbounded.
func NewFlushBudget(cfg *FlushBudgetConfig) *FlushBudget {
	if cfg == nil {
		return nil
	}
	return &FlushBudget{
		recursionLimit: cfg.RecursionLimit,
		maxPasses:      cfg.MaxPasses,
		onExceeded:     cfg.OnExceeded,
		runs:           make(map[*Job]int),
	}
}

// startFlush resets the per-flush counters.
func (b *FlushBudget) startFlush() {
	if b == nil {
		return
	}
	clear(b.runs)
	b.lastPasses = 0
	b.totalFlushes++
}

// CheckPass records the start of a pass.
// Returns ErrBudgetExceeded when MaxPasses is reached.
func (b *FlushBudget) CheckPass() error {
	if b == nil {
		return nil
	}
	if b.maxPasses > 0 && b.lastPasses >= b.maxPasses {
		return ErrBudgetExceeded
	}
	b.lastPasses++
	return nil
}

// CheckJob records a run of job.
// Returns ErrBudgetExceeded when the job has used its RecursionLimit.
func (b *FlushBudget) CheckJob(job *Job) error {
	if b == nil || b.recursionLimit == 0 {
		return nil
	}
	if b.runs[job] >= b.recursionLimit {
		return ErrBudgetExceeded
	}
	b.runs[job]++
	return nil
}

// dropped counts skipped jobs.
func (b *FlushBudget) dropped(n int) {
	if b == nil {
		return
	}
	b.totalDropped += n
}

// Mode returns the configured behavior when a limit is hit.
func (b *FlushBudget) Mode() BudgetExceededMode {
	if b == nil {
		return BudgetModeDrop
	}
	return b.onExceeded
}

// Stats returns current budget usage statistics.
func (b *FlushBudget) Stats() BudgetStats {
	if b == nil {
		return BudgetStats{}
	}
	maxRuns := 0
	for _, n := range b.runs {
		maxRuns = max(maxRuns, n)
	}
	return BudgetStats{
		PassesLastFlush: b.lastPasses,
		MaxJobRuns:      maxRuns,
		Dropped:         b.totalDropped,
		Flushes:         b.totalFlushes,
	}
}
