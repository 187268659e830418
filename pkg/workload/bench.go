package workload

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactive"
)

// Profile sizes a bench run.
type Profile struct {
	Name string `json:"name" yaml:"name"`

	// Iterations is the number of measured update rounds per workload.
	Iterations int `json:"iterations" yaml:"iterations"`

	// Fanout is the number of effects reading one ref.
	Fanout int `json:"fanout" yaml:"fanout"`

	// ChainDepth is the length of the computed chain.
	ChainDepth int `json:"chain_depth" yaml:"chainDepth"`

	// Watchers is the number of pre-flush watchers on one ref.
	Watchers int `json:"watchers" yaml:"watchers"`

	// ListSize is the length of the array workload.
	ListSize int `json:"list_size" yaml:"listSize"`

	// Batch is the number of writes between flushes.
	Batch int `json:"batch" yaml:"batch"`
}

var profiles = map[string]Profile{
	"fast": {
		Name:       "fast",
		Iterations: 200,
		Fanout:     20,
		ChainDepth: 10,
		Watchers:   20,
		ListSize:   50,
		Batch:      4,
	},
	"standard": {
		Name:       "standard",
		Iterations: 2000,
		Fanout:     100,
		ChainDepth: 50,
		Watchers:   100,
		ListSize:   200,
		Batch:      8,
	},
	"stress": {
		Name:       "stress",
		Iterations: 10000,
		Fanout:     500,
		ChainDepth: 200,
		Watchers:   500,
		ListSize:   1000,
		Batch:      16,
	},
}

// Profiles returns the built-in profiles sorted by name.
func Profiles() []Profile {
	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupProfile returns a built-in profile. Unknown names are X400 errors.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		names := make([]string, 0, len(profiles))
		for n := range profiles {
			names = append(names, n)
		}
		slices.Sort(names)
		return Profile{}, errors.New(errors.CodeUnknownProfile).
			WithDetail(fmt.Sprintf("No bench profile named %q.", name)).
			WithSuggestion(fmt.Sprintf("Use one of: %v", names)).
			WithArgs("profile", name)
	}
	return p, nil
}

// Workload names.
const (
	WorkloadFanout = "fanout"
	WorkloadChain  = "chain"
	WorkloadWatch  = "watch"
	WorkloadArray  = "array"
)

// Workloads lists every workload in run order.
var Workloads = []string{WorkloadFanout, WorkloadChain, WorkloadWatch, WorkloadArray}

// LatencyStats summarises per-round latency in milliseconds.
type LatencyStats struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

// WorkloadResult is the outcome of one workload.
type WorkloadResult struct {
	Workload     string        `json:"workload"`
	Iterations   int           `json:"iterations"`
	Writes       int           `json:"writes"`
	EffectRuns   int           `json:"effect_runs"`
	Flushes      int           `json:"flushes"`
	Jobs         int           `json:"jobs"`
	PostJobs     int           `json:"post_jobs"`
	Dropped      int           `json:"dropped"`
	Errors       int           `json:"errors"`
	Warnings     int           `json:"warnings"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	RoundsPerSec float64       `json:"rounds_per_sec"`
	LatencyMS    LatencyStats  `json:"latency_ms"`
}

// benchCounter tallies runtime activity for one workload.
type benchCounter struct {
	effects  int
	flushes  int
	jobs     int
	post     int
	dropped  int
	errors   int
	warnings int
}

func (c *benchCounter) FlushStarted(int) {}

func (c *benchCounter) FlushCompleted(stats reactive.FlushStats) {
	c.flushes++
	c.jobs += stats.Jobs
	c.post += stats.PostCallbacks
	c.dropped += stats.Dropped
}

func (c *benchCounter) EffectRun(reactive.EffectKind)     { c.effects++ }
func (c *benchCounter) ErrorReported(reactive.ErrorLabel) { c.errors++ }
func (c *benchCounter) Warned(string)                     { c.warnings++ }

// round performs one measured update round and returns the number of
// writes it made.
type round func(i int) int

// check verifies the state after every round.
type check func(rounds int) error

type workloadFunc func(rt *reactive.Runtime, p Profile) (round, check)

var workloads = map[string]workloadFunc{
	WorkloadFanout: fanoutWorkload,
	WorkloadChain:  chainWorkload,
	WorkloadWatch:  watchWorkload,
	WorkloadArray:  arrayWorkload,
}

// Bench runs the named workloads (all of them when none are named) under
// profile p, each on a fresh runtime.
func (r *Runner) Bench(ctx context.Context, p Profile, names ...string) ([]WorkloadResult, error) {
	if len(names) == 0 {
		names = Workloads
	}
	for _, name := range names {
		if _, ok := workloads[name]; !ok {
			return nil, errors.New(errors.CodeUnknownProfile).
				WithDetail(fmt.Sprintf("No workload named %q.", name)).
				WithSuggestion(fmt.Sprintf("Use one of: %v", Workloads))
		}
	}

	results := make([]WorkloadResult, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.benchOne(ctx, p, name)
		if err != nil {
			return nil, err
		}
		r.logger.Info("workload finished",
			"workload", name,
			"profile", p.Name,
			"iterations", res.Iterations,
			"p50_ms", res.LatencyMS.P50,
			"rounds_per_sec", res.RoundsPerSec)
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) benchOne(ctx context.Context, p Profile, name string) (WorkloadResult, error) {
	counter := &benchCounter{}
	rt := reactive.New(r.runtimeOptions(counter)...)
	step, verify := workloads[name](rt, p)
	rt.Flush()
	*counter = benchCounter{}

	latencies := make([]time.Duration, 0, p.Iterations)
	writes := 0
	start := time.Now()
	for i := 1; i <= p.Iterations; i++ {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return WorkloadResult{}, err
			}
		}
		t := time.Now()
		writes += step(i)
		rt.Flush()
		latencies = append(latencies, time.Since(t))
	}
	elapsed := time.Since(start)

	if err := verify(p.Iterations); err != nil {
		return WorkloadResult{}, errors.New(errors.CodeAssertionFailed).
			WithDetail(fmt.Sprintf("workload %q: %v", name, err)).
			WithArgs("workload", name, "profile", p.Name)
	}

	slices.Sort(latencies)
	res := WorkloadResult{
		Workload:   name,
		Iterations: p.Iterations,
		Writes:     writes,
		EffectRuns: counter.effects,
		Flushes:    counter.flushes,
		Jobs:       counter.jobs,
		PostJobs:   counter.post,
		Dropped:    counter.dropped,
		Errors:     counter.errors,
		Warnings:   counter.warnings,
		Elapsed:    elapsed,
	}
	res.RoundsPerSec = float64(p.Iterations) / math.Max(0.000001, elapsed.Seconds())
	if len(latencies) > 0 {
		res.LatencyMS = LatencyStats{
			Min: ms(latencies[0]),
			P50: ms(percentile(latencies, 0.50)),
			P95: ms(percentile(latencies, 0.95)),
			P99: ms(percentile(latencies, 0.99)),
			Max: ms(latencies[len(latencies)-1]),
		}
	}
	return res, nil
}

// fanoutWorkload: one ref read by Fanout effects. Effects re-run at the
// write, so each round costs Fanout runs.
func fanoutWorkload(rt *reactive.Runtime, p Profile) (round, check) {
	src := reactive.NewRef(rt, 0)
	sums := make([]int, p.Fanout)
	for i := range sums {
		rt.Effect(func() {
			sums[i] = src.Value() * 2
		})
	}
	return func(i int) int {
			src.Set(i)
			return 1
		}, func(rounds int) error {
			for i, v := range sums {
				if v != rounds*2 {
					return fmt.Errorf("effect %d saw %d, want %d", i, v, rounds*2)
				}
			}
			return nil
		}
}

// chainWorkload: a ref feeding ChainDepth computeds, each adding one, with
// an effect reading the end of the chain.
func chainWorkload(rt *reactive.Runtime, p Profile) (round, check) {
	src := reactive.NewRef(rt, 0)
	prev := func() int { return src.Value() }
	for i := 0; i < p.ChainDepth; i++ {
		read := prev
		c := reactive.NewComputed(rt, func() int { return read() + 1 })
		prev = c.Value
	}
	last := prev
	var seen int
	rt.Effect(func() { seen = last() })
	return func(i int) int {
			src.Set(i)
			return 1
		}, func(rounds int) error {
			if want := rounds + p.ChainDepth; seen != want {
				return fmt.Errorf("chain end is %d, want %d", seen, want)
			}
			return nil
		}
}

// watchWorkload: Watchers pre-flush watchers on one ref, written Batch
// times per round. Each watcher fires once per flush.
func watchWorkload(rt *reactive.Runtime, p Profile) (round, check) {
	src := reactive.NewRef(rt, 0)
	calls := 0
	last := make([]int, p.Watchers)
	for i := range last {
		rt.Watch(src, func(value, _ any, _ reactive.OnCleanup) {
			calls++
			last[i] = value.(int)
		})
	}
	batch := max(p.Batch, 1)
	return func(i int) int {
			for b := 1; b <= batch; b++ {
				src.Set(i*batch + b)
			}
			return batch
		}, func(rounds int) error {
			if want := rounds * len(last); calls != want {
				return fmt.Errorf("watchers fired %d times, want %d", calls, want)
			}
			for i, v := range last {
				if want := rounds*batch + batch; v != want {
					return fmt.Errorf("watcher %d saw %d, want %d", i, v, want)
				}
			}
			return nil
		}
}

// arrayWorkload: an array of ListSize items with a computed sum and an
// scheduled effect reading it. Each round pushes one item and shifts one off, so the
// length stays fixed.
func arrayWorkload(rt *reactive.Runtime, p Profile) (round, check) {
	items := make([]any, p.ListSize)
	for i := range items {
		items[i] = 0
	}
	list := rt.Reactive(reactive.NewArray(items...)).(*reactive.Observable)
	sum := reactive.NewComputed(rt, func() int {
		total := 0
		list.ForEach(func(_, v any) {
			total += v.(int)
		})
		return total
	})
	// The reader is scheduled, so it runs once per flush rather than once
	// per element write.
	var (
		seen   int
		reader *reactive.Effect
	)
	job := reactive.NewJob(func() { reader.Run() })
	reader = rt.Effect(func() { seen = sum.Value() }, reactive.WithScheduler(func() { rt.QueueJob(job) }))
	return func(i int) int {
			list.Push(i)
			list.Shift()
			return 2
		}, func(rounds int) error {
			if list.Len() != p.ListSize {
				return fmt.Errorf("length is %d, want %d", list.Len(), p.ListSize)
			}
			// The array holds the last ListSize pushes, zeros padding the rest.
			want := 0
			for v := max(rounds-p.ListSize+1, 1); v <= rounds; v++ {
				want += v
			}
			if seen != want {
				return fmt.Errorf("sum is %d, want %d", seen, want)
			}
			return nil
		}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
