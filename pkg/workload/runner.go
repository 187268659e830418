package workload

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/telemetry"
)

// Result is the outcome of a scenario run.
type Result struct {
	Name     string         `json:"name"`
	Trace    []string       `json:"trace"`
	Runs     map[string]int `json:"runs"`
	Failures []string       `json:"failures,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Errors   int            `json:"errors"`
	Flushes  int            `json:"flushes"`
	Duration time.Duration  `json:"duration"`
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// Err returns a W301 error listing the failed expectations, or nil.
func (r *Result) Err() error {
	if r.Passed() {
		return nil
	}
	return errors.New(errors.CodeAssertionFailed).
		WithDetail(fmt.Sprintf("scenario %q: %s", r.Name, strings.Join(r.Failures, "; "))).
		WithArgs("failures", len(r.Failures))
}

// TraceText returns the trace as newline-terminated lines.
func (r *Result) TraceText() string {
	if len(r.Trace) == 0 {
		return ""
	}
	return strings.Join(r.Trace, "\n") + "\n"
}

// Runner executes scenarios on fresh runtimes.
type Runner struct {
	logger   *slog.Logger
	observer reactive.Observer
	budget   *reactive.FlushBudgetConfig
	debug    bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger for run progress.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithObserver adds an observer to every runtime the runner creates.
func WithObserver(o reactive.Observer) RunnerOption {
	return func(r *Runner) {
		r.observer = o
	}
}

// WithBudget gives every runtime a flush budget built from cfg.
func WithBudget(cfg *reactive.FlushBudgetConfig) RunnerOption {
	return func(r *Runner) {
		r.budget = cfg
	}
}

// WithDebug attaches caller locations to runtime warnings.
func WithDebug(debug bool) RunnerOption {
	return func(r *Runner) {
		r.debug = debug
	}
}

// NewRunner creates a scenario runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// runtimeOptions returns the options shared by every runtime the runner
// creates. own observes alongside the configured observer.
func (r *Runner) runtimeOptions(own reactive.Observer) []reactive.Option {
	opts := []reactive.Option{
		reactive.WithLogger(r.logger),
		reactive.WithDebug(r.debug),
		reactive.WithObserver(telemetry.Multi(own, r.observer)),
	}
	if r.budget != nil {
		opts = append(opts, reactive.WithBudget(reactive.NewFlushBudget(r.budget)))
	}
	return opts
}

// run holds the state of one scenario execution.
type run struct {
	sc  *Scenario
	rt  *reactive.Runtime
	res *Result

	root      *reactive.Observable
	refs      map[string]*reactive.Ref[any]
	computeds map[string]*reactive.Computed[any]
	effects   map[string]*reactive.Effect
	watchers  map[string]reactive.StopHandle
}

func (x *run) log(format string, args ...any) {
	x.res.Trace = append(x.res.Trace, fmt.Sprintf(format, args...))
}

// traceObserver writes flush summaries to the trace.
type traceObserver struct{ x *run }

func (o traceObserver) FlushStarted(int) {}

func (o traceObserver) FlushCompleted(stats reactive.FlushStats) {
	o.x.res.Flushes++
	line := fmt.Sprintf("flush: passes=%d jobs=%d post=%d", stats.Passes, stats.Jobs, stats.PostCallbacks)
	if stats.Dropped > 0 {
		line += fmt.Sprintf(" dropped=%d", stats.Dropped)
	}
	o.x.log("%s", line)
}

func (o traceObserver) EffectRun(reactive.EffectKind)     {}
func (o traceObserver) ErrorReported(reactive.ErrorLabel) {}
func (o traceObserver) Warned(string)                     {}

// Run executes sc on a new runtime. The error is non-nil when the scenario
// cannot be executed; failed expectations are reported in the result.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	x := &run{
		sc:        sc,
		res:       &Result{Name: sc.Name, Runs: make(map[string]int)},
		refs:      make(map[string]*reactive.Ref[any]),
		computeds: make(map[string]*reactive.Computed[any]),
		effects:   make(map[string]*reactive.Effect),
		watchers:  make(map[string]reactive.StopHandle),
	}

	x.rt = reactive.New(append(r.runtimeOptions(traceObserver{x}),
		reactive.WithErrorHandler(func(err error, label reactive.ErrorLabel) {
			x.res.Errors++
			x.log("error %s: %v", label, err)
		}),
		reactive.WithWarnHandler(func(w *errors.ReactorError) {
			x.res.Warnings = append(x.res.Warnings, w.Code)
			x.log("warn %s: %s", w.Code, w.Message)
		}),
	)...)

	if err := x.setup(); err != nil {
		return nil, err
	}
	for i := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := x.step(i+1, &sc.Steps[i]); err != nil {
			return nil, err
		}
	}
	x.rt.Flush()

	x.res.Duration = time.Since(start)
	r.logger.Debug("scenario finished",
		"scenario", sc.Name,
		"steps", len(sc.Steps),
		"flushes", x.res.Flushes,
		"failures", len(x.res.Failures),
		"duration", x.res.Duration)
	return x.res, nil
}

func (x *run) setup() error {
	rootValue := any(reactive.NewObject())
	if x.sc.State.Kind != 0 {
		v, err := nodeValue(&x.sc.State)
		if err != nil {
			return err
		}
		rootValue = v
	}
	x.root = x.rt.Reactive(rootValue.(reactive.Container)).(*reactive.Observable)

	names := make([]string, 0, len(x.sc.Refs))
	for name := range x.sc.Refs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		x.refs[name] = reactive.NewRef[any](x.rt, plainValue(x.sc.Refs[name]))
	}

	// Computeds are lazy; their getters resolve other computeds by name
	// when first read.
	for _, def := range x.sc.Computeds {
		x.computeds[def.Name] = reactive.NewComputed(x.rt, func() any {
			x.res.Runs[def.Name]++
			v := x.compute(def)
			x.log("computed %s = %s", def.Name, formatValue(v))
			return v
		})
	}

	for _, def := range x.sc.Effects {
		x.effects[def.Name] = x.rt.Effect(func() {
			x.res.Runs[def.Name]++
			x.log("effect %s: %s", def.Name, x.readAll(def.Reads))
		})
	}

	for _, def := range x.sc.Watchers {
		x.watchers[def.Name] = x.watch(def)
	}
	return nil
}

func (x *run) compute(def ComputedSpec) any {
	v := x.read(def.Source)
	if def.Op == OpGet {
		return v
	}
	c, ok := v.(reactive.Container)
	if !ok {
		return nil
	}
	switch def.Op {
	case OpSum:
		return sumItems(c)
	case OpLen:
		return c.Len()
	case OpJoin:
		return joinItems(c)
	case OpKeys:
		return joinKeys(c)
	}
	return nil
}

// read resolves a source: "ref:<name>", "computed:<name>", "state" or a
// dotted path into the state tree.
func (x *run) read(src string) any {
	if name, ok := strings.CutPrefix(src, refPrefix); ok {
		return x.refs[name].Value()
	}
	if name, ok := strings.CutPrefix(src, computedPrefix); ok {
		return x.computeds[name].Value()
	}
	return lookup(x.root, src)
}

func (x *run) readAll(srcs []string) string {
	parts := make([]string, len(srcs))
	for i, src := range srcs {
		parts[i] = src + "=" + formatValue(x.read(src))
	}
	return strings.Join(parts, " ")
}

// watchSource maps a source to what Watch accepts: refs and computeds are
// passed as references, the root as its observable, paths as getters.
func (x *run) watchSource(src string) any {
	if name, ok := strings.CutPrefix(src, refPrefix); ok {
		return x.refs[name]
	}
	if name, ok := strings.CutPrefix(src, computedPrefix); ok {
		return x.computeds[name]
	}
	if src == rootSource {
		return x.root
	}
	return func() any { return lookup(x.root, src) }
}

func (x *run) watch(def WatcherSpec) reactive.StopHandle {
	var opts []reactive.WatchOption
	if def.Flush != "" {
		opts = append(opts, reactive.Flush(reactive.FlushTiming(def.Flush)))
	}
	if def.Deep {
		opts = append(opts, reactive.Deep())
	}
	if def.Immediate {
		opts = append(opts, reactive.Immediate())
	}

	if def.Effect {
		return x.rt.WatchEffect(func(onCleanup reactive.OnCleanup) {
			x.res.Runs[def.Name]++
			x.log("watchEffect %s: %s", def.Name, x.readAll(def.Sources))
			onCleanup(func() { x.log("cleanup %s", def.Name) })
		}, opts...)
	}

	var source any
	if len(def.Sources) == 1 {
		source = x.watchSource(def.Sources[0])
	} else {
		list := make([]any, len(def.Sources))
		for i, src := range def.Sources {
			list[i] = x.watchSource(src)
		}
		source = list
	}
	return x.rt.Watch(source, func(value, old any, _ reactive.OnCleanup) {
		x.res.Runs[def.Name]++
		x.log("watch %s: %s <- %s", def.Name, formatValue(value), formatValue(old))
	}, opts...)
}

func (x *run) list(path string) (reactive.Container, error) {
	v := lookup(x.root, path)
	c, ok := v.(reactive.Container)
	if !ok {
		return nil, invalid("path %q is %s, not an array", path, formatValue(v))
	}
	return c, nil
}

func (x *run) step(n int, s *Step) error {
	what, _ := s.action()
	switch what {
	case "set":
		c, key, err := parent(x.root, s.Set.Path)
		if err != nil {
			return err
		}
		v := plainValue(s.Set.Value)
		x.log("> set %s = %s", s.Set.Path, formatValue(v))
		c.Set(key, v)

	case "delete":
		c, key, err := parent(x.root, s.Delete)
		if err != nil {
			return err
		}
		x.log("> delete %s", s.Delete)
		c.Delete(key)

	case "push", "unshift":
		ls := s.Push
		if what == "unshift" {
			ls = s.Unshift
		}
		c, err := x.list(ls.Path)
		if err != nil {
			return err
		}
		values := plainValues(ls.Values)
		x.log("> %s %s %s", what, ls.Path, formatValue(values))
		l, ok := c.(reactive.List)
		if !ok {
			return invalid("step %d: %s is not a list", n, ls.Path)
		}
		if what == "push" {
			l.Push(values...)
		} else {
			l.Unshift(values...)
		}

	case "pop", "shift":
		path := s.Pop
		if what == "shift" {
			path = s.Shift
		}
		c, err := x.list(path)
		if err != nil {
			return err
		}
		l, ok := c.(reactive.List)
		if !ok {
			return invalid("step %d: %s is not a list", n, path)
		}
		x.log("> %s %s", what, path)
		var removed any
		if what == "pop" {
			removed = l.Pop()
		} else {
			removed = l.Shift()
		}
		x.log("  removed %s", formatValue(removed))

	case "splice":
		sp := s.Splice
		c, err := x.list(sp.Path)
		if err != nil {
			return err
		}
		l, ok := c.(reactive.List)
		if !ok {
			return invalid("step %d: %s is not a list", n, sp.Path)
		}
		values := plainValues(sp.Values)
		x.log("> splice %s %d %d %s", sp.Path, sp.Start, sp.DeleteCount, formatValue(values))
		removed := l.Splice(sp.Start, sp.DeleteCount, values...)
		x.log("  removed %s", formatValue(removed))

	case "ref":
		v := plainValue(s.Ref.Value)
		x.log("> ref %s = %s", s.Ref.Name, formatValue(v))
		x.refs[s.Ref.Name].Set(v)

	case "flush":
		x.log("> flush")
		x.rt.Flush()

	case "stop":
		x.log("> stop %s", s.Stop)
		if e, ok := x.effects[s.Stop]; ok {
			e.Stop()
		} else if stop, ok := x.watchers[s.Stop]; ok {
			stop()
		} else if c, ok := x.computeds[s.Stop]; ok {
			c.Stop()
		}

	case "expect":
		x.log("> expect")
		x.expect(n, s.Expect)
	}
	return nil
}

func (x *run) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	x.res.Failures = append(x.res.Failures, msg)
	x.log("! %s", msg)
}

func (x *run) expect(n int, e *Expect) {
	names := make([]string, 0, len(e.Runs))
	for name := range e.Runs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if got, want := x.res.Runs[name], e.Runs[name]; got != want {
			x.fail("step %d: %s ran %d times, want %d", n, name, got, want)
		}
	}

	srcs := make([]string, 0, len(e.Values))
	for src := range e.Values {
		srcs = append(srcs, src)
	}
	slices.Sort(srcs)
	for _, src := range srcs {
		got := formatValue(x.read(src))
		want := formatValue(plainValue(e.Values[src]))
		if got != want {
			x.fail("step %d: %s is %s, want %s", n, src, got, want)
		}
	}

	for _, line := range e.Log {
		if !slices.Contains(x.res.Trace, line) {
			x.fail("step %d: log line %q not found", n, line)
		}
	}
}
