package reactive

import (
	"testing"

	reactorerrors "github.com/vango-dev/reactor/internal/errors"
)

// recorder collects what a Runtime reports.
type recorder struct {
	warnings []string
	errors   []error
	labels   []ErrorLabel
}

func (r *recorder) warned(code string) int {
	n := 0
	for _, w := range r.warnings {
		if w == code {
			n++
		}
	}
	return n
}

func newTestRuntime(t *testing.T, opts ...Option) (*Runtime, *recorder) {
	t.Helper()
	rec := &recorder{}
	base := []Option{
		WithWarnHandler(func(w *reactorerrors.ReactorError) {
			rec.warnings = append(rec.warnings, w.Code)
		}),
		WithErrorHandler(func(err error, label ErrorLabel) {
			rec.errors = append(rec.errors, err)
			rec.labels = append(rec.labels, label)
		}),
	}
	return New(append(base, opts...)...), rec
}

// countingObserver records instrumentation callbacks.
type countingObserver struct {
	flushes  []FlushStats
	started  []int
	runs     map[EffectKind]int
	errors   int
	warnings []string
}

func newCountingObserver() *countingObserver {
	return &countingObserver{runs: make(map[EffectKind]int)}
}

func (o *countingObserver) FlushStarted(depth int)          { o.started = append(o.started, depth) }
func (o *countingObserver) FlushCompleted(stats FlushStats) { o.flushes = append(o.flushes, stats) }
func (o *countingObserver) EffectRun(kind EffectKind)       { o.runs[kind]++ }
func (o *countingObserver) ErrorReported(ErrorLabel)        { o.errors++ }
func (o *countingObserver) Warned(code string)              { o.warnings = append(o.warnings, code) }

func newState(rt *Runtime, m map[string]any) *Observable {
	return rt.Reactive(ObjectOf(m)).(*Observable)
}
