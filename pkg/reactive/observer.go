package reactive

import "time"

// Observer receives instrumentation callbacks from a Runtime. All methods
// are invoked on the runtime's thread and must not call back into it.
type Observer interface {
	// FlushStarted is called when a scheduler flush pass begins.
	// depth is 0 for the outermost pass and grows for each re-flush.
	FlushStarted(depth int)

	// FlushCompleted is called when a flush pass (including its nested
	// re-flushes) finishes.
	FlushCompleted(stats FlushStats)

	// EffectRun is called every time an effect body executes.
	EffectRun(kind EffectKind)

	// ErrorReported is called for each failure sent to the error sink.
	ErrorReported(label ErrorLabel)

	// Warned is called for each misuse warning.
	Warned(code string)
}

// FlushStats summarizes one outermost flush.
type FlushStats struct {
	// Passes counts the outermost pass plus every re-flush it caused.
	Passes int

	// Jobs counts main-queue jobs executed (pre jobs included).
	Jobs int

	// PostCallbacks counts post-flush callbacks executed.
	PostCallbacks int

	// Dropped counts jobs skipped by the flush budget.
	Dropped int

	Duration time.Duration
}

// EffectKind classifies an effect for instrumentation.
type EffectKind string

const (
	KindEffect   EffectKind = "effect"
	KindComputed EffectKind = "computed"
	KindWatcher  EffectKind = "watcher"
)

type nopObserver struct{}

func (nopObserver) FlushStarted(int)          {}
func (nopObserver) FlushCompleted(FlushStats) {}
func (nopObserver) EffectRun(EffectKind)      {}
func (nopObserver) ErrorReported(ErrorLabel)  {}
func (nopObserver) Warned(string)             {}
