package reactive

import (
	"errors"
	"fmt"
	"runtime/debug"

	reactorerrors "github.com/vango-dev/reactor/internal/errors"
)

// ErrorLabel names the kind of user callback that failed.
type ErrorLabel string

const (
	LabelEffect         ErrorLabel = "effect"
	LabelComputedGetter ErrorLabel = "computed getter"
	LabelWatchGetter    ErrorLabel = "watcher getter"
	LabelWatchCallback  ErrorLabel = "watcher callback"
	LabelWatchCleanup   ErrorLabel = "watcher cleanup"
	LabelScheduler      ErrorLabel = "scheduler flush"
	LabelNextTick       ErrorLabel = "nextTick"
	LabelScopeCleanup   ErrorLabel = "scope cleanup"
	LabelEffectStop     ErrorLabel = "effect stop"
	LabelAsync          ErrorLabel = "async"
	LabelDispatch       ErrorLabel = "dispatch"
)

// ErrorHandler receives user callback failures. It is the single sink for
// panics recovered at callback boundaries and for asynchronous failures.
type ErrorHandler func(err error, label ErrorLabel)

// WarnHandler receives misuse warnings.
type WarnHandler func(w *reactorerrors.ReactorError)

// ErrAwaitClosed is reported when an awaited channel closes without
// delivering a result.
var ErrAwaitClosed = errors.New("reactive: awaited channel closed without result")

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// handleError funnels a failure to the error sink.
func (rt *Runtime) handleError(err error, label ErrorLabel) {
	if err == nil {
		return
	}
	rt.observer.ErrorReported(label)
	if rt.onError != nil {
		rt.onError(err, label)
		return
	}
	rt.logger.Error("unhandled error in "+string(label), "label", string(label), "error", err)
}

// callWithErrorHandling runs fn, recovering a panic into the error sink.
// It reports whether fn completed normally.
func (rt *Runtime) callWithErrorHandling(label ErrorLabel, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			rt.handleError(&PanicError{Value: r, Stack: debug.Stack()}, label)
			ok = false
		}
	}()
	fn()
	return true
}

// Await forwards the eventual failure of an asynchronous operation to the
// error sink. The result is read on a separate goroutine; a non-nil error is
// posted back to the runtime and reported on its thread during the next
// Flush. A nil result is ignored; a channel closed without a value reports
// ErrAwaitClosed.
func (rt *Runtime) Await(label ErrorLabel, result <-chan error) {
	if result == nil {
		return
	}
	go func() {
		err, ok := <-result
		if !ok {
			err = ErrAwaitClosed
		}
		if err == nil {
			return
		}
		rt.post(func() {
			rt.handleError(err, label)
		})
	}()
}
