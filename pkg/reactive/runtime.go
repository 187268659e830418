package reactive

import (
	"log/slog"
	"runtime"
	"sync"

	reactorerrors "github.com/vango-dev/reactor/internal/errors"
)

// Runtime is the execution context of the reactive system. It holds what
// would otherwise be process-wide state: the running effect, the tracking
// switch, the ambient scope, and the scheduler queues.
//
// A Runtime is not safe for concurrent use. Drive it from a single goroutine,
// either directly (calling Flush to pump pending work) or through a Loop.
type Runtime struct {
	logger   *slog.Logger
	onError  ErrorHandler
	onWarn   WarnHandler
	observer Observer
	budget   *FlushBudget
	debug    bool

	// activeEffect is the effect whose body is currently executing.
	// Reads made while it is set are recorded as its dependencies.
	activeEffect *Effect

	// shouldTrack gates dependency recording. trackStack saves previous
	// values for PauseTracking/EnableTracking/ResetTracking.
	shouldTrack bool
	trackStack  []bool

	// activeScope collects effects and cleanups created while it is set.
	activeScope *Scope

	sched scheduler

	// microtasks run after the current synchronous work, on Flush.
	microtasks []func()
	wake       func()

	// inbox receives work posted from other goroutines (Await).
	inboxMu sync.Mutex
	inbox   []func()
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger used for warnings and unhandled errors.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithErrorHandler sets the sink that receives every user callback failure.
// Without one, failures are logged at error level.
func WithErrorHandler(h ErrorHandler) Option {
	return func(rt *Runtime) {
		rt.onError = h
	}
}

// WithWarnHandler sets the sink for misuse warnings.
// Without one, warnings are logged at warn level.
func WithWarnHandler(h WarnHandler) Option {
	return func(rt *Runtime) {
		rt.onWarn = h
	}
}

// WithObserver attaches an Observer notified about flushes, effect runs,
// errors and warnings.
func WithObserver(o Observer) Option {
	return func(rt *Runtime) {
		rt.observer = o
	}
}

// WithBudget installs a flush budget. See FlushBudget.
func WithBudget(b *FlushBudget) Option {
	return func(rt *Runtime) {
		rt.budget = b
	}
}

// WithDebug attaches caller locations to warnings.
func WithDebug(debug bool) Option {
	return func(rt *Runtime) {
		rt.debug = debug
	}
}

// WithWakeup registers fn to be called whenever work is queued for the next
// Flush while the microtask queue was empty. Loop uses it to schedule a pump.
func WithWakeup(fn func()) Option {
	return func(rt *Runtime) {
		rt.wake = fn
	}
}

// New creates a Runtime.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		logger:      slog.Default(),
		observer:    nopObserver{},
		shouldTrack: true,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.observer == nil {
		rt.observer = nopObserver{}
	}
	return rt
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// queueMicrotask schedules fn to run on the next Flush.
func (rt *Runtime) queueMicrotask(fn func()) {
	empty := len(rt.microtasks) == 0
	rt.microtasks = append(rt.microtasks, fn)
	if empty && rt.wake != nil {
		rt.wake()
	}
}

// post queues fn from any goroutine. It runs on the runtime's thread during
// the next Flush.
func (rt *Runtime) post(fn func()) {
	rt.inboxMu.Lock()
	rt.inbox = append(rt.inbox, fn)
	rt.inboxMu.Unlock()
	if rt.wake != nil {
		rt.wake()
	}
}

func (rt *Runtime) drainInbox() bool {
	rt.inboxMu.Lock()
	work := rt.inbox
	rt.inbox = nil
	rt.inboxMu.Unlock()
	for _, fn := range work {
		fn()
	}
	return len(work) > 0
}

// Flush pumps all pending work: posted messages, microtasks, and every
// scheduler flush they cause. It returns when the runtime is idle.
func (rt *Runtime) Flush() {
	for {
		ran := rt.drainInbox()
		for len(rt.microtasks) > 0 {
			task := rt.microtasks[0]
			rt.microtasks = rt.microtasks[1:]
			task()
			ran = true
		}
		if !ran {
			return
		}
	}
}

// Pending reports whether Flush has work to do.
func (rt *Runtime) Pending() bool {
	rt.inboxMu.Lock()
	n := len(rt.inbox)
	rt.inboxMu.Unlock()
	return n > 0 || len(rt.microtasks) > 0
}

// warn reports a misuse warning.
func (rt *Runtime) warn(code string, args ...any) {
	w := reactorerrors.New(code).WithArgs(args...)
	if rt.debug {
		if file, line, ok := callerOutsidePackage(); ok {
			w.WithLocation(file, line)
		}
	}
	rt.observer.Warned(code)
	if rt.onWarn != nil {
		rt.onWarn(w)
		return
	}
	attrs := append([]any{"code", w.Code}, args...)
	if w.Location != nil {
		attrs = append(attrs, "at", w.Location.String())
	}
	rt.logger.Warn(w.Message, attrs...)
}

// callerOutsidePackage finds the first stack frame outside this package.
func callerOutsidePackage() (string, int, bool) {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isReactivePackage(frame.Function) {
			return frame.File, frame.Line, true
		}
		if !more {
			return "", 0, false
		}
	}
}

func isReactivePackage(fn string) bool {
	const pkg = "github.com/vango-dev/reactor/pkg/reactive."
	return len(fn) >= len(pkg) && fn[:len(pkg)] == pkg
}
