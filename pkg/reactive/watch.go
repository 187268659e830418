package reactive

import reactorerrors "github.com/vango-dev/reactor/internal/errors"

// FlushTiming selects when a watcher reacts to a change.
type FlushTiming string

const (
	// FlushPre queues the watcher ahead of ordered jobs in the next flush.
	FlushPre FlushTiming = "pre"

	// FlushPost queues the watcher after every job of the next flush.
	FlushPost FlushTiming = "post"

	// FlushSync reacts inline, at the mutation.
	FlushSync FlushTiming = "sync"
)

// OnCleanup registers a function that runs before the next invocation of
// the watcher and when it stops.
type OnCleanup func(cleanup func())

// WatchCallback receives the new and previous value of a watched source.
// For a list of sources both values are []any.
type WatchCallback func(value, oldValue any, onCleanup OnCleanup)

// StopHandle stops a watcher. Calling it more than once is harmless.
type StopHandle func()

// WatchOption configures a watcher.
type WatchOption interface {
	applyWatch(c *watchConfig)
}

type watchConfig struct {
	immediate bool
	deep      bool
	flush     FlushTiming
	onTrack   func(DebuggerEvent)
	onTrigger func(DebuggerEvent)
}

type watchOptionFunc func(*watchConfig)

func (f watchOptionFunc) applyWatch(c *watchConfig) { f(c) }

func (h HookOption) applyWatch(c *watchConfig) {
	if h.onTrack != nil {
		c.onTrack = h.onTrack
	}
	if h.onTrigger != nil {
		c.onTrigger = h.onTrigger
	}
}

// Immediate runs the callback once at registration, with a nil old value.
func Immediate() WatchOption {
	return watchOptionFunc(func(c *watchConfig) {
		c.immediate = true
	})
}

// Deep makes the watcher depend on every value reachable from the source.
func Deep() WatchOption {
	return watchOptionFunc(func(c *watchConfig) {
		c.deep = true
	})
}

// Flush sets the flush timing. The default is FlushPre.
func Flush(timing FlushTiming) WatchOption {
	return watchOptionFunc(func(c *watchConfig) {
		c.flush = timing
	})
}

// Watch calls cb whenever the value of source changes.
//
// source is one of:
//   - a Reference (Ref, Computed, CustomRef, KeyRef): its value is watched
//   - an *Observable: watched deeply, the callback receives the view
//   - a func() any getter
//   - a []any of the above: the callback receives []any values and fires
//     when any of them changes
//
// Example:
//
//	stop := rt.Watch(count, func(value, old any, _ reactive.OnCleanup) {
//	    fmt.Println(old, "->", value)
//	})
//	defer stop()
func (rt *Runtime) Watch(source any, cb WatchCallback, opts ...WatchOption) StopHandle {
	return rt.doWatch(source, cb, opts)
}

// WatchEffect runs fn immediately and again whenever something it read
// changes.
func (rt *Runtime) WatchEffect(fn func(onCleanup OnCleanup), opts ...WatchOption) StopHandle {
	return rt.doWatch(fn, nil, opts)
}

// WatchValue watches a typed getter.
func WatchValue[T any](rt *Runtime, getter func() T, cb func(value, oldValue T), opts ...WatchOption) StopHandle {
	return rt.Watch(func() any { return getter() }, func(value, oldValue any, _ OnCleanup) {
		v, _ := value.(T)
		old, _ := oldValue.(T)
		cb(v, old)
	}, opts...)
}

func (rt *Runtime) doWatch(source any, cb WatchCallback, opts []WatchOption) StopHandle {
	cfg := watchConfig{flush: FlushPre}
	for _, opt := range opts {
		opt.applyWatch(&cfg)
	}
	if cb == nil && (cfg.immediate || cfg.deep) {
		rt.warn(reactorerrors.CodeWatchOptionNoCb)
	}

	var (
		effect       *Effect
		cleanup      func()
		deep         = cfg.deep
		forceTrigger bool
		isMulti      bool
	)

	runCleanup := func() {
		if cleanup != nil {
			fn := cleanup
			cleanup = nil
			rt.callWithErrorHandling(LabelWatchCleanup, fn)
		}
	}
	onCleanup := func(fn func()) {
		cleanup = fn
	}

	var getter func() any
	switch src := source.(type) {
	case Reference:
		getter = src.refValue
		if s, ok := src.(interface{ isShallowRef() bool }); ok {
			forceTrigger = s.isShallowRef()
		}
	case *Observable:
		getter = func() any { return src }
		deep = true
	case []any:
		isMulti = true
		for _, s := range src {
			if IsReactive(s) {
				forceTrigger = true
			}
		}
		getter = func() any {
			values := make([]any, len(src))
			for i, s := range src {
				values[i] = rt.readSource(s)
			}
			return values
		}
	case func() any:
		if cb != nil {
			getter = func() any {
				var v any
				rt.callWithErrorHandling(LabelWatchGetter, func() { v = src() })
				return v
			}
		} else {
			getter = func() any {
				runCleanup()
				var v any
				rt.callWithErrorHandling(LabelWatchCallback, func() { v = src() })
				return v
			}
		}
	case func(OnCleanup):
		getter = func() any {
			runCleanup()
			rt.callWithErrorHandling(LabelWatchCallback, func() { src(onCleanup) })
			return nil
		}
	default:
		rt.warn(reactorerrors.CodeInvalidWatch, "type", typeName(source))
		getter = func() any { return nil }
	}

	if cb != nil && deep {
		base := getter
		getter = func() any {
			return traverse(base(), make(map[any]struct{}))
		}
	}

	var (
		value    any
		oldValue any
		hasOld   bool
	)
	job := &Job{ID: NoID, AllowRecurse: cb != nil}
	job.Run = func() {
		if !effect.active {
			return
		}
		if cb == nil {
			effect.run()
			return
		}
		effect.run()
		newValue := value
		if !deep && !forceTrigger && !valueChanged(newValue, oldValue, hasOld, isMulti) {
			return
		}
		runCleanup()
		var old any
		if hasOld {
			old = oldValue
		}
		rt.callWithErrorHandling(LabelWatchCallback, func() {
			cb(newValue, old, onCleanup)
		})
		oldValue = newValue
		hasOld = true
	}

	effect = rt.newEffect(func() { value = getter() }, KindWatcher, LabelWatchGetter)
	effect.onStop = runCleanup
	effect.onTrack = cfg.onTrack
	effect.onTrigger = cfg.onTrigger
	switch cfg.flush {
	case FlushSync:
		effect.scheduler = job.Run
	case FlushPost:
		effect.scheduler = func() { rt.QueuePostFlushCb(job) }
	default:
		job.Pre = true
		effect.scheduler = func() { rt.QueueJob(job) }
	}
	scope := rt.recordEffectScope(effect, nil)

	switch {
	case cb != nil && cfg.immediate:
		job.Run()
	case cb != nil:
		effect.run()
		oldValue = value
		hasOld = true
	case cfg.flush == FlushPost:
		rt.QueuePostFlushCb(NewJob(func() {
			if effect.active {
				effect.run()
			}
		}))
	default:
		effect.run()
	}

	return func() {
		effect.Stop()
		if scope != nil {
			scope.removeEffect(effect)
		}
	}
}

// readSource reads one element of a multi-source watch.
func (rt *Runtime) readSource(s any) any {
	switch src := s.(type) {
	case Reference:
		return src.refValue()
	case *Observable:
		return traverse(src, make(map[any]struct{}))
	case func() any:
		var v any
		rt.callWithErrorHandling(LabelWatchGetter, func() { v = src() })
		return v
	}
	rt.warn(reactorerrors.CodeInvalidWatch, "type", typeName(s))
	return nil
}

// valueChanged decides whether a watcher callback fires. Without a previous
// value it always fires. Multi-source values fire when any element changed;
// an empty source list fires on every trigger.
func valueChanged(newValue, oldValue any, hasOld, multi bool) bool {
	if !hasOld {
		return true
	}
	if !multi {
		return hasChanged(newValue, oldValue)
	}
	newList, _ := newValue.([]any)
	oldList, _ := oldValue.([]any)
	if len(newList) == 0 {
		return true
	}
	for i, v := range newList {
		if i >= len(oldList) || hasChanged(v, oldList[i]) {
			return true
		}
	}
	return false
}

// traverse reads every value reachable from v so that the running effect
// depends on all of them. It returns v.
func traverse(v any, seen map[any]struct{}) any {
	switch x := v.(type) {
	case Reference:
		if visited(seen, x) {
			return v
		}
		traverse(x.refValue(), seen)
	case *Observable:
		if visited(seen, x) {
			return v
		}
		for _, k := range x.Keys() {
			traverse(x.Get(k), seen)
		}
	case Target:
		if visited(seen, x) {
			return v
		}
		for _, k := range x.Keys() {
			traverse(x.Get(k), seen)
		}
	case []any:
		for _, item := range x {
			traverse(item, seen)
		}
	}
	return v
}

func visited(seen map[any]struct{}, v any) bool {
	if _, ok := seen[v]; ok {
		return true
	}
	seen[v] = struct{}{}
	return false
}
