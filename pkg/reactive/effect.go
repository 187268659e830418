package reactive

// Effect is a re-runnable unit of work whose reads are tracked.
//
// Running an effect records every observable read made by its body. When
// any of those reads is later invalidated, the effect reacts: it calls its
// scheduler if it has one, otherwise it re-runs immediately.
type Effect struct {
	rt *Runtime
	id uint64

	// fn is the effect body.
	fn func()

	// scheduler, when set, is called instead of re-running fn on trigger.
	scheduler func()

	// deps are the dependency sets this effect is currently a member of.
	deps []*Dep

	// parent is the effect that was active when this run began.
	parent *Effect

	active       bool
	running      bool
	deferStop    bool
	computed     bool
	allowRecurse bool
	kind         EffectKind
	label        ErrorLabel

	onStop    func()
	onTrack   func(DebuggerEvent)
	onTrigger func(DebuggerEvent)
}

// EffectOption configures an Effect.
type EffectOption interface {
	applyEffect(e *effectConfig)
}

type effectConfig struct {
	effect *Effect
	lazy   bool
	scope  *Scope
}

type effectOptionFunc func(*effectConfig)

func (f effectOptionFunc) applyEffect(c *effectConfig) { f(c) }

// Lazy creates the effect without running it. Call Run to start tracking.
func Lazy() EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.lazy = true
	})
}

// InScope records the effect in s instead of the ambient scope.
func InScope(s *Scope) EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.scope = s
	})
}

// WithScheduler makes the effect call fn instead of re-running when one of
// its dependencies changes.
func WithScheduler(fn func()) EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.effect.scheduler = fn
	})
}

// OnStop registers fn to run when the effect is stopped.
func OnStop(fn func()) EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.effect.onStop = fn
	})
}

// AllowRecurse lets the effect be re-triggered by its own writes.
func AllowRecurse() EffectOption {
	return effectOptionFunc(func(c *effectConfig) {
		c.effect.allowRecurse = true
	})
}

// HookOption is a debugger hook. It configures an Effect or a watcher.
type HookOption struct {
	onTrack   func(DebuggerEvent)
	onTrigger func(DebuggerEvent)
}

func (h HookOption) applyEffect(c *effectConfig) {
	if h.onTrack != nil {
		c.effect.onTrack = h.onTrack
	}
	if h.onTrigger != nil {
		c.effect.onTrigger = h.onTrigger
	}
}

// OnTrack registers a debugger hook called for every dependency recorded.
func OnTrack(fn func(DebuggerEvent)) HookOption {
	return HookOption{onTrack: fn}
}

// OnTrigger registers a debugger hook called whenever the effect reacts to
// a mutation.
func OnTrigger(fn func(DebuggerEvent)) HookOption {
	return HookOption{onTrigger: fn}
}

// Effect creates an effect and, unless Lazy is given, runs it immediately.
// The effect is recorded in the ambient scope so that stopping the scope
// stops it.
//
// Example:
//
//	rt.Effect(func() {
//	    fmt.Println("Count is:", count.Value())
//	})
func (rt *Runtime) Effect(fn func(), opts ...EffectOption) *Effect {
	e := rt.newEffect(fn, KindEffect, LabelEffect)
	cfg := effectConfig{effect: e}
	for _, opt := range opts {
		opt.applyEffect(&cfg)
	}
	rt.recordEffectScope(e, cfg.scope)
	if !cfg.lazy {
		e.Run()
	}
	return e
}

func (rt *Runtime) newEffect(fn func(), kind EffectKind, label ErrorLabel) *Effect {
	return &Effect{
		rt:     rt,
		id:     nextID(),
		fn:     fn,
		active: true,
		kind:   kind,
		label:  label,
	}
}

// ID returns the unique identifier of the effect.
func (e *Effect) ID() uint64 {
	return e.id
}

// Active reports whether the effect has not been stopped.
func (e *Effect) Active() bool {
	return e.active
}

// Deps returns the number of dependency sets the effect belongs to.
func (e *Effect) Deps() int {
	return len(e.deps)
}

// Run executes the effect body, re-collecting its dependencies. Running an
// effect that is already on the active run chain is a no-op. A stopped
// effect runs its body once without collecting dependencies of its own.
func (e *Effect) Run() {
	e.run()
}

// run executes the body and reports whether it completed without panic.
func (e *Effect) run() bool {
	rt := e.rt
	if !e.active {
		return rt.callWithErrorHandling(e.label, e.fn)
	}
	for p := rt.activeEffect; p != nil; p = p.parent {
		if p == e {
			return false
		}
	}

	e.parent = rt.activeEffect
	lastShouldTrack := rt.shouldTrack
	rt.activeEffect = e
	rt.shouldTrack = true
	e.running = true
	e.cleanupDeps()

	defer func() {
		rt.activeEffect = e.parent
		rt.shouldTrack = lastShouldTrack
		e.parent = nil
		e.running = false
		if e.deferStop {
			e.deferStop = false
			e.Stop()
		}
	}()

	rt.observer.EffectRun(e.kind)
	return rt.callWithErrorHandling(e.label, e.fn)
}

// Stop deactivates the effect: it leaves every dependency set and will not
// react again. Stopping an effect from inside its own run takes effect when
// the run returns.
func (e *Effect) Stop() {
	if e.running {
		e.deferStop = true
		return
	}
	if !e.active {
		return
	}
	e.cleanupDeps()
	if e.onStop != nil {
		e.rt.callWithErrorHandling(LabelEffectStop, e.onStop)
	}
	e.active = false
}

// trigger reacts to an invalidated dependency.
func (e *Effect) trigger(ev DebuggerEvent) {
	if e.onTrigger != nil {
		ev.Effect = e
		e.onTrigger(ev)
	}
	if e.scheduler != nil {
		e.scheduler()
		return
	}
	e.run()
}

// cleanupDeps removes the effect from every dependency set so the next run
// can collect a fresh set.
func (e *Effect) cleanupDeps() {
	for _, dep := range e.deps {
		dep.remove(e)
	}
	e.deps = e.deps[:0]
}
