package reactive

// TrackOp identifies the kind of read being recorded.
type TrackOp string

const (
	TrackGet     TrackOp = "get"
	TrackHas     TrackOp = "has"
	TrackIterate TrackOp = "iterate"
)

// TriggerOp identifies the kind of mutation being notified.
type TriggerOp string

const (
	TriggerSet    TriggerOp = "set"
	TriggerAdd    TriggerOp = "add"
	TriggerDelete TriggerOp = "delete"
	TriggerClear  TriggerOp = "clear"
)

// PseudoKey is a dependency key that does not name a stored field.
type PseudoKey string

const (
	// IterateKey is read by code that enumerates a target's keys.
	IterateKey PseudoKey = "iterate"

	// LengthKey is an array's length.
	LengthKey PseudoKey = "length"
)

// DebuggerEvent describes a track or trigger, delivered to the OnTrack and
// OnTrigger effect hooks.
type DebuggerEvent struct {
	Effect   *Effect
	Target   any
	Key      any
	Track    TrackOp
	Trigger  TriggerOp
	NewValue any
	OldValue any
}

// Dep is the set of effects depending on one (target, key) pair.
// Membership is deduplicated and iteration follows insertion order.
type Dep struct {
	subs    []*Effect
	members map[*Effect]struct{}
}

func newDep() *Dep {
	return &Dep{members: make(map[*Effect]struct{})}
}

func (d *Dep) has(e *Effect) bool {
	_, ok := d.members[e]
	return ok
}

func (d *Dep) add(e *Effect) {
	d.members[e] = struct{}{}
	d.subs = append(d.subs, e)
}

func (d *Dep) remove(e *Effect) {
	if _, ok := d.members[e]; !ok {
		return
	}
	delete(d.members, e)
	for i, s := range d.subs {
		if s == e {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribed effects.
func (d *Dep) Len() int {
	if d == nil {
		return 0
	}
	return len(d.subs)
}

// targetState is the registry entry of one raw holder: its per-key
// dependency sets and its observable views. It lives inside the holder, so
// the runtime never keeps state objects alive.
type targetState struct {
	deps    map[any]*Dep
	depKeys []any

	reactive        *Observable
	shallowReactive *Observable
	readonly        *Observable
	shallowReadonly *Observable

	skip bool
}

func (s *targetState) depFor(key any) *Dep {
	if s.deps == nil {
		s.deps = make(map[any]*Dep)
	}
	dep, ok := s.deps[key]
	if !ok {
		dep = newDep()
		s.deps[key] = dep
		s.depKeys = append(s.depKeys, key)
	}
	return dep
}

// Track records that the active effect read key of target.
// It is a no-op when tracking is paused or no effect is running.
func (rt *Runtime) Track(target Target, op TrackOp, key any) {
	if !rt.isTracking() {
		return
	}
	dep := target.state().depFor(key)
	rt.trackEffects(dep, DebuggerEvent{Target: target, Key: key, Track: op})
}

func (rt *Runtime) isTracking() bool {
	return rt.shouldTrack && rt.activeEffect != nil
}

func (rt *Runtime) trackEffects(dep *Dep, ev DebuggerEvent) {
	e := rt.activeEffect
	if dep.has(e) {
		return
	}
	dep.add(e)
	e.deps = append(e.deps, dep)
	if e.onTrack != nil {
		ev.Effect = e
		e.onTrack(ev)
	}
}

// Trigger notifies the effects that depend on the mutated key of target.
func (rt *Runtime) Trigger(target Target, op TriggerOp, key any, newValue, oldValue any) {
	st := target.state()
	if len(st.deps) == 0 {
		return
	}
	_, isArray := target.(*Array)

	var deps []*Dep
	switch {
	case op == TriggerClear:
		for _, k := range st.depKeys {
			deps = append(deps, st.deps[k])
		}
	case key == LengthKey && isArray:
		newLen, _ := newValue.(int)
		for _, k := range st.depKeys {
			if k == LengthKey {
				deps = append(deps, st.deps[k])
			} else if i, ok := k.(int); ok && i >= newLen {
				deps = append(deps, st.deps[k])
			}
		}
	default:
		if key != nil {
			deps = append(deps, st.deps[key])
		}
		switch op {
		case TriggerAdd:
			if !isArray {
				deps = append(deps, st.deps[IterateKey])
			} else if _, ok := key.(int); ok {
				deps = append(deps, st.deps[LengthKey])
			}
		case TriggerDelete:
			if !isArray {
				deps = append(deps, st.deps[IterateKey])
			}
		}
	}

	rt.triggerEffects(deps, DebuggerEvent{
		Target:   target,
		Key:      key,
		Trigger:  op,
		NewValue: newValue,
		OldValue: oldValue,
	})
}

// triggerEffects lets every effect in deps react once. Computed effects go
// first so that an ordinary effect reading a computed value during its own
// reaction never observes a stale cache.
func (rt *Runtime) triggerEffects(deps []*Dep, ev DebuggerEvent) {
	var computed, plain []*Effect
	seen := make(map[*Effect]struct{})
	for _, dep := range deps {
		if dep == nil {
			continue
		}
		for _, e := range dep.subs {
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			if e == rt.activeEffect && !e.allowRecurse {
				continue
			}
			if e.computed {
				computed = append(computed, e)
			} else {
				plain = append(plain, e)
			}
		}
	}
	for _, e := range computed {
		e.trigger(ev)
	}
	for _, e := range plain {
		e.trigger(ev)
	}
}

// PauseTracking disables dependency recording until the matching
// ResetTracking.
func (rt *Runtime) PauseTracking() {
	rt.trackStack = append(rt.trackStack, rt.shouldTrack)
	rt.shouldTrack = false
}

// EnableTracking re-enables dependency recording until the matching
// ResetTracking.
func (rt *Runtime) EnableTracking() {
	rt.trackStack = append(rt.trackStack, rt.shouldTrack)
	rt.shouldTrack = true
}

// ResetTracking restores the tracking state saved by the last
// PauseTracking or EnableTracking.
func (rt *Runtime) ResetTracking() {
	n := len(rt.trackStack)
	if n == 0 {
		rt.shouldTrack = true
		return
	}
	rt.shouldTrack = rt.trackStack[n-1]
	rt.trackStack = rt.trackStack[:n-1]
}

// Untracked runs fn without recording dependencies.
//
// Example:
//
//	rt.Untracked(func() {
//	    // Reading count here won't subscribe the running effect
//	    fmt.Println("Current value:", count.Value())
//	})
func (rt *Runtime) Untracked(fn func()) {
	rt.PauseTracking()
	defer rt.ResetTracking()
	fn()
}
