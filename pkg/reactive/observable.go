package reactive

import (
	"fmt"

	reactorerrors "github.com/vango-dev/reactor/internal/errors"
)

// Observable is an intercepting view over a raw holder. Reads record
// dependencies and writes notify them. Two flags give the four variants:
//
//	             deep              shallow
//	mutable      Reactive          ShallowReactive
//	readonly     Readonly          ShallowReadonly
//
// Deep views wrap nested holders lazily on read and unwrap stored refs.
// Readonly views reject writes with a warning and do not track reads.
type Observable struct {
	rt *Runtime

	// target receives delegated reads. It is the raw holder, or the
	// reactive view when this is a readonly view over it.
	target Container

	// raw is the innermost raw holder.
	raw Target

	readonly bool
	shallow  bool

	// readonly views created over this reactive view.
	readonlyView        *Observable
	shallowReadonlyView *Observable
}

// Reactive returns the deep mutable view of target.
//
// Example:
//
//	state := rt.Reactive(reactive.ObjectOf(map[string]any{"count": 0}))
//	rt.Effect(func() {
//	    fmt.Println("count:", state.Get("count"))
//	})
//	state.Set("count", 1)
func (rt *Runtime) Reactive(target Container) Container {
	return rt.createObservable(target, false, false)
}

// ShallowReactive returns a mutable view that tracks only top-level keys.
// Nested holders are returned as stored.
func (rt *Runtime) ShallowReactive(target Container) Container {
	return rt.createObservable(target, false, true)
}

// Readonly returns a deep readonly view of target. Over a reactive view, the
// readonly view still tracks through it.
func (rt *Runtime) Readonly(target Container) Container {
	return rt.createObservable(target, true, false)
}

// ShallowReadonly returns a readonly view that does not wrap nested values.
func (rt *Runtime) ShallowReadonly(target Container) Container {
	return rt.createObservable(target, true, true)
}

func (rt *Runtime) createObservable(target Container, readonly, shallow bool) Container {
	if o, ok := target.(*Observable); ok {
		if readonly && !o.readonly {
			return o.readonlyOver(shallow)
		}
		return o
	}
	t, ok := target.(Target)
	if !ok {
		rt.warn(reactorerrors.CodeNotObservable, "type", typeName(target))
		return target
	}
	st := t.state()
	if st.skip {
		return target
	}

	cache := &st.reactive
	switch {
	case readonly && shallow:
		cache = &st.shallowReadonly
	case readonly:
		cache = &st.readonly
	case shallow:
		cache = &st.shallowReactive
	}
	if *cache != nil {
		return *cache
	}
	o := &Observable{rt: rt, target: t, raw: t, readonly: readonly, shallow: shallow}
	*cache = o
	return o
}

// readonlyOver returns the cached readonly view delegating to o.
func (o *Observable) readonlyOver(shallow bool) *Observable {
	cache := &o.readonlyView
	if shallow {
		cache = &o.shallowReadonlyView
	}
	if *cache == nil {
		*cache = &Observable{rt: o.rt, target: o, raw: o.raw, readonly: true, shallow: shallow}
	}
	return *cache
}

// Raw returns the underlying raw holder.
func (o *Observable) Raw() Target {
	return o.raw
}

// IsReadonly reports whether writes are rejected.
func (o *Observable) IsReadonly() bool {
	return o.readonly
}

// IsShallow reports whether nested values are left unwrapped.
func (o *Observable) IsShallow() bool {
	return o.shallow
}

// IsReactive reports whether reads through o are tracked.
func (o *Observable) IsReactive() bool {
	if !o.readonly {
		return true
	}
	inner, ok := o.target.(*Observable)
	return ok && inner.IsReactive()
}

func (o *Observable) isArray() bool {
	_, ok := o.raw.(*Array)
	return ok
}

// arrayWrite checks a normalized key for an array write. Only indexes >= 0
// and LengthKey with an integer value are stored; the length value is
// normalized to a non-negative int.
func arrayWrite(raw Target, key, value any) (any, any, bool) {
	switch k := key.(type) {
	case int:
		return key, value, k >= 0
	case PseudoKey:
		if k != LengthKey {
			return key, value, false
		}
		n, ok := raw.normalizeKey(value).(int)
		if !ok {
			return key, value, false
		}
		return key, max(n, 0), true
	}
	return key, value, false
}

// validKey warns and reports false when key cannot index a Map holder.
func (o *Observable) validKey(key any) bool {
	if _, ok := o.raw.(*Map); !ok || comparableKey(key) {
		return true
	}
	o.rt.warn(reactorerrors.CodeInvalidKey, "key", fmt.Sprintf("%T", key))
	return false
}

// Get reads key, recording a dependency in mutable views.
func (o *Observable) Get(key any) any {
	key = o.raw.normalizeKey(key)
	if !o.validKey(key) {
		return nil
	}
	if !o.readonly {
		o.rt.Track(o.raw, TrackGet, key)
	}
	v := o.target.Get(key)
	if o.shallow {
		return v
	}
	if r, ok := v.(Reference); ok {
		if _, intKey := key.(int); o.isArray() && intKey {
			return v
		}
		return r.refValue()
	}
	return o.wrap(v)
}

// wrap returns the view of a nested value matching o's variant.
func (o *Observable) wrap(v any) any {
	c, ok := v.(Container)
	if !ok {
		return v
	}
	switch c.(type) {
	case *Observable, Target:
	default:
		return v
	}
	if o.readonly {
		return o.rt.createObservable(c, true, false)
	}
	return o.rt.createObservable(c, false, false)
}

// Set writes key. Writing a value the same as the current one does not
// notify. Writing a plain value over a stored ref assigns through the ref.
func (o *Observable) Set(key, value any) {
	if o.readonly {
		o.rt.warn(reactorerrors.CodeReadonlySet, "key", key)
		return
	}
	raw := o.raw
	key = raw.normalizeKey(key)
	if !o.validKey(key) {
		return
	}
	if o.isArray() {
		var ok bool
		if key, value, ok = arrayWrite(raw, key, value); !ok {
			return
		}
	}
	oldValue := raw.Get(key)
	if !o.shallow {
		value = ToRaw(value)
		oldValue = ToRaw(oldValue)
		if old, ok := oldValue.(Reference); ok && !o.isArray() && !IsRef(value) {
			old.setRefValue(value)
			return
		}
	}

	hadKey := raw.Has(key)
	raw.Set(key, value)
	if !hadKey {
		o.rt.Trigger(raw, TriggerAdd, key, value, nil)
	} else if hasChanged(value, oldValue) {
		o.rt.Trigger(raw, TriggerSet, key, value, oldValue)
	}
}

// Delete removes key, notifying dependents if it existed.
func (o *Observable) Delete(key any) bool {
	if o.readonly {
		o.rt.warn(reactorerrors.CodeReadonlyDelete, "key", key)
		return false
	}
	raw := o.raw
	key = raw.normalizeKey(key)
	if !o.validKey(key) {
		return false
	}
	hadKey := raw.Has(key)
	oldValue := raw.Get(key)
	deleted := raw.Delete(key)
	if deleted && hadKey {
		o.rt.Trigger(raw, TriggerDelete, key, nil, oldValue)
	}
	return deleted
}

// Has reports whether key is present, recording a dependency on key.
func (o *Observable) Has(key any) bool {
	key = o.raw.normalizeKey(key)
	if !o.validKey(key) {
		return false
	}
	if !o.readonly {
		o.rt.Track(o.raw, TrackHas, key)
	}
	return o.target.Has(key)
}

// iterationKey is the pseudo-key read by enumeration.
func (o *Observable) iterationKey() PseudoKey {
	if o.isArray() {
		return LengthKey
	}
	return IterateKey
}

// Keys returns the keys, recording a dependency on the key set.
func (o *Observable) Keys() []any {
	if !o.readonly {
		o.rt.Track(o.raw, TrackIterate, o.iterationKey())
	}
	return o.target.Keys()
}

// Len returns the number of entries, recording a dependency on the key set.
func (o *Observable) Len() int {
	if !o.readonly {
		o.rt.Track(o.raw, TrackIterate, o.iterationKey())
	}
	return o.target.Len()
}

// ForEach calls fn for every entry in iteration order. Values are read
// through Get.
func (o *Observable) ForEach(fn func(key, value any)) {
	for _, k := range o.Keys() {
		fn(k, o.Get(k))
	}
}

// Clear removes every entry, notifying every dependent of the holder.
func (o *Observable) Clear() {
	if o.readonly {
		o.rt.warn(reactorerrors.CodeReadonlyClear)
		return
	}
	raw := o.raw
	hadItems := raw.Len() > 0
	raw.Clear()
	if hadItems {
		o.rt.Trigger(raw, TriggerClear, nil, nil, nil)
	}
}

// ============================================================================
// Predicates
// ============================================================================

// IsReactive reports whether v is a view whose reads are tracked. A readonly
// view over a reactive view counts as reactive.
func IsReactive(v any) bool {
	o, ok := v.(*Observable)
	return ok && o.IsReactive()
}

// IsReadonly reports whether v is a readonly view.
func IsReadonly(v any) bool {
	o, ok := v.(*Observable)
	return ok && o.readonly
}

// IsShallow reports whether v is a shallow view.
func IsShallow(v any) bool {
	o, ok := v.(*Observable)
	return ok && o.shallow
}

// IsProxy reports whether v is any observable view.
func IsProxy(v any) bool {
	_, ok := v.(*Observable)
	return ok
}

// ToRaw returns the raw holder behind a view, or v itself.
func ToRaw(v any) any {
	if o, ok := v.(*Observable); ok {
		return o.raw
	}
	return v
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
