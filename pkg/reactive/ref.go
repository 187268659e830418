package reactive

import reactorerrors "github.com/vango-dev/reactor/internal/errors"

// Reference is a single-slot observable value: a Ref, a Computed, a
// CustomRef or a KeyRef. Observables unwrap stored references on read and
// assign through them on write.
type Reference interface {
	refValue() any
	setRefValue(v any)
}

// IsRef reports whether v is a Reference.
func IsRef(v any) bool {
	_, ok := v.(Reference)
	return ok
}

// Unref returns the value of a Reference, or v itself.
func Unref(v any) any {
	if r, ok := v.(Reference); ok {
		return r.refValue()
	}
	return v
}

// refKey is the key reported in DebuggerEvents for reference reads.
const refKey = "value"

// trackRef records a read of a reference's private dependency set.
func (rt *Runtime) trackRef(dep *Dep, ref any) {
	if !rt.isTracking() {
		return
	}
	rt.trackEffects(dep, DebuggerEvent{Target: ref, Key: refKey, Track: TrackGet})
}

// triggerRef notifies the dependents of a reference.
func (rt *Runtime) triggerRef(dep *Dep, ref any, newValue, oldValue any) {
	rt.triggerEffects([]*Dep{dep}, DebuggerEvent{
		Target:   ref,
		Key:      refKey,
		Trigger:  TriggerSet,
		NewValue: newValue,
		OldValue: oldValue,
	})
}

// ============================================================================
// Ref
// ============================================================================

// Ref is a boxed observable value.
//
// Unless shallow, a holder payload is stored raw and exposed through its
// reactive view, provided the view is assignable to T (T is Container or
// any).
type Ref[T any] struct {
	rt  *Runtime
	id  uint64
	dep *Dep

	// raw is the stored value; value is what readers see.
	raw   T
	value T

	shallow bool
	equal   func(a, b T) bool
}

// NewRef creates a deep ref holding initial.
//
// Example:
//
//	count := reactive.NewRef(rt, 0)
//	rt.Effect(func() {
//	    fmt.Println("Count:", count.Value())
//	})
//	count.Set(5)
func NewRef[T any](rt *Runtime, initial T) *Ref[T] {
	r := &Ref[T]{rt: rt, id: nextID(), dep: newDep()}
	r.raw = r.toRaw(initial)
	r.value = r.toView(r.raw)
	return r
}

// NewShallowRef creates a ref that stores initial as-is. Only replacing
// the value notifies; mutations inside it do not.
func NewShallowRef[T any](rt *Runtime, initial T) *Ref[T] {
	return &Ref[T]{rt: rt, id: nextID(), dep: newDep(), raw: initial, value: initial, shallow: true}
}

func (r *Ref[T]) toRaw(v T) T {
	if r.shallow {
		return v
	}
	if raw, ok := ToRaw(any(v)).(T); ok {
		return raw
	}
	return v
}

func (r *Ref[T]) toView(v T) T {
	if r.shallow {
		return v
	}
	c, ok := any(v).(Target)
	if !ok {
		return v
	}
	if view, ok := r.rt.Reactive(c).(T); ok {
		return view
	}
	return v
}

// ID returns the unique identifier of the ref.
func (r *Ref[T]) ID() uint64 {
	return r.id
}

// Value returns the current value and records a dependency on the ref.
func (r *Ref[T]) Value() T {
	r.rt.trackRef(r.dep, r)
	return r.value
}

// Peek returns the current value without recording a dependency.
func (r *Ref[T]) Peek() T {
	return r.value
}

// Set stores v, notifying dependents if it differs from the current value.
func (r *Ref[T]) Set(v T) {
	newRaw := r.toRaw(v)
	if !r.changed(newRaw, r.raw) {
		return
	}
	oldRaw := r.raw
	r.raw = newRaw
	if r.shallow {
		r.value = v
	} else {
		r.value = r.toView(newRaw)
	}
	r.rt.triggerRef(r.dep, r, newRaw, oldRaw)
}

// Update sets the value to fn applied to the current value.
func (r *Ref[T]) Update(fn func(T) T) {
	r.Set(fn(r.Peek()))
}

// WithEquals replaces the sameness test used by Set.
func (r *Ref[T]) WithEquals(fn func(a, b T) bool) *Ref[T] {
	r.equal = fn
	return r
}

func (r *Ref[T]) changed(a, b T) bool {
	if r.equal != nil {
		return !r.equal(a, b)
	}
	return hasChanged(any(a), any(b))
}

func (r *Ref[T]) isShallowRef() bool {
	return r.shallow
}

func (r *Ref[T]) refValue() any {
	return r.Value()
}

func (r *Ref[T]) setRefValue(v any) {
	t, ok := v.(T)
	if !ok {
		if v != nil {
			r.rt.warn(reactorerrors.CodeRefTypeMismatch, "want", typeName(r.raw), "got", typeName(v))
			return
		}
		var zero T
		t = zero
	}
	r.Set(t)
}

// TriggerRef notifies the dependents of r without changing its value. Use
// it after mutating the payload of a shallow ref in place.
func TriggerRef[T any](r *Ref[T]) {
	r.rt.triggerRef(r.dep, r, r.raw, r.raw)
}

// ============================================================================
// CustomRef
// ============================================================================

// CustomRefFactory builds the accessors of a CustomRef. It receives the
// functions that record a read and notify dependents.
type CustomRefFactory[T any] func(track, trigger func()) (get func() T, set func(T))

// CustomRef is a reference whose reads and writes are defined by a factory,
// for example to debounce writes.
type CustomRef[T any] struct {
	dep *Dep
	get func() T
	set func(T)
}

// NewCustomRef creates a CustomRef from factory.
func NewCustomRef[T any](rt *Runtime, factory CustomRefFactory[T]) *CustomRef[T] {
	r := &CustomRef[T]{dep: newDep()}
	track := func() { rt.trackRef(r.dep, r) }
	trigger := func() { rt.triggerRef(r.dep, r, nil, nil) }
	r.get, r.set = factory(track, trigger)
	return r
}

// Value returns the value produced by the factory's getter.
func (r *CustomRef[T]) Value() T {
	return r.get()
}

// Set passes v to the factory's setter.
func (r *CustomRef[T]) Set(v T) {
	r.set(v)
}

func (r *CustomRef[T]) refValue() any {
	return r.Value()
}

func (r *CustomRef[T]) setRefValue(v any) {
	if t, ok := v.(T); ok {
		r.Set(t)
	}
}

// ============================================================================
// KeyRef
// ============================================================================

// KeyRef is a reference bound to one key of a Container. Reads and writes
// go through the container, so dependents of the key are notified.
type KeyRef struct {
	source Container
	key    any
}

// Key returns the bound key.
func (r *KeyRef) Key() any {
	return r.key
}

// Value reads the key.
func (r *KeyRef) Value() any {
	return r.source.Get(r.key)
}

// Set writes the key.
func (r *KeyRef) Set(v any) {
	r.source.Set(r.key, v)
}

func (r *KeyRef) refValue() any {
	return r.Value()
}

func (r *KeyRef) setRefValue(v any) {
	r.Set(v)
}

// ToRef returns a reference to key of source. If the raw holder already
// stores a reference under key, that reference is returned.
func ToRef(source Container, key any) Reference {
	if existing, ok := rawValue(source, key).(Reference); ok {
		return existing
	}
	return &KeyRef{source: source, key: key}
}

// ToRefs returns a reference for every current key of source.
func ToRefs(source Container) map[any]Reference {
	keys := ToRaw(source).(Container).Keys()
	refs := make(map[any]Reference, len(keys))
	for _, k := range keys {
		refs[k] = ToRef(source, k)
	}
	return refs
}

// rawValue reads key without tracking or unwrapping.
func rawValue(source Container, key any) any {
	if o, ok := source.(*Observable); ok {
		return o.raw.Get(key)
	}
	return source.Get(key)
}
