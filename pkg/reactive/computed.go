package reactive

import reactorerrors "github.com/vango-dev/reactor/internal/errors"

// Computed is a cached value derived from other observables.
//
// Computeds are lazy: an upstream change only marks the computed dirty and
// notifies its dependents. The getter runs again on the next read, so
// several upstream changes before a read cost one recomputation.
type Computed[T any] struct {
	rt     *Runtime
	dep    *Dep
	effect *Effect

	value     T
	dirty     bool
	cacheable bool
	setter    func(T)
}

// ComputedOption configures a Computed.
type ComputedOption func(*computedConfig)

type computedConfig struct {
	noCache bool
}

// WithoutCache makes every read run the getter.
func WithoutCache() ComputedOption {
	return func(c *computedConfig) {
		c.noCache = true
	}
}

// NewComputed creates a readonly computed from getter.
//
// Example:
//
//	count := reactive.NewRef(rt, 1)
//	doubled := reactive.NewComputed(rt, func() int {
//	    return count.Value() * 2
//	})
//	fmt.Println(doubled.Value()) // 2
func NewComputed[T any](rt *Runtime, getter func() T, opts ...ComputedOption) *Computed[T] {
	return newComputed(rt, getter, nil, opts)
}

// NewWritableComputed creates a computed whose Set calls setter.
func NewWritableComputed[T any](rt *Runtime, getter func() T, setter func(T), opts ...ComputedOption) *Computed[T] {
	return newComputed(rt, getter, setter, opts)
}

func newComputed[T any](rt *Runtime, getter func() T, setter func(T), opts []ComputedOption) *Computed[T] {
	var cfg computedConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Computed[T]{
		rt:        rt,
		dep:       newDep(),
		dirty:     true,
		cacheable: !cfg.noCache,
		setter:    setter,
	}
	c.effect = rt.newEffect(func() {
		c.value = getter()
	}, KindComputed, LabelComputedGetter)
	c.effect.computed = true
	c.effect.scheduler = func() {
		if !c.dirty {
			c.dirty = true
			rt.triggerRef(c.dep, c, nil, nil)
		}
	}
	rt.recordEffectScope(c.effect, nil)
	return c
}

// Value returns the derived value, recomputing it first if an upstream
// dependency changed since the last read. It records a dependency on the
// computed.
func (c *Computed[T]) Value() T {
	c.rt.trackRef(c.dep, c)
	if c.dirty || !c.cacheable {
		if c.effect.run() {
			c.dirty = false
		}
	}
	return c.value
}

// Dirty reports whether the next read will run the getter.
func (c *Computed[T]) Dirty() bool {
	return c.dirty || !c.cacheable
}

// Set calls the setter of a writable computed. On a readonly computed it
// warns and does nothing.
func (c *Computed[T]) Set(v T) {
	if c.setter == nil {
		c.rt.warn(reactorerrors.CodeReadonlyComputed)
		return
	}
	c.setter(v)
}

// Effect returns the underlying effect.
func (c *Computed[T]) Effect() *Effect {
	return c.effect
}

// Stop detaches the computed from its dependencies. The cached value no
// longer follows upstream changes.
func (c *Computed[T]) Stop() {
	c.effect.Stop()
}

func (c *Computed[T]) refValue() any {
	return c.Value()
}

func (c *Computed[T]) setRefValue(v any) {
	t, ok := v.(T)
	if !ok && v != nil {
		c.rt.warn(reactorerrors.CodeRefTypeMismatch, "want", typeName(c.value), "got", typeName(v))
		return
	}
	c.Set(t)
}
