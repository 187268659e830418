package reactive

import reactorerrors "github.com/vango-dev/reactor/internal/errors"

// Array methods on Observable. Search methods read every index so the
// caller depends on the whole array, then search the raw elements. Mutating
// methods run with tracking paused and notify through Set, so a caller of
// Push inside an effect does not come to depend on the length it changed.

// array returns the raw array, or warns and reports false for other holders.
func (o *Observable) array(method string) (*Array, bool) {
	a, ok := o.raw.(*Array)
	if !ok {
		o.rt.warn(reactorerrors.CodeNotList, "method", method, "type", typeName(o.raw))
	}
	return a, ok
}

// trackAll records a dependency on every index and on the length.
func (o *Observable) trackAll(a *Array) {
	if o.readonly && !o.IsReactive() {
		return
	}
	o.rt.Track(a, TrackGet, LengthKey)
	for i := range a.items {
		o.rt.Track(a, TrackGet, i)
	}
}

// search runs find against raw a, retrying with the raw form of v when v is
// a view.
func (o *Observable) search(a *Array, v any, find func(any) int) int {
	o.trackAll(a)
	if i := find(v); i >= 0 {
		return i
	}
	if raw := ToRaw(v); raw != v {
		return find(raw)
	}
	return -1
}

// IndexOf returns the first index holding v, or -1.
func (o *Observable) IndexOf(v any) int {
	a, ok := o.array("IndexOf")
	if !ok {
		return -1
	}
	return o.search(a, v, a.IndexOf)
}

// LastIndexOf returns the last index holding v, or -1.
func (o *Observable) LastIndexOf(v any) int {
	a, ok := o.array("LastIndexOf")
	if !ok {
		return -1
	}
	return o.search(a, v, a.LastIndexOf)
}

// Includes reports whether v is an element.
func (o *Observable) Includes(v any) bool {
	a, ok := o.array("Includes")
	if !ok {
		return false
	}
	return o.search(a, v, func(x any) int {
		if a.Includes(x) {
			return 0
		}
		return -1
	}) >= 0
}

// mutate runs fn against the raw array with tracking paused. Readonly views
// warn and skip fn.
func (o *Observable) mutate(method string, fn func(a *Array)) bool {
	a, ok := o.array(method)
	if !ok {
		return false
	}
	if o.readonly {
		o.rt.warn(reactorerrors.CodeReadonlySet, "method", method)
		return false
	}
	o.rt.PauseTracking()
	defer o.rt.ResetTracking()
	fn(a)
	return true
}

// readonlyLen is the length reported by rejected Push and Unshift calls:
// the unchanged length for arrays, -1 for other targets.
func (o *Observable) readonlyLen() int {
	if a, ok := o.raw.(*Array); ok {
		return a.Len()
	}
	return -1
}

// rewrite stores next into the array element by element through Set,
// then shrinks the length if next is shorter.
func (o *Observable) rewrite(a *Array, from int, next []any) {
	for i := from; i < len(next); i++ {
		o.Set(i, next[i])
	}
	if len(next) < a.Len() {
		o.Set(LengthKey, len(next))
	}
}

// Push appends items and returns the new length.
func (o *Observable) Push(items ...any) int {
	n := -1
	ok := o.mutate("Push", func(a *Array) {
		start := a.Len()
		for i, item := range items {
			o.Set(start+i, item)
		}
		n = a.Len()
	})
	if !ok {
		n = o.readonlyLen()
	}
	return n
}

// Pop removes and returns the last element.
func (o *Observable) Pop() any {
	var v any
	o.mutate("Pop", func(a *Array) {
		n := a.Len()
		if n == 0 {
			return
		}
		v = o.wrapElement(a.items[n-1])
		o.Set(LengthKey, n-1)
	})
	return v
}

// Shift removes and returns the first element.
func (o *Observable) Shift() any {
	var v any
	o.mutate("Shift", func(a *Array) {
		if a.Len() == 0 {
			return
		}
		v = o.wrapElement(a.items[0])
		o.rewrite(a, 0, a.Items()[1:])
	})
	return v
}

// Unshift prepends items and returns the new length.
func (o *Observable) Unshift(items ...any) int {
	n := -1
	ok := o.mutate("Unshift", func(a *Array) {
		next := make([]any, 0, len(items)+a.Len())
		for _, item := range items {
			next = append(next, o.storable(item))
		}
		next = append(next, a.items...)
		o.rewrite(a, 0, next)
		n = a.Len()
	})
	if !ok {
		n = o.readonlyLen()
	}
	return n
}

// Splice removes deleteCount elements at start, inserts items in their
// place and returns the removed elements.
func (o *Observable) Splice(start, deleteCount int, items ...any) []any {
	var removed []any
	o.mutate("Splice", func(a *Array) {
		insert := make([]any, len(items))
		for i, item := range items {
			insert[i] = o.storable(item)
		}
		next, out := spliceItems(a.items, start, deleteCount, insert)
		from := min(max(start, 0), a.Len())
		if start < 0 {
			from = max(a.Len()+start, 0)
		}
		o.rewrite(a, from, next)
		removed = make([]any, len(out))
		for i, v := range out {
			removed[i] = o.wrapElement(v)
		}
	})
	return removed
}

// storable returns v in the form Set would store it.
func (o *Observable) storable(v any) any {
	if o.shallow {
		return v
	}
	return ToRaw(v)
}

// wrapElement returns an element as Get would, without tracking.
func (o *Observable) wrapElement(v any) any {
	if o.shallow {
		return v
	}
	return o.wrap(v)
}
