package reactive

import (
	"fmt"
	"reflect"
	"sort"
)

// Container is a keyed data holder. Raw holders (*Object, *Array, *Map)
// and their observable views (*Observable) all implement it.
type Container interface {
	// Get returns the value stored under key, or nil.
	Get(key any) any

	// Set stores value under key.
	Set(key, value any)

	// Delete removes key and reports whether it was present.
	Delete(key any) bool

	// Has reports whether key is present.
	Has(key any) bool

	// Keys returns the keys in iteration order.
	Keys() []any

	// Len returns the number of entries.
	Len() int
}

// List is a Container with array methods.
type List interface {
	Container
	Push(items ...any) int
	Pop() any
	Shift() any
	Unshift(items ...any) int
	Splice(start, deleteCount int, items ...any) []any
	IndexOf(v any) int
	LastIndexOf(v any) int
	Includes(v any) bool
}

// Target is a raw holder that can be made observable. Only the holders in
// this package implement it.
type Target interface {
	Container
	Clear()
	state() *targetState
	normalizeKey(key any) any
}

// MarkRaw flags t so that it is never wrapped. Wrapping functions return it
// unchanged.
func MarkRaw[T Target](t T) T {
	t.state().skip = true
	return t
}

// ============================================================================
// Object
// ============================================================================

// Object is a raw holder with string keys kept in insertion order.
// Non-string keys are converted with fmt.Sprint.
type Object struct {
	st     targetState
	values map[string]any
	order  []string
}

// NewObject creates an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// ObjectOf creates an Object holding the entries of m, inserted in sorted
// key order.
func ObjectOf(m map[string]any) *Object {
	o := NewObject()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.Set(k, m[k])
	}
	return o
}

func (o *Object) state() *targetState { return &o.st }

func (o *Object) normalizeKey(key any) any {
	if s, ok := key.(string); ok {
		return s
	}
	return fmt.Sprint(key)
}

func (o *Object) Get(key any) any {
	return o.values[o.normalizeKey(key).(string)]
}

func (o *Object) Set(key, value any) {
	k := o.normalizeKey(key).(string)
	if _, ok := o.values[k]; !ok {
		o.order = append(o.order, k)
	}
	o.values[k] = value
}

func (o *Object) Delete(key any) bool {
	k := o.normalizeKey(key).(string)
	if _, ok := o.values[k]; !ok {
		return false
	}
	delete(o.values, k)
	for i, existing := range o.order {
		if existing == k {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return true
}

func (o *Object) Has(key any) bool {
	_, ok := o.values[o.normalizeKey(key).(string)]
	return ok
}

func (o *Object) Keys() []any {
	keys := make([]any, len(o.order))
	for i, k := range o.order {
		keys[i] = k
	}
	return keys
}

func (o *Object) Len() int {
	return len(o.order)
}

// Clear removes every entry.
func (o *Object) Clear() {
	o.values = make(map[string]any)
	o.order = nil
}

// ============================================================================
// Array
// ============================================================================

// Array is a raw holder indexed by int. LengthKey reads and writes the
// length. Deleting an index leaves a nil hole and keeps the length.
type Array struct {
	st    targetState
	items []any
}

// NewArray creates an Array holding items.
func NewArray(items ...any) *Array {
	a := &Array{items: make([]any, len(items))}
	copy(a.items, items)
	return a
}

func (a *Array) state() *targetState { return &a.st }

// normalizeKey maps integer kinds to int. Other keys pass through.
func (a *Array) normalizeKey(key any) any {
	switch k := key.(type) {
	case int:
		return k
	case int8:
		return int(k)
	case int16:
		return int(k)
	case int32:
		return int(k)
	case int64:
		return int(k)
	case uint:
		return int(k)
	case uint8:
		return int(k)
	case uint16:
		return int(k)
	case uint32:
		return int(k)
	case uint64:
		return int(k)
	}
	return key
}

func (a *Array) Get(key any) any {
	switch k := a.normalizeKey(key).(type) {
	case int:
		if k >= 0 && k < len(a.items) {
			return a.items[k]
		}
	case PseudoKey:
		if k == LengthKey {
			return len(a.items)
		}
	}
	return nil
}

// Set stores value at an index, growing the array with nils if needed.
// Setting LengthKey to an int truncates or grows the array.
func (a *Array) Set(key, value any) {
	switch k := a.normalizeKey(key).(type) {
	case int:
		if k < 0 {
			return
		}
		if k >= len(a.items) {
			a.setLength(k + 1)
		}
		a.items[k] = value
	case PseudoKey:
		if n, ok := a.normalizeKey(value).(int); ok && k == LengthKey {
			a.setLength(n)
		}
	}
}

func (a *Array) setLength(n int) {
	if n < 0 {
		n = 0
	}
	if n <= len(a.items) {
		clear(a.items[n:])
		a.items = a.items[:n]
		return
	}
	a.items = append(a.items, make([]any, n-len(a.items))...)
}

func (a *Array) Delete(key any) bool {
	k, ok := a.normalizeKey(key).(int)
	if !ok || k < 0 || k >= len(a.items) {
		return false
	}
	a.items[k] = nil
	return true
}

func (a *Array) Has(key any) bool {
	switch k := a.normalizeKey(key).(type) {
	case int:
		return k >= 0 && k < len(a.items)
	case PseudoKey:
		return k == LengthKey
	}
	return false
}

func (a *Array) Keys() []any {
	keys := make([]any, len(a.items))
	for i := range a.items {
		keys[i] = i
	}
	return keys
}

func (a *Array) Len() int {
	return len(a.items)
}

// Clear truncates the array to length zero.
func (a *Array) Clear() {
	a.setLength(0)
}

// Items returns a copy of the elements.
func (a *Array) Items() []any {
	out := make([]any, len(a.items))
	copy(out, a.items)
	return out
}

// Push appends items and returns the new length.
func (a *Array) Push(items ...any) int {
	a.items = append(a.items, items...)
	return len(a.items)
}

// Pop removes and returns the last element.
func (a *Array) Pop() any {
	n := len(a.items)
	if n == 0 {
		return nil
	}
	v := a.items[n-1]
	a.setLength(n - 1)
	return v
}

// Shift removes and returns the first element.
func (a *Array) Shift() any {
	if len(a.items) == 0 {
		return nil
	}
	v := a.items[0]
	copy(a.items, a.items[1:])
	a.setLength(len(a.items) - 1)
	return v
}

// Unshift prepends items and returns the new length.
func (a *Array) Unshift(items ...any) int {
	next := make([]any, 0, len(items)+len(a.items))
	next = append(next, items...)
	a.items = append(next, a.items...)
	return len(a.items)
}

// Splice removes deleteCount elements at start, inserts items in their
// place and returns the removed elements. A negative start counts from the
// end.
func (a *Array) Splice(start, deleteCount int, items ...any) []any {
	next, removed := spliceItems(a.items, start, deleteCount, items)
	a.items = next
	return removed
}

// IndexOf returns the first index holding v, or -1. NaN is never found.
func (a *Array) IndexOf(v any) int {
	for i, item := range a.items {
		if strictEqual(item, v) {
			return i
		}
	}
	return -1
}

// LastIndexOf returns the last index holding v, or -1.
func (a *Array) LastIndexOf(v any) int {
	for i := len(a.items) - 1; i >= 0; i-- {
		if strictEqual(a.items[i], v) {
			return i
		}
	}
	return -1
}

// Includes reports whether v is an element. NaN is found.
func (a *Array) Includes(v any) bool {
	for _, item := range a.items {
		if sameValueZero(item, v) {
			return true
		}
	}
	return false
}

// spliceItems returns the spliced copy of items and the removed elements.
func spliceItems(items []any, start, deleteCount int, insert []any) ([]any, []any) {
	n := len(items)
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)
	deleteCount = min(max(deleteCount, 0), n-start)

	removed := make([]any, deleteCount)
	copy(removed, items[start:start+deleteCount])

	next := make([]any, 0, n-deleteCount+len(insert))
	next = append(next, items[:start]...)
	next = append(next, insert...)
	next = append(next, items[start+deleteCount:]...)
	return next, removed
}

// ============================================================================
// Map
// ============================================================================

// Map is a raw holder with comparable keys kept in insertion order.
type Map struct {
	st     targetState
	values map[any]any
	order  []any
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[any]any)}
}

func (m *Map) state() *targetState { return &m.st }

func (m *Map) normalizeKey(key any) any { return key }

// comparableKey reports whether key can index a Go map.
func comparableKey(key any) bool {
	return key == nil || reflect.TypeOf(key).Comparable()
}

// Get returns the value for key. Keys that are not comparable read as nil;
// Set, Delete and Has ignore them the same way.
func (m *Map) Get(key any) any {
	if !comparableKey(key) {
		return nil
	}
	return m.values[key]
}

func (m *Map) Set(key, value any) {
	if !comparableKey(key) {
		return
	}
	if _, ok := m.values[key]; !ok {
		m.order = append(m.order, key)
	}
	m.values[key] = value
}

func (m *Map) Delete(key any) bool {
	if !comparableKey(key) {
		return false
	}
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	for i, existing := range m.order {
		if existing == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

func (m *Map) Has(key any) bool {
	if !comparableKey(key) {
		return false
	}
	_, ok := m.values[key]
	return ok
}

func (m *Map) Keys() []any {
	keys := make([]any, len(m.order))
	copy(keys, m.order)
	return keys
}

func (m *Map) Len() int {
	return len(m.order)
}

// Clear removes every entry.
func (m *Map) Clear() {
	m.values = make(map[any]any)
	m.order = nil
}
