package reactive

import (
	"math"
	"reflect"
)

// SameValue reports whether a and b are the same value.
//
// Floats follow the identity rule rather than IEEE equality: NaN is the same
// as NaN, and +0 is not the same as -0. Slices, maps, funcs, channels and
// pointers compare by identity, never by contents. Other comparable values
// use ==.
func SameValue(a, b any) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && sameFloat(x, y)
	case float32:
		y, ok := b.(float32)
		return ok && sameFloat(float64(x), float64(y))
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil {
		return true
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Slice:
		return va.Len() == vb.Len() && va.Pointer() == vb.Pointer()
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if !ta.Comparable() {
		return false
	}
	return safeEqual(a, b)
}

// hasChanged is the change test used before notifying dependents.
func hasChanged(value, oldValue any) bool {
	return !SameValue(value, oldValue)
}

// sameValueZero is SameValue except that +0 and -0 are the same.
func sameValueZero(a, b any) bool {
	if x, ok := a.(float64); ok {
		if y, ok := b.(float64); ok && x == 0 && y == 0 {
			return true
		}
	}
	return SameValue(a, b)
}

// strictEqual is == with NaN never equal to itself.
func strictEqual(a, b any) bool {
	if x, ok := a.(float64); ok {
		y, ok := b.(float64)
		return ok && x == y
	}
	return sameValueZero(a, b)
}

func sameFloat(x, y float64) bool {
	if math.IsNaN(x) && math.IsNaN(y) {
		return true
	}
	return x == y && math.Signbit(x) == math.Signbit(y)
}

// safeEqual compares with == and treats a runtime panic (an interface field
// holding an incomparable value) as "not equal".
func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
