package reactive

import (
	"math"
	"testing"

	reactorerrors "github.com/vango-dev/reactor/internal/errors"
)

func newList(rt *Runtime, items ...any) (*Observable, *Array) {
	raw := NewArray(items...)
	return rt.Reactive(raw).(*Observable), raw
}

func sameItems(t *testing.T, got []any, want ...any) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestArrayPushTriggersLength(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, raw := newList(rt, 1, 2)

	runs := 0
	var size int
	rt.Effect(func() {
		runs++
		size = arr.Len()
	})

	if n := arr.Push(3); n != 3 {
		t.Errorf("expected new length 3, got %d", n)
	}
	if runs != 2 || size != 3 {
		t.Errorf("expected rerun with length 3, got %d runs and length %d", runs, size)
	}
	sameItems(t, raw.Items(), 1, 2, 3)
}

func TestArrayPushInsideEffectsDoesNotLoop(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, raw := newList(rt)

	runs1, runs2 := 0, 0
	e1 := rt.Effect(func() {
		runs1++
		arr.Push(1)
	})
	e2 := rt.Effect(func() {
		runs2++
		arr.Push(2)
	})

	if runs1 != 1 || runs2 != 1 {
		t.Errorf("expected each effect to run once, got %d and %d", runs1, runs2)
	}
	if e1.Deps() != 0 || e2.Deps() != 0 {
		t.Errorf("expected push not to record dependencies, got %d and %d", e1.Deps(), e2.Deps())
	}
	sameItems(t, raw.Items(), 1, 2)
}

func TestArrayPop(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, raw := newList(rt, 1, 2, 3)

	runs := 0
	var last any
	rt.Effect(func() {
		runs++
		last = arr.Get(2)
	})

	if v := arr.Pop(); v != 3 {
		t.Errorf("expected 3, got %v", v)
	}
	if runs != 2 || last != nil {
		t.Errorf("expected rerun reading a removed index, got %d runs and %v", runs, last)
	}
	if raw.Len() != 2 {
		t.Errorf("expected length 2, got %d", raw.Len())
	}

	empty, _ := newList(rt)
	if v := empty.Pop(); v != nil {
		t.Errorf("expected nil from empty pop, got %v", v)
	}
}

func TestArrayShiftAndUnshift(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, raw := newList(rt, 1, 2, 3)

	if v := arr.Shift(); v != 1 {
		t.Errorf("expected 1, got %v", v)
	}
	sameItems(t, raw.Items(), 2, 3)

	if n := arr.Unshift(0, 1); n != 4 {
		t.Errorf("expected new length 4, got %d", n)
	}
	sameItems(t, raw.Items(), 0, 1, 2, 3)
}

func TestArraySplice(t *testing.T) {
	tests := []struct {
		name        string
		items       []any
		start       int
		deleteCount int
		insert      []any
		wantItems   []any
		wantRemoved []any
	}{
		{"replace middle", []any{1, 2, 3, 4, 5}, 1, 2, []any{"a"}, []any{1, "a", 4, 5}, []any{2, 3}},
		{"negative start", []any{1, 2, 3}, -1, 1, nil, []any{1, 2}, []any{3}},
		{"insert only", []any{1, 2, 3}, -1, 0, []any{"x"}, []any{1, 2, "x", 3}, []any{}},
		{"start past end", []any{1}, 5, 1, []any{2}, []any{1, 2}, []any{}},
		{"delete count clamped", []any{1, 2, 3}, 1, 10, nil, []any{1}, []any{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, _ := newTestRuntime(t)
			arr, raw := newList(rt, tt.items...)

			removed := arr.Splice(tt.start, tt.deleteCount, tt.insert...)
			sameItems(t, removed, tt.wantRemoved...)
			sameItems(t, raw.Items(), tt.wantItems...)
		})
	}
}

func TestArraySpliceTriggersShiftedIndexes(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, _ := newList(rt, 1, 2, 3)

	var seen any
	runs := 0
	rt.Effect(func() {
		runs++
		seen = arr.Get(1)
	})

	arr.Splice(0, 1)
	if runs != 2 || seen != 3 {
		t.Errorf("expected rerun seeing 3, got %d runs and %v", runs, seen)
	}
}

func TestArraySearchTracksEveryIndex(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, _ := newList(rt, 1, 2, 3)

	var found bool
	runs := 0
	rt.Effect(func() {
		runs++
		found = arr.Includes(9)
	})
	if found {
		t.Fatal("expected 9 to be absent")
	}

	arr.Set(2, 9)
	if runs != 2 || !found {
		t.Errorf("expected rerun finding 9, got %d runs and %v", runs, found)
	}
}

func TestArraySearchRetriesWithRaw(t *testing.T) {
	rt, _ := newTestRuntime(t)
	inner := NewObject()
	arr, _ := newList(rt, inner)

	view := arr.Get(0)
	if view == any(inner) {
		t.Fatal("expected element to be wrapped")
	}
	if !arr.Includes(view) {
		t.Error("expected Includes to find the view")
	}
	if i := arr.IndexOf(view); i != 0 {
		t.Errorf("expected IndexOf 0, got %d", i)
	}
	if i := arr.LastIndexOf(inner); i != 0 {
		t.Errorf("expected LastIndexOf 0, got %d", i)
	}
}

func TestArrayNaNSearch(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, _ := newList(rt, 1, math.NaN())

	if !arr.Includes(math.NaN()) {
		t.Error("expected Includes to find NaN")
	}
	if i := arr.IndexOf(math.NaN()); i != -1 {
		t.Errorf("expected IndexOf never to find NaN, got %d", i)
	}
}

func TestArrayLengthWrite(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, raw := newList(rt, 1, 2, 3)

	firstRuns, lastRuns := 0, 0
	rt.Effect(func() {
		firstRuns++
		_ = arr.Get(0)
	})
	rt.Effect(func() {
		lastRuns++
		_ = arr.Get(2)
	})

	arr.Set(LengthKey, 1)
	if lastRuns != 2 {
		t.Errorf("expected truncation to rerun a reader of a removed index, got %d", lastRuns)
	}
	if firstRuns != 1 {
		t.Errorf("expected truncation not to rerun a reader of a kept index, got %d", firstRuns)
	}
	if raw.Len() != 1 {
		t.Errorf("expected length 1, got %d", raw.Len())
	}
	if arr.Get(LengthKey) != 1 {
		t.Errorf("expected length key to read 1, got %v", arr.Get(LengthKey))
	}
}

func TestArrayIgnoredWritesDoNotNotify(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, raw := newList(rt, 1, 2)

	runs := 0
	rt.Effect(func() {
		runs++
		_ = arr.Len()
	})

	arr.Set(-1, 9)
	arr.Set("foo", 9)
	arr.Set(LengthKey, "three")
	if runs != 1 {
		t.Errorf("expected writes the array ignores not to rerun, got %d runs", runs)
	}
	if raw.Len() != 2 {
		t.Errorf("expected length 2, got %d", raw.Len())
	}
}

func TestArrayLengthWriteNormalizesValue(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, raw := newList(rt, 1, 2, 3)

	firstRuns, lastRuns := 0, 0
	rt.Effect(func() {
		firstRuns++
		_ = arr.Get(0)
	})
	rt.Effect(func() {
		lastRuns++
		_ = arr.Get(2)
	})

	arr.Set(LengthKey, int64(3))
	if firstRuns != 1 || lastRuns != 1 {
		t.Errorf("expected writing the current length not to rerun, got %d and %d", firstRuns, lastRuns)
	}

	arr.Set(LengthKey, uint8(2))
	if lastRuns != 2 {
		t.Errorf("expected truncation to rerun a reader of a removed index, got %d", lastRuns)
	}
	if firstRuns != 1 {
		t.Errorf("expected truncation not to rerun a reader of a kept index, got %d", firstRuns)
	}
	if raw.Len() != 2 {
		t.Errorf("expected length 2, got %d", raw.Len())
	}
}

func TestArrayKeyNormalization(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, _ := newList(rt, "a", "b")

	if arr.Get(int64(1)) != "b" {
		t.Errorf("expected int64 key to read index 1, got %v", arr.Get(int64(1)))
	}
	if !arr.Has(uint8(0)) {
		t.Error("expected uint8 key to find index 0")
	}
}

func TestArrayDeleteLeavesHole(t *testing.T) {
	rt, _ := newTestRuntime(t)
	arr, raw := newList(rt, 1, 2)

	if !arr.Delete(0) {
		t.Error("expected delete to succeed")
	}
	if raw.Len() != 2 || raw.Get(0) != nil {
		t.Errorf("expected nil hole at 0, got %v", raw.Items())
	}
}

func TestReadonlyArrayRejectsMutation(t *testing.T) {
	rt, rec := newTestRuntime(t)
	raw := NewArray(1)
	ro := rt.Readonly(raw).(*Observable)

	if n := ro.Push(2); n != 1 {
		t.Errorf("expected rejected push to report length 1, got %d", n)
	}
	if n := ro.Unshift(0); n != 1 {
		t.Errorf("expected rejected unshift to report length 1, got %d", n)
	}
	if v := ro.Pop(); v != nil {
		t.Errorf("expected nil from rejected pop, got %v", v)
	}
	if raw.Len() != 1 {
		t.Errorf("expected raw array untouched, got %v", raw.Items())
	}
	if rec.warned(reactorerrors.CodeReadonlySet) != 3 {
		t.Errorf("expected 3 readonly warnings, got %v", rec.warnings)
	}
}

func TestListMethodOnObjectWarns(t *testing.T) {
	rt, rec := newTestRuntime(t)
	state := newState(rt, nil)

	if i := state.IndexOf(1); i != -1 {
		t.Errorf("expected -1, got %d", i)
	}
	if n := state.Push(1); n != -1 {
		t.Errorf("expected -1, got %d", n)
	}
	if rec.warned(reactorerrors.CodeNotList) != 2 {
		t.Errorf("expected 2 not-list warnings, got %v", rec.warnings)
	}
}

func TestShallowArrayStoresViews(t *testing.T) {
	rt, _ := newTestRuntime(t)
	raw := NewArray()
	arr := rt.ShallowReactive(raw).(*Observable)
	view := rt.Reactive(NewObject())

	arr.Push(view)
	if raw.Get(0) != view {
		t.Errorf("expected shallow push to store the value as given, got %T", raw.Get(0))
	}
}
