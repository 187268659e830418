// Package reactive provides a fine-grained reactive runtime.
//
// Dependencies are tracked automatically: every observable read made while
// an effect runs is recorded, and a later write to that state re-runs
// exactly the effects that read it. Re-runs scheduled through watchers are
// batched, deduplicated and ordered by the scheduler.
//
// # Runtime
//
// All state lives in a *Runtime: the running effect, the tracking switch,
// the ambient scope and the job queues. There are no package globals.
//
//	rt := reactive.New(reactive.WithLogger(logger))
//
// # Core Types
//
// Ref[T] is a boxed value:
//
//	count := reactive.NewRef(rt, 0)
//	value := count.Value() // Read (records a dependency)
//	count.Set(5)           // Write (notifies dependents on change)
//
// Computed[T] is a lazily cached derived value:
//
//	doubled := reactive.NewComputed(rt, func() int { return count.Value() * 2 })
//
// Observable wraps a raw holder (*Object, *Array, *Map) so that key reads
// and writes are tracked:
//
//	state := rt.Reactive(reactive.ObjectOf(map[string]any{"a": 1}))
//	rt.Effect(func() { fmt.Println(state.Get("a")) })
//	state.Set("a", 2)
//
// Watch and WatchEffect observe sources and run callbacks through the
// scheduler:
//
//	rt.Watch(count, func(v, old any, _ reactive.OnCleanup) {
//	    fmt.Println(old, "->", v)
//	})
//	count.Set(6)
//	rt.Flush() // prints 5 -> 6
//
// # Scheduling
//
// Watcher jobs are queued and run on the next Flush, which is the explicit
// "pump pending work" operation. A Loop drives a runtime from its own
// goroutine and pumps after every task.
//
// # Scopes
//
// A Scope collects the effects created while it runs so they can be
// stopped together:
//
//	scope := rt.NewScope(false)
//	scope.Run(func() { rt.Effect(render) })
//	scope.Stop()
//
// # Errors
//
// Panics in user callbacks are recovered at the call boundary and reported
// to the runtime's ErrorHandler with an ErrorLabel. Misuse, such as writing
// to a readonly view, is reported as a coded warning and otherwise ignored.
//
// # Thread Safety
//
// A Runtime is single-threaded. Use Loop.Dispatch or Runtime.Await to hand
// results from other goroutines back to it.
package reactive
