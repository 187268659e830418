package reactive

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrLoopClosed is returned when work is submitted to a stopped Loop.
var ErrLoopClosed = errors.New("reactive: loop closed")

// ErrLoopFull is returned when the dispatch queue is full.
var ErrLoopFull = errors.New("reactive: dispatch queue full")

// DefaultLoopQueueSize is the dispatch queue capacity used when NewLoop is
// given a non-positive size.
const DefaultLoopQueueSize = 256

// Loop owns a Runtime and drives it from a single goroutine. Other
// goroutines submit work with Dispatch or Do; after every task the loop
// pumps the runtime until it is idle, so one task is one reactive tick.
type Loop struct {
	rt       *Runtime
	dispatch chan func()
	wakeCh   chan struct{}
	done     chan struct{}
	running  atomic.Bool
	closed   atomic.Bool
}

// NewLoop creates a loop and its Runtime. opts configure the Runtime.
func NewLoop(queueSize int, opts ...Option) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultLoopQueueSize
	}
	l := &Loop{
		dispatch: make(chan func(), queueSize),
		wakeCh:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	opts = append(opts, WithWakeup(l.wake))
	l.rt = New(opts...)
	return l
}

// Runtime returns the loop's runtime. Use it only from tasks running on the
// loop, or before Run starts.
func (l *Loop) Runtime() *Runtime {
	return l.rt
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) wake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// Run processes tasks until ctx is cancelled. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("reactive: loop already running")
	}
	defer close(l.done)
	defer l.closed.Store(true)

	l.rt.Flush()
	for {
		select {
		case fn := <-l.dispatch:
			l.execute(fn)
		case <-l.wakeCh:
			l.rt.Flush()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// execute runs one task and pumps the runtime.
func (l *Loop) execute(fn func()) {
	l.rt.callWithErrorHandling(LabelDispatch, fn)
	l.rt.Flush()
}

// Dispatch queues fn to run on the loop. It never blocks.
//
// Example:
//
//	go func() {
//	    user, err := fetchUser(id)
//	    loop.Dispatch(func() {
//	        if err == nil {
//	            userRef.Set(user)
//	        }
//	    })
//	}()
func (l *Loop) Dispatch(fn func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	select {
	case l.dispatch <- fn:
		return nil
	default:
		l.rt.logger.Warn("dispatch queue full, discarding callback")
		return ErrLoopFull
	}
}

// Do runs fn on the loop and waits until it and every update it caused
// have been applied.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		l.rt.callWithErrorHandling(LabelDispatch, fn)
		l.rt.Flush()
	}
	select {
	case l.dispatch <- task:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextTick waits until every update pending on the loop has been applied.
func (l *Loop) NextTick(ctx context.Context) error {
	return l.Do(ctx, func() {})
}
