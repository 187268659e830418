package reactive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func startLoop(t *testing.T, queueSize int, opts ...Option) (*Loop, context.CancelFunc) {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	loop := NewLoop(queueSize, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	return loop, cancel
}

func TestLoopDoAppliesUpdates(t *testing.T) {
	loop := NewLoop(0)
	rt := loop.Runtime()
	count := NewRef(rt, 0)

	var seen []any
	rt.Watch(count, func(v, _ any, _ OnCleanup) {
		seen = append(seen, v)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	if err := loop.Do(ctx, func() { count.Set(1) }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(seen) != 1 || seen[0] != 1 {
		t.Errorf("expected watcher to have run before Do returned, got %v", seen)
	}
}

func TestLoopDispatchRunsInOrder(t *testing.T) {
	loop, _ := startLoop(t, 8)
	ctx := context.Background()

	var order []int
	for i := range 3 {
		if err := loop.Dispatch(func() { order = append(order, i) }); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if err := loop.NextTick(ctx); err != nil {
		t.Fatalf("NextTick: %v", err)
	}

	if len(order) != 3 || order[0] != 0 || order[2] != 2 {
		t.Errorf("expected dispatch order [0 1 2], got %v", order)
	}
}

func TestLoopDispatchFull(t *testing.T) {
	loop := NewLoop(1, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	if err := loop.Dispatch(func() {}); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if err := loop.Dispatch(func() {}); !errors.Is(err, ErrLoopFull) {
		t.Errorf("expected ErrLoopFull, got %v", err)
	}
}

func TestLoopClosed(t *testing.T) {
	loop := NewLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	cancel()
	<-loop.Done()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled from Run, got %v", err)
	}

	if err := loop.Dispatch(func() {}); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("expected ErrLoopClosed from Dispatch, got %v", err)
	}
	if err := loop.Do(context.Background(), func() {}); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("expected ErrLoopClosed from Do, got %v", err)
	}
	if err := loop.Run(context.Background()); err == nil {
		t.Error("expected a second Run to fail")
	}
}

func TestLoopDoRespectsContext(t *testing.T) {
	loop := NewLoop(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nothing drains the queue, so Do can only return through ctx.
	_ = loop.Dispatch(func() {})
	if err := loop.Do(ctx, func() {}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLoopReportsDispatchPanic(t *testing.T) {
	labels := make(chan ErrorLabel, 1)
	loop, _ := startLoop(t, 0, WithErrorHandler(func(_ error, label ErrorLabel) {
		labels <- label
	}))

	if err := loop.Dispatch(func() { panic("task failed") }); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	select {
	case label := <-labels:
		if label != LabelDispatch {
			t.Errorf("expected label %q, got %q", LabelDispatch, label)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the panic to be reported")
	}
}

func TestLoopAwaitWakesLoop(t *testing.T) {
	reported := make(chan error, 1)
	loop, _ := startLoop(t, 0, WithErrorHandler(func(err error, label ErrorLabel) {
		if label == LabelAsync {
			reported <- err
		}
	}))

	result := make(chan error, 1)
	if err := loop.Do(context.Background(), func() {
		loop.Runtime().Await(LabelAsync, result)
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}

	want := errors.New("fetch failed")
	result <- want
	select {
	case err := <-reported:
		if !errors.Is(err, want) {
			t.Errorf("expected %v, got %v", want, err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the async failure")
	}
}
