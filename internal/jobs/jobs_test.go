package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func sleepy(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil
	}
}

func TestParallelJobs(t *testing.T) {
	jobs := New()
	for i := 0; i < 3; i++ {
		jobs.Add(sleepy)
	}
	if got := jobs.Size(); got != 3 {
		t.Errorf("Size() = %d, want 3", got)
	}
	if err := jobs.JoinAll(); err != nil {
		t.Fatalf("JoinAll: %v", err)
	}
	if got := jobs.Size(); got != 0 {
		t.Errorf("Size() after JoinAll = %d, want 0", got)
	}
}

func TestSequentialJobs(t *testing.T) {
	jobs := New(WithSequential())
	var order []int
	for i := 0; i < 3; i++ {
		jobs.Add(func(ctx context.Context) error {
			order = append(order, i)
			return sleepy(ctx)
		})
	}
	if got := jobs.Size(); got != 3 {
		t.Errorf("Size() = %d, want 3", got)
	}
	if len(order) != 3 || order[0] != 0 || order[2] != 2 {
		t.Errorf("tasks ran as %v, want in order during Add", order)
	}
	if err := jobs.JoinAll(); err != nil {
		t.Fatalf("JoinAll: %v", err)
	}
	if got := jobs.Size(); got != 0 {
		t.Errorf("Size() after JoinAll = %d, want 0", got)
	}
}

func TestCancelJobs(t *testing.T) {
	jobs := New()
	var cancelled atomic.Int32
	var started sync.WaitGroup
	for i := 0; i < 3; i++ {
		started.Add(1)
		jobs.Add(func(ctx context.Context) error {
			started.Done()
			<-ctx.Done()
			cancelled.Add(1)
			return ctx.Err()
		})
	}
	if got := jobs.Size(); got != 3 {
		t.Errorf("Size() = %d, want 3", got)
	}
	started.Wait()

	jobs.CancelAll()
	if got := jobs.Size(); got != 0 {
		t.Errorf("Size() after CancelAll = %d, want 0", got)
	}

	deadline := time.Now().Add(time.Second)
	for cancelled.Load() != 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := cancelled.Load(); got != 3 {
		t.Errorf("%d tasks saw cancellation, want 3", got)
	}
}

func TestSequentialCancel(t *testing.T) {
	jobs := New(WithSequential())
	for i := 0; i < 3; i++ {
		jobs.Add(sleepy)
	}
	jobs.CancelAll()
	if got := jobs.Size(); got != 0 {
		t.Errorf("Size() after CancelAll = %d, want 0", got)
	}
}

func TestJoinAllCollectsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	jobs := New()
	jobs.Add(func(context.Context) error { return errA })
	jobs.Add(func(context.Context) error { return nil })
	jobs.Add(func(context.Context) error { return errB })

	err := jobs.JoinAll()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("JoinAll() = %v, want both failures", err)
	}
	if err := jobs.JoinAll(); err != nil {
		t.Errorf("second JoinAll() = %v, want nil", err)
	}
}

func TestPanicsBecomeErrors(t *testing.T) {
	jobs := New()
	jobs.Add(func(context.Context) error { panic("boom") })
	if err := jobs.JoinAll(); err == nil {
		t.Error("expected the panic to surface as an error")
	}
}

func TestLimit(t *testing.T) {
	const limit = 2
	jobs := New(WithLimit(limit))

	var running, peak atomic.Int32
	for i := 0; i < 8; i++ {
		jobs.Add(func(ctx context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}
	if err := jobs.JoinAll(); err != nil {
		t.Fatalf("JoinAll: %v", err)
	}
	if got := peak.Load(); got > limit {
		t.Errorf("peak concurrency = %d, want <= %d", got, limit)
	}
}

func TestAddAfterCancel(t *testing.T) {
	jobs := New()
	jobs.Add(sleepy)
	jobs.CancelAll()

	var ran atomic.Bool
	jobs.Add(func(context.Context) error {
		ran.Store(true)
		return nil
	})
	if err := jobs.JoinAll(); err != nil {
		t.Fatalf("JoinAll: %v", err)
	}
	if !ran.Load() {
		t.Error("task added after CancelAll did not run")
	}
}

func TestParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	jobs := New(WithContext(ctx))
	cancel()

	jobs.Add(func(context.Context) error { return nil })
	if err := jobs.JoinAll(); !errors.Is(err, context.Canceled) {
		t.Errorf("JoinAll() = %v, want context.Canceled", err)
	}
}
