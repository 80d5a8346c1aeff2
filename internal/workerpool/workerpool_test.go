package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTaskAndResolvesFuture(t *testing.T) {
	p := New(4, 16)
	defer p.Shutdown()

	future, err := Submit(p, context.Background(), func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	val, err := future.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != 42 {
		t.Fatalf("val = %d, want 42", val)
	}
}

func TestSubmitPropagatesTaskError(t *testing.T) {
	p := New(2, 8)
	defer p.Shutdown()

	wantErr := errors.New("boom")
	future, err := Submit(p, context.Background(), func() (int, error) {
		return 0, wantErr
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = future.Get(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Get err = %v, want %v", err, wantErr)
	}
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	p := New(2, 8)
	p.Shutdown()

	_, err := Submit(p, context.Background(), func() (int, error) { return 0, nil })
	if !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("err = %v, want ErrPoolStopped", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	p := New(2, 8)
	p.Shutdown()
	p.Shutdown() // must not panic or block
}

func TestWorkerCount(t *testing.T) {
	p := New(5, 20)
	defer p.Shutdown()
	if p.WorkerCount() != 5 {
		t.Fatalf("WorkerCount() = %d, want 5", p.WorkerCount())
	}
}

func TestConcurrentBatchOfIdenticalTasks(t *testing.T) {
	p := New(8, 200)
	defer p.Shutdown()

	const n = 100
	var completed int64
	futures := make([]*Future[int], n)

	for i := 0; i < n; i++ {
		f, err := Submit(p, context.Background(), func() (int, error) {
			atomic.AddInt64(&completed, 1)
			return 1, nil
		})
		if err != nil {
			t.Fatalf("Submit[%d]: %v", i, err)
		}
		futures[i] = f
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, f := range futures {
		val, err := f.Get(ctx)
		if err != nil {
			t.Fatalf("Get[%d]: %v", i, err)
		}
		if val != 1 {
			t.Fatalf("Get[%d] = %d, want 1", i, val)
		}
	}

	if atomic.LoadInt64(&completed) != n {
		t.Fatalf("completed = %d, want %d", completed, n)
	}
}

func TestQueueDepthDrainsToZero(t *testing.T) {
	p := New(1, 20)
	defer p.Shutdown()

	release := make(chan struct{})
	f, err := Submit(p, context.Background(), func() (int, error) {
		<-release
		return 0, nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if depth := p.QueueDepth(); depth == 0 {
		t.Fatal("expected non-zero queue depth while task blocks")
	}

	close(release)
	if _, err := f.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}

	deadline := time.After(time.Second)
	for p.QueueDepth() != 0 {
		select {
		case <-deadline:
			t.Fatal("queue depth never reached 0")
		default:
		}
	}
}
