package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunExecutesPostedTasks(t *testing.T) {
	e := New(16)
	release := e.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	var ran atomic.Bool
	result := make(chan struct{})
	e.Post(func() {
		ran.Store(true)
		close(result)
	})

	select {
	case <-result:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error after Stop: %v", err)
	}
	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

func TestRunDrainsQueueOnStop(t *testing.T) {
	e := New(16)
	e.Start()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		e.Post(func() { count.Add(1) })
	}

	e.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run never returned after Stop")
	}

	if count.Load() != 5 {
		t.Fatalf("count = %d, want 5", count.Load())
	}
}

func TestRunPoolJoinsAllWorkers(t *testing.T) {
	e := New(16)
	e.Start()

	var processed atomic.Int32
	for i := 0; i < 20; i++ {
		e.Post(func() { processed.Add(1) })
	}

	done := make(chan error, 1)
	go func() { done <- e.RunPool(context.Background(), 4) }()

	time.Sleep(50 * time.Millisecond)
	e.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunPool returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunPool never returned after Stop")
	}

	if processed.Load() != 20 {
		t.Fatalf("processed = %d, want 20", processed.Load())
	}
}
