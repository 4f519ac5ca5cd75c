// Package executor provides the event-loop abstraction the channel
// router runs all completion handlers and scheduled tasks on: either a
// single cooperative loop, or a pool of worker goroutines draining a
// shared task queue. Every Connection completion the channel delivers
// deferred (its default notification policy) flows through here.
package executor

import (
	"context"

	"github.com/jbenet/goprocess"
	"golang.org/x/sync/errgroup"
)

// Task is a unit of work posted to the executor. Tasks must not block on
// I/O; blocking operations belong behind an Async* call on a Connection.
type Task func()

// Executor runs posted Tasks until Stop is called and an active sentinel
// (see Start) is released.
type Executor struct {
	tasks chan Task
	proc  goprocess.Process
}

// New creates an Executor with a bounded task queue. queueSize bounds how
// many posted-but-not-yet-run tasks may be outstanding at once; Post
// blocks once the queue is full, which only happens if every worker is
// stuck (a programming error elsewhere, since handlers must not block).
func New(queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Executor{
		tasks: make(chan Task, queueSize),
	}
}

// Start installs the active sentinel: a goprocess.Process whose presence
// keeps Run servicing the queue even when it's momentarily empty. Release
// (returned) or Stop drops the sentinel.
func (e *Executor) Start() (release func()) {
	e.proc = goprocess.WithParent(goprocess.Background())
	return func() { _ = e.proc.Close() }
}

// Post enqueues fn for later execution on whichever goroutine is running
// Run. Safe to call from any goroutine, including from inside a Task.
func (e *Executor) Post(fn Task) {
	e.tasks <- fn
}

// Run services the task queue on the calling goroutine until the active
// sentinel is dropped (via Stop or the release func from Start) or ctx is
// cancelled. Multiple goroutines may call Run concurrently to form a
// worker pool; in that case any task may run on any worker, so posted
// Tasks must not assume goroutine affinity.
func (e *Executor) Run(ctx context.Context) error {
	for {
		select {
		case task := <-e.tasks:
			task()
		case <-e.proc.Closing():
			return e.drain()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drain runs any tasks already queued at the moment the sentinel dropped,
// so in-flight work (e.g. a just-posted disconnect completion) isn't
// silently discarded, then returns.
func (e *Executor) drain() error {
	for {
		select {
		case task := <-e.tasks:
			task()
		default:
			return nil
		}
	}
}

// Stop drops the active sentinel, letting every Run loop exit once the
// queue drains. Idempotent.
func (e *Executor) Stop() {
	if e.proc != nil {
		_ = e.proc.Close()
	}
}

// RunPool spawns n worker goroutines (or runs Run on the calling
// goroutine if n <= 0) and blocks until every worker's Run call returns,
// either because Stop was called or ctx was cancelled. Mirrors the
// spec's "spawn pool_size worker threads, join all" startup step.
func (e *Executor) RunPool(ctx context.Context, n int) error {
	if n <= 0 {
		return e.Run(ctx)
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return e.Run(gctx)
		})
	}
	return g.Wait()
}
