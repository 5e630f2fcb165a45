// Package executor implements the per-session main-thread task queue: one
// dedicated goroutine serialises every mutation of a session's state, with
// three enqueue modes and registration-gated delivery used as the
// ordered-shutdown primitive. It has no RPC surface of its own — it is
// driven entirely by internal/ipc/rpc's dispatcher handlers.
package executor

import "sync"

// ClientID is the opaque handle returned by RegisterClient.
type ClientID uint64

// Task is a suspended mutation of SessionContext with no return value.
// Implementations close over whatever state they mutate.
type Task func()

type queued struct {
	client    ClientID
	fn        Task
	done      chan struct{} // non-nil for enqueueAndWait/enqueuePriorityAndWait
	bootstrap bool          // true only for the internal register/unregister tasks, which must always run
}

// Executor is one dedicated-goroutine FIFO (plus priority lane) task
// queue. A single Executor backs one session; sessions never share an
// Executor, so tasks from different sessions are always independent.
type Executor struct {
	normal   chan queued
	priority chan queued
	stopped  chan struct{}
	wg       sync.WaitGroup

	// registered is only ever read or written from inside run(), which is
	// the sole goroutine driving the loop — no mutex is needed, matching
	// "no task ever runs concurrently with another task in the same
	// session".
	registered map[ClientID]bool
	nextClient ClientID
	regMu      sync.Mutex // guards nextClient
}

// New creates an Executor and starts its dedicated goroutine. Queue depth
// is generous; callers that need backpressure should size their own
// producers accordingly.
func New() *Executor {
	e := &Executor{
		normal:     make(chan queued, 256),
		priority:   make(chan queued, 64),
		stopped:    make(chan struct{}),
		registered: make(map[ClientID]bool),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

// RegisterClient allocates a fresh ClientID and marks it eligible to have
// tasks run. Safe to call from any goroutine.
func (e *Executor) RegisterClient() ClientID {
	e.regMu.Lock()
	e.nextClient++
	id := e.nextClient
	e.regMu.Unlock()

	done := make(chan struct{})
	e.normal <- queued{client: id, fn: func() { e.registered[id] = true }, done: done, bootstrap: true}
	<-done
	return id
}

// UnregisterClient is itself enqueued as a task, guaranteeing that no
// further task from client can be in flight when this call returns.
func (e *Executor) UnregisterClient(client ClientID) {
	done := make(chan struct{})
	e.normal <- queued{client: client, fn: func() { delete(e.registered, client) }, done: done, bootstrap: true}
	<-done
}

// Enqueue is fire-and-forget: fn runs FIFO behind already-queued
// non-priority tasks, or is silently dropped if client is not registered
// at the moment the task would run.
func (e *Executor) Enqueue(client ClientID, fn Task) {
	e.normal <- queued{client: client, fn: fn}
}

// EnqueueAndWait blocks until fn has run (or was dropped because client
// is unregistered).
func (e *Executor) EnqueueAndWait(client ClientID, fn Task) {
	done := make(chan struct{})
	e.normal <- queued{client: client, fn: fn, done: done}
	<-done
}

// EnqueuePriorityAndWait jumps ahead of all non-priority tasks (never
// reordering with other priority tasks already queued) and blocks until
// fn has run or was dropped.
func (e *Executor) EnqueuePriorityAndWait(client ClientID, fn Task) {
	done := make(chan struct{})
	e.priority <- queued{client: client, fn: fn, done: done}
	<-done
}

// run is the sole goroutine allowed to mutate e.registered or invoke any
// Task; it drains the priority lane ahead of the normal lane whenever both
// have work, per the "priority tasks preempt only non-priority tasks"
// invariant.
func (e *Executor) run() {
	defer e.wg.Done()
	for {
		// Drain the priority lane fully before considering the normal lane,
		// so priority tasks preempt non-priority ones without reordering
		// among themselves.
		select {
		case q := <-e.priority:
			e.runOne(q)
			continue
		default:
		}

		select {
		case <-e.stopped:
			e.drain()
			return
		case q := <-e.priority:
			e.runOne(q)
		case q := <-e.normal:
			e.runOne(q)
		}
	}
}

func (e *Executor) runOne(q queued) {
	// Bootstrap register/unregister tasks run unconditionally — they're the
	// only ones permitted to mutate e.registered. All other tasks require
	// the submitting client to already be registered; a task from an
	// unregistered client is silently dropped.
	if q.bootstrap || e.registered[q.client] {
		if q.fn != nil {
			q.fn()
		}
	}
	if q.done != nil {
		close(q.done)
	}
}

// drain flushes any remaining queued tasks as no-ops so their EnqueueAndWait
// callers are released, then returns.
func (e *Executor) drain() {
	for {
		select {
		case q := <-e.priority:
			if q.done != nil {
				close(q.done)
			}
		case q := <-e.normal:
			if q.done != nil {
				close(q.done)
			}
		default:
			return
		}
	}
}

// Shutdown enqueues the terminal task that sets the loop's running flag to
// false; Join then returns once the goroutine has exited.
func (e *Executor) Shutdown() {
	e.normal <- queued{fn: func() { close(e.stopped) }, bootstrap: true}
}

// Join blocks until the executor's goroutine has fully exited.
func (e *Executor) Join() {
	e.wg.Wait()
}
