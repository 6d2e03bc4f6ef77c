package aio

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Dispatcher is the single-threaded cooperative scheduler: it owns a timer
// heap and a FIFO of ready callbacks, and drains both from whichever
// goroutine calls Poll/RunForever/WaitFor. Any number of other goroutines
// (timer fires already run inline, I/O completion goroutines, Future
// producers) may push work onto the ready queue concurrently; Poll is the
// only place that work actually executes.
type Dispatcher struct {
	log *logrus.Entry

	mu     sync.Mutex
	timers timerHeap
	seq    uint64

	readyMu sync.Mutex
	ready   []func()
	wake    chan struct{}

	closed bool
}

// New creates a fresh, isolated Dispatcher. Tests should always construct
// their own instance rather than sharing a process-wide one (§9 "Global
// dispatcher").
func New(log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		log:  log,
		wake: make(chan struct{}, 1),
	}
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// enqueueReady appends fn to the ready FIFO. Safe from any goroutine.
func (d *Dispatcher) enqueueReady(fn func()) {
	d.readyMu.Lock()
	d.ready = append(d.ready, fn)
	d.readyMu.Unlock()
	d.signal()
}

func (d *Dispatcher) drainReady() []func() {
	d.readyMu.Lock()
	if len(d.ready) == 0 {
		d.readyMu.Unlock()
		return nil
	}
	batch := d.ready
	d.ready = nil
	d.readyMu.Unlock()
	return batch
}

func (d *Dispatcher) hasReady() bool {
	d.readyMu.Lock()
	defer d.readyMu.Unlock()
	return len(d.ready) > 0
}

// AddTimer schedules fn to run (enqueued onto the ready FIFO, never
// invoked from within the heap maintenance code) once at or after
// deadline. It returns a handle that cancels the timer in O(log n).
func (d *Dispatcher) AddTimer(deadline time.Time, fn func()) *timerCancelHandle {
	d.mu.Lock()
	d.seq++
	entry := &timerEntry{deadline: deadline, seq: d.seq, fn: fn}
	heap.Push(&d.timers, entry)
	d.mu.Unlock()
	d.signal()
	return &timerCancelHandle{d: d, entry: entry}
}

// nextDeadline returns the earliest pending timer deadline and whether one
// exists.
func (d *Dispatcher) nextDeadline() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.timers.Len() > 0 && d.timers[0].cancelled {
		heap.Pop(&d.timers)
	}
	if d.timers.Len() == 0 {
		return time.Time{}, false
	}
	return d.timers[0].deadline, true
}

// fireDueTimers pops and schedules every timer whose deadline has passed,
// in heap order (i.e. deadline order, ties broken by insertion order).
func (d *Dispatcher) fireDueTimers(now time.Time) {
	for {
		d.mu.Lock()
		if d.timers.Len() == 0 {
			d.mu.Unlock()
			return
		}
		top := d.timers[0]
		if top.cancelled {
			heap.Pop(&d.timers)
			d.mu.Unlock()
			continue
		}
		if top.deadline.After(now) {
			d.mu.Unlock()
			return
		}
		heap.Pop(&d.timers)
		d.mu.Unlock()
		d.enqueueReady(top.fn)
	}
}

// Poll advances the loop by exactly one step, per spec.md §4.1:
//  1. fire every due timer, in deadline/insertion order
//  2. sleep until the next timer deadline, bounded to zero if callbacks
//     are already ready
//  3/4. drain the ready FIFO completely, running callbacks sequentially
func (d *Dispatcher) Poll() {
	now := time.Now()
	d.fireDueTimers(now)

	if !d.hasReady() {
		timeout := 24 * time.Hour
		if dl, ok := d.nextDeadline(); ok {
			if until := time.Until(dl); until > 0 {
				timeout = until
			} else {
				timeout = 0
			}
		}
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			select {
			case <-d.wake:
			case <-timer.C:
			}
			timer.Stop()
		} else {
			select {
			case <-d.wake:
			default:
			}
		}
		d.fireDueTimers(time.Now())
	}

	for {
		batch := d.drainReady()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// RunForever loops Poll indefinitely and never returns normally. A panic
// in a callback is not recovered: it propagates out of RunForever (a
// Defect per §7, left to propagate to the process boundary).
func (d *Dispatcher) RunForever() {
	for {
		d.Poll()
	}
}

// WaitFor polls until fut is terminal and returns its result. This is the
// realization of "await" at the top of the dispatcher stack — it is the
// only method that blocks the calling goroutine.
func WaitFor[T any](d *Dispatcher, fut *Future[T]) (T, error) {
	for !fut.Done() {
		d.Poll()
	}
	return fut.Read()
}

// SleepAsync returns a Future that completes after d elapses. Cancelling
// it removes the underlying timer from the heap in O(log n) instead of
// waiting for it to fire.
func (d *Dispatcher) SleepAsync(dur time.Duration) *Future[struct{}] {
	fut := NewFuture[struct{}](d)
	handle := d.AddTimer(time.Now().Add(dur), func() {
		_ = fut.Complete(struct{}{})
	})
	fut.SetCancelCallback(func() {
		handle.Cancel()
		fut.MarkCancelled()
	})
	return fut
}

// AddInterval invokes cb every d, measured from the previous scheduling
// (not the previous completion), until the returned Future is completed.
// A panic from cb propagates and the interval is not rescheduled.
func (d *Dispatcher) AddInterval(dur time.Duration, cb func()) *Future[struct{}] {
	cancelFut := NewFuture[struct{}](d)
	var handle *timerCancelHandle
	var tick func(scheduledAt time.Time)
	tick = func(scheduledAt time.Time) {
		if cancelFut.Done() {
			return
		}
		next := scheduledAt.Add(dur)
		handle = d.AddTimer(next, func() {
			if cancelFut.Done() {
				return
			}
			cb()
			tick(next)
		})
	}
	tick(time.Now())
	cancelFut.SetCancelCallback(func() {
		if handle != nil {
			handle.Cancel()
		}
		cancelFut.MarkCancelled()
	})
	return cancelFut
}

// Wait composes fut with a timeout: whichever of fut or the timer fires
// first wins; the loser is cancelled and reaped so no orphan future
// remains pending.
func Wait[T any](d *Dispatcher, fut *Future[T], timeout time.Duration) (T, error) {
	sleeper := d.SleepAsync(timeout)
	done := make(chan struct{}, 2)
	fut.AddCallback(func(*Future[T]) { select {
	case done <- struct{}{}:
	default:
	} }, nil)
	sleeper.AddCallback(func(*Future[struct{}]) { select {
	case done <- struct{}{}:
	default:
	} }, nil)

	for !fut.Done() && !sleeper.Done() {
		d.Poll()
	}

	if fut.Done() {
		if !sleeper.Done() {
			sleeper.Cancel()
			for !sleeper.Done() {
				d.Poll()
			}
		}
		return fut.Read()
	}

	// timer won the race: cancel and reap the loser.
	fut.Cancel()
	for !fut.Done() {
		d.Poll()
	}
	var zero T
	return zero, ErrTimeout
}

// ErrTimeout is returned by Wait when the timeout elapses first.
var ErrTimeout = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "aio: wait timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// AllFutures completes once every element of fs is terminal. It never
// fails, regardless of whether individual futures completed, failed or
// were cancelled.
func AllFutures[T any](d *Dispatcher, fs []*Future[T]) *Future[struct{}] {
	result := NewFuture[struct{}](d)
	if len(fs) == 0 {
		_ = result.Complete(struct{}{})
		return result
	}
	var mu sync.Mutex
	remaining := len(fs)
	for _, f := range fs {
		f.AddCallback(func(*Future[T]) {
			mu.Lock()
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				_ = result.Complete(struct{}{})
			}
		}, nil)
	}
	return result
}

// CancelAndWait issues Cancel and then waits for fut to reach a terminal
// state, returning its final result.
func CancelAndWait[T any](d *Dispatcher, fut *Future[T]) (T, error) {
	fut.Cancel()
	return WaitFor(d, fut)
}
