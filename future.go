package aio

import (
	"sync"

	"github.com/pkg/errors"
)

// FutureState is the lifecycle state of a Future.
type FutureState int32

const (
	StatePending FutureState = iota
	StateCompleted
	StateFailed
	StateCancelled
)

func (s FutureState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrCancelled is re-raised at the await point of a cancelled Future.
var ErrCancelled = errors.New("future cancelled")

// ErrAlreadyFinished is returned by Complete/Fail on a non-pending Future.
var ErrAlreadyFinished = errors.New("future already finished")

type futureCallback[T any] struct {
	fn    func(*Future[T])
	udata interface{}
}

// Future is a single-assignment result slot with an ordered callback list.
// It is safe to complete, fail, cancel, read or add callbacks from any
// goroutine; callbacks themselves are scheduled onto the owning
// Dispatcher's ready FIFO rather than invoked inline, so the dispatcher
// stays the only place callback code runs. A Future created with a nil
// Dispatcher runs its callbacks inline on the goroutine that completes it.
type Future[T any] struct {
	mu         sync.Mutex
	disp       *Dispatcher
	state      FutureState
	value      T
	err        error
	callbacks  []futureCallback[T]
	cancelFn   func()
	cancelOnce sync.Once
}

// NewFuture creates a pending Future bound to disp. disp may be nil, in
// which case callbacks run synchronously on whichever goroutine completes
// the future (used for futures that never leave a single goroutine, e.g.
// inside stream plumbing that already runs on the dispatcher).
func NewFuture[T any](disp *Dispatcher) *Future[T] {
	return &Future[T]{disp: disp, state: StatePending}
}

// SetCancelCallback installs the producer's cancellation hook. It may be
// set at most once and only while the future is pending.
func (f *Future[T]) SetCancelCallback(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelFn = fn
}

// Complete transitions a pending Future to completed(value) and schedules
// every registered callback, in registration order, onto the dispatcher's
// ready FIFO.
func (f *Future[T]) Complete(value T) error {
	f.mu.Lock()
	if f.state != StatePending {
		f.mu.Unlock()
		return ErrAlreadyFinished
	}
	f.state = StateCompleted
	f.value = value
	cbs := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()
	f.schedule(cbs)
	return nil
}

// Fail transitions a pending Future to failed(err) and schedules callbacks.
func (f *Future[T]) Fail(err error) error {
	if err == nil {
		err = errors.New("future failed with nil error")
	}
	f.mu.Lock()
	if f.state != StatePending {
		f.mu.Unlock()
		return ErrAlreadyFinished
	}
	f.state = StateFailed
	f.err = err
	cbs := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()
	f.schedule(cbs)
	return nil
}

// Cancel requests cancellation. If a cancel callback was installed it is
// invoked synchronously exactly once; it is then the producer's
// responsibility to eventually Complete, Fail or (by doing nothing) leave
// the future to transition to cancelled. If no cancel callback exists the
// future transitions to cancelled immediately.
func (f *Future[T]) Cancel() {
	f.mu.Lock()
	if f.state != StatePending {
		f.mu.Unlock()
		return
	}
	cancelFn := f.cancelFn
	f.mu.Unlock()

	if cancelFn != nil {
		f.cancelOnce.Do(cancelFn)
		return
	}

	f.mu.Lock()
	if f.state != StatePending {
		f.mu.Unlock()
		return
	}
	f.state = StateCancelled
	cbs := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()
	f.schedule(cbs)
}

// MarkCancelled is called by a producer's cancel callback once it has
// finished racing its own cleanup, finalizing the cancellation.
func (f *Future[T]) MarkCancelled() {
	f.mu.Lock()
	if f.state != StatePending {
		f.mu.Unlock()
		return
	}
	f.state = StateCancelled
	cbs := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()
	f.schedule(cbs)
}

// State returns the current lifecycle state.
func (f *Future[T]) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done reports whether the future is in a terminal state.
func (f *Future[T]) Done() bool {
	return f.State() != StatePending
}

// Read returns the value, re-raises the stored error, or returns
// ErrCancelled. It must only be called once the future is terminal.
func (f *Future[T]) Read() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case StateCompleted:
		return f.value, nil
	case StateFailed:
		var zero T
		return zero, f.err
	case StateCancelled:
		var zero T
		return zero, ErrCancelled
	default:
		var zero T
		return zero, errors.New("future: Read called while pending")
	}
}

// AddCallback appends cb to the FIFO callback list. If the future is
// already terminal, cb is scheduled immediately (still via the
// dispatcher's ready FIFO; with a nil dispatcher it runs inline).
func (f *Future[T]) AddCallback(cb func(*Future[T]), udata interface{}) {
	f.mu.Lock()
	if f.state == StatePending {
		f.callbacks = append(f.callbacks, futureCallback[T]{fn: cb, udata: udata})
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.schedule([]futureCallback[T]{{fn: cb, udata: udata}})
}

// RemoveCallback removes the first callback matching both fn identity and
// udata. It is a no-op if the future already fired.
func (f *Future[T]) RemoveCallback(cb func(*Future[T]), udata interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := reflectFnPointer(cb)
	for i, c := range f.callbacks {
		if reflectFnPointer(c.fn) == target && c.udata == udata {
			f.callbacks = append(f.callbacks[:i], f.callbacks[i+1:]...)
			return
		}
	}
}

func (f *Future[T]) schedule(cbs []futureCallback[T]) {
	if len(cbs) == 0 {
		return
	}
	disp := f.disp
	for _, c := range cbs {
		c := c
		run := func() { c.fn(f) }
		if disp == nil {
			run()
			continue
		}
		disp.enqueueReady(run)
	}
}
