package aio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFutureCompleteAndRead(t *testing.T) {
	d := New(nil)
	fut := NewFuture[int](d)
	require.NoError(t, fut.Complete(42))
	require.True(t, fut.Done())

	v, err := WaitFor(d, fut)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestFutureCompleteTwiceFails(t *testing.T) {
	fut := NewFuture[int](nil)
	require.NoError(t, fut.Complete(1))
	require.ErrorIs(t, fut.Complete(2), ErrAlreadyFinished)
}

func TestFutureFailPropagatesError(t *testing.T) {
	d := New(nil)
	fut := NewFuture[string](d)
	failWith := testErr("boom")
	require.NoError(t, fut.Fail(failWith))

	_, err := WaitFor(d, fut)
	require.EqualError(t, err, "boom")
}

func TestFutureCancelWithoutCancelCallback(t *testing.T) {
	d := New(nil)
	fut := NewFuture[int](d)
	fut.Cancel()
	_, err := WaitFor(d, fut)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestFutureCancelWithCancelCallback(t *testing.T) {
	d := New(nil)
	fut := NewFuture[int](d)
	called := false
	fut.SetCancelCallback(func() {
		called = true
		fut.MarkCancelled()
	})
	fut.Cancel()
	require.True(t, called)
	_, err := WaitFor(d, fut)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestFutureCallbacksFireInFIFOOrder(t *testing.T) {
	d := New(nil)
	fut := NewFuture[int](d)
	var order []int
	fut.AddCallback(func(*Future[int]) { order = append(order, 1) }, nil)
	fut.AddCallback(func(*Future[int]) { order = append(order, 2) }, nil)
	fut.AddCallback(func(*Future[int]) { order = append(order, 3) }, nil)
	require.NoError(t, fut.Complete(0))
	WaitFor(d, fut)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestFutureAddCallbackAfterTerminalSchedulesImmediately(t *testing.T) {
	d := New(nil)
	fut := NewFuture[int](d)
	require.NoError(t, fut.Complete(7))
	fired := false
	fut.AddCallback(func(*Future[int]) { fired = true }, nil)
	d.Poll()
	require.True(t, fired)
}

type testErr string

func (e testErr) Error() string { return string(e) }

func TestDispatcherSleepAsync(t *testing.T) {
	d := New(nil)
	start := time.Now()
	fut := d.SleepAsync(10 * time.Millisecond)
	_, err := WaitFor(d, fut)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestWaitTimesOutBeforeFutureCompletes(t *testing.T) {
	d := New(nil)
	fut := NewFuture[int](d)
	_, err := Wait(d, fut, 5*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.True(t, fut.Done())
}

func TestWaitReturnsFutureResultWhenFaster(t *testing.T) {
	d := New(nil)
	fut := NewFuture[int](d)
	require.NoError(t, fut.Complete(99))
	v, err := Wait(d, fut, time.Second)
	require.NoError(t, err)
	require.Equal(t, 99, v)
}

func TestAllFuturesCompletesOnceEveryElementTerminal(t *testing.T) {
	d := New(nil)
	a := NewFuture[int](d)
	b := NewFuture[int](d)
	all := AllFutures(d, []*Future[int]{a, b})
	require.False(t, all.Done())
	require.NoError(t, a.Complete(1))
	d.Poll()
	require.False(t, all.Done())
	b.Cancel()
	_, err := WaitFor(d, all)
	require.NoError(t, err)
}

func TestAddIntervalFiresRepeatedlyUntilCancelled(t *testing.T) {
	d := New(nil)
	count := 0
	cancel := d.AddInterval(2*time.Millisecond, func() { count++ })
	deadline := time.Now().Add(50 * time.Millisecond)
	for count < 3 && time.Now().Before(deadline) {
		d.Poll()
	}
	cancel.Cancel()
	require.GreaterOrEqual(t, count, 3)
}

func TestCancelAndWait(t *testing.T) {
	d := New(nil)
	fut := NewFuture[int](d)
	_, err := CancelAndWait(d, fut)
	require.ErrorIs(t, err, ErrCancelled)
}
